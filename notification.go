package fanout

import (
	"context"

	"github.com/coregx/fanout/model"
)

// DeliveryObserver receives callbacks about dispatch events.
// Implementations might feed metrics, alerting, or audit logs.
// Errors returned by an observer are logged and otherwise ignored.
type DeliveryObserver interface {
	// NotifyPublished is called once per dispatch after every send has finished.
	NotifyPublished(ctx context.Context, report *model.DeliveryReport) error

	// NotifyDeliveryFailure is called for each failed or timed-out send.
	NotifyDeliveryFailure(ctx context.Context, topic, connectionID string, err error) error

	// NotifyConnectionRemoved is called when a connection is removed from all of its topics,
	// either on disconnect or after a failed send.
	NotifyConnectionRemoved(ctx context.Context, connectionID string, topics []string) error
}

// NoOpObserver is a no-op implementation of DeliveryObserver.
type NoOpObserver struct{}

// NotifyPublished does nothing.
func (n *NoOpObserver) NotifyPublished(_ context.Context, _ *model.DeliveryReport) error {
	return nil
}

// NotifyDeliveryFailure does nothing.
func (n *NoOpObserver) NotifyDeliveryFailure(_ context.Context, _, _ string, _ error) error {
	return nil
}

// NotifyConnectionRemoved does nothing.
func (n *NoOpObserver) NotifyConnectionRemoved(_ context.Context, _ string, _ []string) error {
	return nil
}

// LoggingObserver logs dispatch events.
type LoggingObserver struct {
	logger Logger
}

// NewLoggingObserver creates a new LoggingObserver.
func NewLoggingObserver(logger Logger) *LoggingObserver {
	return &LoggingObserver{logger: logger}
}

// NotifyPublished logs dispatches that had at least one failure.
func (n *LoggingObserver) NotifyPublished(_ context.Context, report *model.DeliveryReport) error {
	if report.Failed() == 0 {
		return nil
	}
	n.logger.Warnf("Partial delivery: topic=%s, message=%s, delivered=%d, failed=%v",
		report.Topic, report.MessageID, report.Delivered(), report.FailedIDs())
	return nil
}

// NotifyDeliveryFailure logs the failed send.
func (n *LoggingObserver) NotifyDeliveryFailure(_ context.Context, topic, connectionID string, err error) error {
	n.logger.Warnf("Delivery failed: topic=%s, connection=%s, error=%v", topic, connectionID, err)
	return nil
}

// NotifyConnectionRemoved logs the removal.
func (n *LoggingObserver) NotifyConnectionRemoved(_ context.Context, connectionID string, topics []string) error {
	n.logger.Infof("Connection removed: id=%s, topics=%v", connectionID, topics)
	return nil
}

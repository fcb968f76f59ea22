package fanout

import (
	"context"
	"fmt"

	"github.com/coregx/fanout/model"
)

// Broadcaster publishes a message to a topic. *Dispatcher implements it.
type Broadcaster interface {
	Publish(ctx context.Context, topic string, msg model.Message) (*model.DeliveryReport, error)
}

// AlertPublisher is the domain event source: request handlers call it after a
// user action, it persists the domain record and broadcasts the event.
// A failed broadcast is logged and reported in the result but never fails the action.
type AlertPublisher struct {
	helpAlertRepo    HelpAlertRepository
	notificationRepo NotificationRepository
	broadcaster      Broadcaster
	logger           Logger
}

// PublisherOption configures an AlertPublisher.
type PublisherOption func(*AlertPublisher) error

// NewAlertPublisher creates a new AlertPublisher with the provided options.
//
// Required options:
//   - WithPublisherRepositories: help alert and notification repositories
//   - WithPublisherBroadcaster: usually the Dispatcher
//   - WithPublisherLogger: logger instance
//
// Example:
//
//	publisher, err := fanout.NewAlertPublisher(
//	    fanout.WithPublisherRepositories(repos.HelpAlert, repos.Notification),
//	    fanout.WithPublisherBroadcaster(dispatcher),
//	    fanout.WithPublisherLogger(logger),
//	)
func NewAlertPublisher(opts ...PublisherOption) (*AlertPublisher, error) {
	p := &AlertPublisher{}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply publisher option", err)
		}
	}

	if p.helpAlertRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "HelpAlertRepository is required (use WithPublisherRepositories)")
	}
	if p.notificationRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "NotificationRepository is required (use WithPublisherRepositories)")
	}
	if p.broadcaster == nil {
		return nil, NewError(ErrCodeConfiguration, "Broadcaster is required (use WithPublisherBroadcaster)")
	}
	if p.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithPublisherLogger)")
	}

	return p, nil
}

// WithPublisherRepositories sets the required repository dependencies.
func WithPublisherRepositories(helpAlertRepo HelpAlertRepository, notificationRepo NotificationRepository) PublisherOption {
	return func(p *AlertPublisher) error {
		if helpAlertRepo == nil {
			return fmt.Errorf("helpAlertRepo cannot be nil")
		}
		if notificationRepo == nil {
			return fmt.Errorf("notificationRepo cannot be nil")
		}

		p.helpAlertRepo = helpAlertRepo
		p.notificationRepo = notificationRepo
		return nil
	}
}

// WithPublisherBroadcaster sets where events are published.
func WithPublisherBroadcaster(b Broadcaster) PublisherOption {
	return func(p *AlertPublisher) error {
		if b == nil {
			return fmt.Errorf("broadcaster cannot be nil")
		}
		p.broadcaster = b
		return nil
	}
}

// WithPublisherLogger sets the logger instance.
func WithPublisherLogger(logger Logger) PublisherOption {
	return func(p *AlertPublisher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// HelpAlertRequest is a help alert submitted by a user.
type HelpAlertRequest struct {
	Username       string `json:"username"`
	NeedHelp       string `json:"needHelp"`
	Description    string `json:"description"`
	ContactDetails string `json:"contactDetails"`
}

// HelpAlertResult is the outcome of SubmitHelpAlert.
type HelpAlertResult struct {
	Alert      model.HelpAlert       `json:"alert"`
	Report     *model.DeliveryReport `json:"report,omitempty"`
	PublishErr error                 `json:"-"`
}

// SubmitHelpAlert persists a help alert and broadcasts it on the notifications topic.
//
// The process:
//  1. Validate the alert
//  2. Save it
//  3. Publish "<user> needs help: <need>. Description: <description>." to everyone watching
//
// Only validation and storage errors fail the call.
func (p *AlertPublisher) SubmitHelpAlert(ctx context.Context, req HelpAlertRequest) (*HelpAlertResult, error) {
	alert := model.NewHelpAlert(req.Username, req.NeedHelp, req.Description, req.ContactDetails)
	if err := alert.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid help alert", err)
	}

	alert, err := p.helpAlertRepo.Save(ctx, alert)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to save help alert", err)
	}

	p.logger.Infof("Help alert created: id=%d, username=%s", alert.ID, alert.Username)

	result := &HelpAlertResult{Alert: alert}
	result.Report, result.PublishErr = p.broadcast(ctx, model.TopicNotifications, alert.ToMessage())

	return result, nil
}

// NotifyRequest is a personal notification for one user.
type NotifyRequest struct {
	UserID           int64  `json:"userId"`
	Title            string `json:"title"`
	Message          string `json:"message"`
	NotificationType string `json:"notificationType"`
}

// NotifyResult is the outcome of Notify.
type NotifyResult struct {
	Notification model.Notification    `json:"notification"`
	Report       *model.DeliveryReport `json:"report,omitempty"`
	PublishErr   error                 `json:"-"`
}

// Notify stores a notification for the user and pushes it to the user's topic
// so any of their open connections see it immediately.
func (p *AlertPublisher) Notify(ctx context.Context, req NotifyRequest) (*NotifyResult, error) {
	if req.UserID <= 0 {
		return nil, NewError(ErrCodeValidation, "user ID is required")
	}
	if req.Message == "" {
		return nil, NewError(ErrCodeValidation, "message is required")
	}

	n := model.NewNotification(req.UserID, req.Title, req.Message, req.NotificationType)
	n, err := p.notificationRepo.Save(ctx, n)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to save notification", err)
	}

	p.logger.Infof("Notification created: id=%d, user=%d, type=%s", n.ID, n.UserID, n.NotificationType)

	msg := n.ToMessage().WithAttribute("notificationId", fmt.Sprintf("%d", n.ID))
	result := &NotifyResult{Notification: n}
	result.Report, result.PublishErr = p.broadcast(ctx, model.UserTopic(n.UserID), msg)

	return result, nil
}

// NotifyMany sends several notifications. Individual failures are logged and skipped.
func (p *AlertPublisher) NotifyMany(ctx context.Context, requests []NotifyRequest) ([]*NotifyResult, error) {
	if len(requests) == 0 {
		return []*NotifyResult{}, nil
	}

	results := make([]*NotifyResult, 0, len(requests))

	for _, req := range requests {
		result, err := p.Notify(ctx, req)
		if err != nil {
			p.logger.Errorf("Failed to notify user %d: %v", req.UserID, err)
			continue
		}
		results = append(results, result)
	}

	return results, nil
}

// PostGroupMessage broadcasts a chat line to the group's conversation topic.
// Chat lines are not persisted here, so a publish failure is returned.
func (p *AlertPublisher) PostGroupMessage(ctx context.Context, gm model.GroupMessage) (*model.DeliveryReport, error) {
	if err := gm.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid group message", err)
	}
	return p.broadcaster.Publish(ctx, gm.Topic(), gm.ToMessage())
}

// broadcast publishes and logs the outcome without failing the caller.
func (p *AlertPublisher) broadcast(ctx context.Context, topic string, msg model.Message) (*model.DeliveryReport, error) {
	report, err := p.broadcaster.Publish(ctx, topic, msg)
	if err != nil {
		p.logger.Errorf("Failed to broadcast message %s (topic=%s): %v", msg.ID, topic, err)
		return nil, err
	}

	p.logger.Infof("Broadcast message %s to %d subscribers (topic=%s, failed=%d)",
		msg.ID, report.Len(), topic, report.Failed())
	return report, nil
}

package fanout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/coregx/fanout/model"
)

const (
	defaultSendTimeout    = 5 * time.Second
	defaultMaxConcurrency = 64
)

// PublishResult is delivered on the channel returned by PublishAsync.
type PublishResult struct {
	Report *model.DeliveryReport
	Err    error
}

// Dispatcher fans a message out to every connection subscribed to a topic.
//
// Each publish works on a snapshot of the topic taken at call time. Sends run
// concurrently and each is bounded by the send timeout, so a publish takes as
// long as its slowest send rather than the sum of all of them. A failed send is
// logged, reported to the observer and evicts the connection from every topic.
// Failed deliveries are never retried.
//
// Dispatches to the same topic run one after another in the order they were
// started, so a subscriber sees messages from one publishing goroutine in
// publish order whether they were published with Publish or PublishAsync.
//
// Thread safety: Safe for concurrent use.
type Dispatcher struct {
	registry       *Registry
	logger         Logger
	observer       DeliveryObserver
	bridge         Bridge
	nodeID         string
	sendTimeout    time.Duration
	maxConcurrency int

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup

	// lanes holds, per topic, the completion channel of the latest dispatch.
	lanesMu sync.Mutex
	lanes   map[string]chan struct{}
}

// NewDispatcher creates a dispatcher with the provided options.
//
// Required options:
//   - WithRegistry: the group registry
//   - WithLogger: logger instance
//
// Optional options:
//   - WithSendTimeout (default 5s)
//   - WithMaxConcurrency (default 64)
//   - WithObserver (default NoOpObserver)
//   - WithBridge: cross-process relay
//   - WithNodeID (default random UUID)
func NewDispatcher(opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		observer:       &NoOpObserver{},
		sendTimeout:    defaultSendTimeout,
		maxConcurrency: defaultMaxConcurrency,
		lanes:          make(map[string]chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply dispatcher option", err)
		}
	}

	if d.registry == nil {
		return nil, NewError(ErrCodeConfiguration, "Registry is required (use WithRegistry)")
	}
	if d.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithLogger)")
	}
	if d.nodeID == "" {
		d.nodeID = uuid.NewString()
	}

	return d, nil
}

// Registry returns the registry the dispatcher publishes through.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// NodeID returns the identity stamped on forwarded envelopes.
func (d *Dispatcher) NodeID() string {
	return d.nodeID
}

// Join subscribes conn to topic.
func (d *Dispatcher) Join(topic string, conn Connection) error {
	return d.registry.Join(topic, conn)
}

// Leave unsubscribes conn from topic.
func (d *Dispatcher) Leave(topic string, conn Connection) {
	d.registry.Leave(topic, conn)
}

// LeaveAll removes conn from every topic. Transports call it on disconnect.
func (d *Dispatcher) LeaveAll(conn Connection) []string {
	topics := d.registry.LeaveAll(conn)
	if len(topics) > 0 {
		d.notifyEvicted(context.Background(), conn.ID(), topics)
	}
	return topics
}

// Publish delivers msg to every current subscriber of topic and blocks until
// each send has completed or timed out. The report has one entry per
// subscriber in the snapshot. An unknown topic yields an empty report.
//
// The only whole-call error is ErrTransportUnavailable. If ctx ends first,
// Publish returns ctx.Err() while the dispatch runs to completion.
func (d *Dispatcher) Publish(ctx context.Context, topic string, msg model.Message) (*model.DeliveryReport, error) {
	return Await(ctx, d.PublishAsync(ctx, topic, msg))
}

// PublishAsync starts a dispatch and returns immediately. The channel yields
// exactly one result and is then closed.
func (d *Dispatcher) PublishAsync(ctx context.Context, topic string, msg model.Message) <-chan PublishResult {
	return d.start(ctx, topic, msg, true)
}

// PublishLocal delivers msg to local subscribers only, without forwarding it
// over the bridge. The relay uses it for envelopes received from other nodes.
func (d *Dispatcher) PublishLocal(ctx context.Context, topic string, msg model.Message) (*model.DeliveryReport, error) {
	return Await(ctx, d.start(ctx, topic, msg, false))
}

// Await blocks until the result of an async publish is available or ctx ends.
// It is the adapter between synchronous callers and PublishAsync.
func Await(ctx context.Context, results <-chan PublishResult) (*model.DeliveryReport, error) {
	select {
	case res, ok := <-results:
		if !ok {
			return nil, ErrTransportUnavailable
		}
		return res.Report, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting publishes, waits for in-flight dispatches and closes
// the bridge. Publishes after Close return ErrTransportUnavailable.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if d.bridge != nil {
		if err := d.bridge.Close(); err != nil {
			return NewErrorWithCause(ErrCodeBridge, "failed to close bridge", err)
		}
	}

	d.logger.Info("Dispatcher closed")
	return nil
}

// start registers the dispatch as in flight and runs it in a goroutine.
func (d *Dispatcher) start(ctx context.Context, topic string, msg model.Message, forward bool) <-chan PublishResult {
	results := make(chan PublishResult, 1)

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		results <- PublishResult{Err: ErrTransportUnavailable}
		close(results)
		return results
	}
	d.inflight.Add(1)
	d.mu.RUnlock()

	prev, mine := d.enterLane(topic)

	// Sends outlive the caller's cancellation; each has its own deadline.
	dispatchCtx := context.WithoutCancel(ctx)

	go func() {
		defer d.inflight.Done()
		defer close(results)

		if prev != nil {
			<-prev
		}
		report := d.dispatch(dispatchCtx, topic, msg)
		if forward && d.bridge != nil {
			d.forward(dispatchCtx, topic, msg)
		}
		d.leaveLane(topic, mine)

		results <- PublishResult{Report: report}
	}()

	return results
}

// enterLane queues a dispatch behind the previous one for topic.
// The caller waits on prev (nil when the lane is idle) and releases mine.
func (d *Dispatcher) enterLane(topic string) (prev <-chan struct{}, mine chan struct{}) {
	mine = make(chan struct{})

	d.lanesMu.Lock()
	if last, ok := d.lanes[topic]; ok {
		prev = last
	}
	d.lanes[topic] = mine
	d.lanesMu.Unlock()

	return prev, mine
}

func (d *Dispatcher) leaveLane(topic string, mine chan struct{}) {
	d.lanesMu.Lock()
	if d.lanes[topic] == mine {
		delete(d.lanes, topic)
	}
	d.lanesMu.Unlock()
	close(mine)
}

// dispatch sends msg to the snapshot of topic and builds the report.
func (d *Dispatcher) dispatch(ctx context.Context, topic string, msg model.Message) *model.DeliveryReport {
	members := d.registry.snapshot(topic)
	report := model.NewDeliveryReport(topic, msg, len(members))

	if len(members) == 0 {
		d.logger.Debugf("No subscribers for topic=%s, message=%s", topic, msg.ID)
		return report
	}

	deliveries := make([]model.Delivery, len(members))

	var g errgroup.Group
	g.SetLimit(d.maxConcurrency)
	for i, m := range members {
		g.Go(func() error {
			deliveries[i] = d.send(ctx, topic, m, msg)
			return nil
		})
	}
	_ = g.Wait()

	report.Deliveries = append(report.Deliveries, deliveries...)
	report.Duration = time.Since(report.StartedAt)

	d.logger.Infof("Published message %s to topic=%s: delivered=%d, failed=%d, took=%v",
		msg.ID, topic, report.Delivered(), report.Failed(), report.Duration)

	if err := d.observer.NotifyPublished(ctx, report); err != nil {
		d.logger.Warnf("Failed to send publish notification: %v", err)
	}

	return report
}

// send performs one bounded send. It never returns an error: failures are
// recorded in the delivery and handled here.
func (d *Dispatcher) send(ctx context.Context, topic string, m *member, msg model.Message) model.Delivery {
	id := m.conn.ID()

	if m.closed.Load() || isClosed(m.conn) {
		d.logger.Debugf("Skipping closed connection: id=%s, topic=%s", id, topic)
		d.evict(ctx, m)
		return model.Delivery{ConnectionID: id, Outcome: model.OutcomeFailed, Err: ErrConnectionClosed}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.conn.Send(sendCtx, msg)
	}()

	var err error
	select {
	case err = <-done:
	case <-sendCtx.Done():
		err = sendCtx.Err()
	}

	if err == nil {
		return model.Delivery{ConnectionID: id, Outcome: model.OutcomeDelivered}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		d.logger.Warnf("Delivery timed out: connection=%s, topic=%s, timeout=%v", id, topic, d.sendTimeout)
	} else {
		d.logger.Warnf("Delivery failed: connection=%s, topic=%s, error=%v", id, topic, err)
	}

	if notifyErr := d.observer.NotifyDeliveryFailure(ctx, topic, id, err); notifyErr != nil {
		d.logger.Warnf("Failed to send delivery failure notification: %v", notifyErr)
	}
	d.evict(ctx, m)

	return model.Delivery{
		ConnectionID: id,
		Outcome:      model.OutcomeFailed,
		Err:          NewErrorWithCause(ErrCodeDelivery, "send failed", err),
	}
}

// evict removes a broken connection from every topic and moves it to CLOSED
// when it is Terminable. A handle already closed by LeaveAll is left alone.
func (d *Dispatcher) evict(ctx context.Context, m *member) {
	if m.closed.Load() {
		return
	}
	conn := m.conn
	topics := d.registry.LeaveAll(conn)

	if t, ok := conn.(Terminable); ok && t.Close() {
		d.logger.Debugf("Closed evicted connection %s", conn.ID())
	}

	if len(topics) == 0 {
		return
	}
	d.logger.Infof("Evicted connection %s from %d topics", conn.ID(), len(topics))
	d.notifyEvicted(ctx, conn.ID(), topics)
}

func (d *Dispatcher) notifyEvicted(ctx context.Context, id string, topics []string) {
	if err := d.observer.NotifyConnectionRemoved(ctx, id, topics); err != nil {
		d.logger.Warnf("Failed to send connection removal notification: %v", err)
	}
}

// forward hands the message to the bridge. Failure never affects local delivery.
func (d *Dispatcher) forward(ctx context.Context, topic string, msg model.Message) {
	fwdCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	env := model.Envelope{Origin: d.nodeID, Topic: topic, Message: msg}
	if err := d.bridge.Forward(fwdCtx, env); err != nil {
		d.logger.Errorf("Failed to forward message %s to bridge (topic=%s): %v", msg.ID, topic, err)
	}
}

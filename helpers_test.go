package fanout

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coregx/fanout/model"
)

// fakeConn is a Connection recording what it receives.
type fakeConn struct {
	id     string
	err    error
	delay  time.Duration
	onSend func()
	closed atomic.Bool

	sends atomic.Int32

	mu       sync.Mutex
	received []model.Message
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) IsClosed() bool { return c.closed.Load() }

func (c *fakeConn) Send(ctx context.Context, msg model.Message) error {
	c.sends.Add(1)
	if c.onSend != nil {
		c.onSend()
	}
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	c.received = append(c.received, msg)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Message, len(c.received))
	copy(out, c.received)
	return out
}

// plainConn has no IsClosed method.
type plainConn struct {
	id string
}

func (c plainConn) ID() string { return c.id }

func (c plainConn) Send(_ context.Context, _ model.Message) error { return nil }

// recordingObserver captures observer callbacks.
type recordingObserver struct {
	mu        sync.Mutex
	published []*model.DeliveryReport
	failures  []string
	removed   map[string][]string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{removed: make(map[string][]string)}
}

func (o *recordingObserver) NotifyPublished(_ context.Context, report *model.DeliveryReport) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.published = append(o.published, report)
	return nil
}

func (o *recordingObserver) NotifyDeliveryFailure(_ context.Context, _, connectionID string, _ error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, connectionID)
	return nil
}

func (o *recordingObserver) NotifyConnectionRemoved(_ context.Context, connectionID string, topics []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.removed[connectionID] = topics
	return nil
}

func (o *recordingObserver) failureIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.failures...)
}

func (o *recordingObserver) removedTopics(id string) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.removed[id]
}

// fakeBridge is an in-test Bridge.
type fakeBridge struct {
	mu         sync.Mutex
	forwarded  []model.Envelope
	forwardErr error
	closed     bool

	incoming chan model.Envelope
	receive  func(ctx context.Context, handler EnvelopeHandler) error
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{incoming: make(chan model.Envelope, 16)}
}

func (b *fakeBridge) Forward(_ context.Context, env model.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forwarded = append(b.forwarded, env)
	return b.forwardErr
}

func (b *fakeBridge) Receive(ctx context.Context, handler EnvelopeHandler) error {
	if b.receive != nil {
		return b.receive(ctx, handler)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-b.incoming:
			if err := handler(ctx, env); err != nil {
				return err
			}
		}
	}
}

func (b *fakeBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBridge) forwardedEnvelopes() []model.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Envelope(nil), b.forwarded...)
}

func (b *fakeBridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry()
	require.NoError(t, err)
	return r
}

func newTestDispatcher(t *testing.T, opts ...Option) *Dispatcher {
	t.Helper()
	base := []Option{
		WithRegistry(newTestRegistry(t)),
		WithLogger(&NoopLogger{}),
	}
	d, err := NewDispatcher(append(base, opts...)...)
	require.NoError(t, err)
	return d
}

func chatMessage(text string) model.Message {
	return model.NewMessage(model.MessageTypeChat, text, "tester")
}

// memNotificationRepo is a map-backed NotificationRepository.
type memNotificationRepo struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[int64]model.Notification
	saveErr error
}

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{rows: make(map[int64]model.Notification)}
}

func (r *memNotificationRepo) Load(_ context.Context, id int64) (model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok {
		return model.Notification{}, ErrNoData
	}
	return n, nil
}

func (r *memNotificationRepo) Save(_ context.Context, n model.Notification) (model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return model.Notification{}, r.saveErr
	}
	if n.ID == 0 {
		r.nextID++
		n.ID = r.nextID
	}
	r.rows[n.ID] = n
	return n, nil
}

func (r *memNotificationRepo) Delete(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, n.ID)
	return nil
}

func (r *memNotificationRepo) FindByUser(_ context.Context, userID int64, limit int) ([]model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Notification
	for id := r.nextID; id > 0; id-- {
		if n, ok := r.rows[id]; ok && n.UserID == userID {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memNotificationRepo) CountUnread(_ context.Context, userID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, n := range r.rows {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *memNotificationRepo) MarkAllRead(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, n := range r.rows {
		if n.UserID == userID {
			n.IsRead = true
			r.rows[id] = n
		}
	}
	return nil
}

// memHelpAlertRepo is a slice-backed HelpAlertRepository.
type memHelpAlertRepo struct {
	mu      sync.Mutex
	rows    []model.HelpAlert
	saveErr error
}

func (r *memHelpAlertRepo) Load(_ context.Context, id int64) (model.HelpAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.rows {
		if h.ID == id {
			return h, nil
		}
	}
	return model.HelpAlert{}, ErrNoData
}

func (r *memHelpAlertRepo) Save(_ context.Context, h model.HelpAlert) (model.HelpAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return model.HelpAlert{}, r.saveErr
	}
	h.ID = int64(len(r.rows) + 1)
	r.rows = append(r.rows, h)
	return h, nil
}

func (r *memHelpAlertRepo) FindRecent(_ context.Context, limit int) ([]model.HelpAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.rows) == 0 {
		return nil, ErrNoData
	}
	var out []model.HelpAlert
	for i := len(r.rows) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.rows[i])
	}
	return out, nil
}

package fanout

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/coregx/fanout/model"
)

// Sender writes one message to a client. Transports supply it.
type Sender func(ctx context.Context, msg model.Message) error

// Session is the transport-side lifecycle of one client connection.
// It implements Connection over a Sender and walks the state machine
// UNREGISTERED → OPEN → CLOSED. CLOSED is terminal: a closed session
// cannot rejoin topics and every send fails with ErrConnectionClosed.
type Session struct {
	id         string
	send       Sender
	dispatcher *Dispatcher
	state      atomic.Int32
	done       chan struct{}
	onClose    func(id string)
}

// SessionOption configures a Session.
type SessionOption func(*Session) error

// WithSessionID overrides the generated session id.
func WithSessionID(id string) SessionOption {
	return func(s *Session) error {
		if id == "" {
			return fmt.Errorf("session id cannot be empty")
		}
		s.id = id
		return nil
	}
}

// WithCloseHook registers a callback run once when the session closes.
func WithCloseHook(hook func(id string)) SessionOption {
	return func(s *Session) error {
		if hook == nil {
			return fmt.Errorf("close hook cannot be nil")
		}
		s.onClose = hook
		return nil
	}
}

// NewSession creates an unregistered session bound to dispatcher.
func NewSession(dispatcher *Dispatcher, send Sender, opts ...SessionOption) (*Session, error) {
	if dispatcher == nil {
		return nil, NewError(ErrCodeConfiguration, "Dispatcher is required")
	}
	if send == nil {
		return nil, NewError(ErrCodeConfiguration, "Sender is required")
	}

	s := &Session{
		id:         uuid.NewString(),
		send:       send,
		dispatcher: dispatcher,
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply session option", err)
		}
	}

	return s, nil
}

// ID implements Connection.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() ConnectionState {
	return ConnectionState(s.state.Load())
}

// IsClosed implements Closable.
func (s *Session) IsClosed() bool {
	return s.State() == StateClosed
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Open moves the session to OPEN and joins the initial topics.
// On a join failure the session is closed and the error returned.
func (s *Session) Open(topics ...string) error {
	if !s.state.CompareAndSwap(int32(StateUnregistered), int32(StateOpen)) {
		if s.IsClosed() {
			return ErrConnectionClosed
		}
		return NewError(ErrCodeValidation, "session already open")
	}

	for _, topic := range topics {
		if err := s.dispatcher.Join(topic, s); err != nil {
			s.Close()
			return err
		}
	}
	return nil
}

// Join subscribes an open session to topic.
func (s *Session) Join(topic string) error {
	switch s.State() {
	case StateClosed:
		return ErrConnectionClosed
	case StateUnregistered:
		return NewError(ErrCodeValidation, "session is not open")
	}
	return s.dispatcher.Join(topic, s)
}

// Leave unsubscribes the session from topic.
func (s *Session) Leave(topic string) {
	s.dispatcher.Leave(topic, s)
}

// Topics returns the topics the session is subscribed to.
func (s *Session) Topics() []string {
	return s.dispatcher.Registry().TopicsOf(s)
}

// Send implements Connection.
func (s *Session) Send(ctx context.Context, msg model.Message) error {
	if s.IsClosed() {
		return ErrConnectionClosed
	}
	return s.send(ctx, msg)
}

// Close moves the session to CLOSED and removes it from every topic.
// It is idempotent and returns whether this call performed the close.
// The dispatcher calls it after a failed send, which closes Done.
func (s *Session) Close() bool {
	for {
		cur := s.state.Load()
		if cur == int32(StateClosed) {
			return false
		}
		if s.state.CompareAndSwap(cur, int32(StateClosed)) {
			break
		}
	}

	s.dispatcher.LeaveAll(s)
	close(s.done)
	if s.onClose != nil {
		s.onClose(s.id)
	}
	return true
}

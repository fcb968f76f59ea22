// Package nats implements fanout.Bridge over a NATS subject.
//
// Every node publishes envelopes to the same subject and subscribes to it
// without a queue group, so each node sees every envelope. The relay drops the
// node's own echoes by origin.
package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/coregx/fanout"
	"github.com/coregx/fanout/model"
)

// DefaultSubject is the subject envelopes travel on.
const DefaultSubject = "fanout.envelopes"

// DefaultBuffer bounds envelopes received but not yet handled.
const DefaultBuffer = 256

// Client is a minimal NATS-like interface decoupled from the concrete library.
type Client interface {
	// Publish publishes a message to a subject with optional headers.
	Publish(subject string, data []byte, headers map[string]string) error

	// Subscribe calls handler for each message on subject until unsubscribe is called.
	Subscribe(subject string, handler func(data []byte)) (unsubscribe func() error, err error)

	// Close closes the connection.
	Close()
}

// Bridge implements fanout.Bridge using an injected Client.
type Bridge struct {
	client  Client
	subject string
	buffer  int
	logger  fanout.Logger
}

var _ fanout.Bridge = (*Bridge)(nil)

// Option configures a Bridge.
type Option func(*Bridge)

// WithSubject overrides DefaultSubject.
func WithSubject(subject string) Option {
	return func(b *Bridge) {
		if subject != "" {
			b.subject = subject
		}
	}
}

// WithBuffer overrides DefaultBuffer.
func WithBuffer(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// WithLogger sets the logger used for undecodable envelopes.
func WithLogger(logger fanout.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a Bridge over the provided client.
func New(c Client, opts ...Option) *Bridge {
	b := &Bridge{
		client:  c,
		subject: DefaultSubject,
		buffer:  DefaultBuffer,
		logger:  &fanout.NoopLogger{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Forward publishes env on the bridge subject.
func (b *Bridge) Forward(ctx context.Context, env model.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.client == nil {
		return fanout.NewError(fanout.ErrCodeBridge, "nats forward: client is nil")
	}

	body, err := model.EncodeEnvelope(env)
	if err != nil {
		return fanout.NewErrorWithCause(fanout.ErrCodeBridge, "nats forward serialize", err)
	}

	headers := map[string]string{"origin": env.Origin, "topic": env.Topic}
	if err := b.client.Publish(b.subject, body, headers); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fanout.NewErrorWithCause(fanout.ErrCodeBridge, fmt.Sprintf("nats publish to %q", b.subject), err)
	}

	return nil
}

// Receive subscribes to the bridge subject and hands decoded envelopes to
// handler until ctx ends. Undecodable messages are logged and skipped.
func (b *Bridge) Receive(ctx context.Context, handler fanout.EnvelopeHandler) error {
	if b.client == nil {
		return fanout.NewError(fanout.ErrCodeBridge, "nats receive: client is nil")
	}

	msgs := make(chan []byte, b.buffer)
	unsubscribe, err := b.client.Subscribe(b.subject, func(data []byte) {
		select {
		case msgs <- data:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fanout.NewErrorWithCause(fanout.ErrCodeBridge, fmt.Sprintf("nats subscribe to %q", b.subject), err)
	}
	defer func() { _ = unsubscribe() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-msgs:
			env, err := model.DecodeEnvelope(data)
			if err != nil {
				b.logger.Warnf("Skipping undecodable envelope on %s: %v", b.subject, err)
				continue
			}
			if err := handler(ctx, env); err != nil {
				return err
			}
		}
	}
}

// Close closes the underlying client.
func (b *Bridge) Close() error {
	if b.client != nil {
		b.client.Close()
	}
	return nil
}

// Package rabbitmq implements fanout.Bridge over a RabbitMQ fanout exchange.
//
// Each node declares the exchange, binds its own exclusive auto-delete queue to
// it and consumes from that queue, so every node receives every envelope.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	"github.com/coregx/fanout"
	"github.com/coregx/fanout/model"
)

const (
	// DefaultExchange is the fanout exchange envelopes are published to.
	DefaultExchange = "fanout.envelopes"

	exchangeKind = "fanout"
)

type PubMsg struct {
	Exchange string
	Body     []byte
	Headers  map[string]string
}

// Client is the slice of an AMQP channel the bridge needs.
type Client interface {
	Publish(ctx context.Context, m PubMsg) error

	// Consume returns message bodies from a queue bound to exchange.
	// The channel is closed when the subscription ends.
	Consume(ctx context.Context, exchange string) (<-chan []byte, error)

	Close() error
}

// Bridge implements fanout.Bridge using an injected Client.
type Bridge struct {
	client   Client
	exchange string
	logger   fanout.Logger
}

var _ fanout.Bridge = (*Bridge)(nil)

// Option configures a Bridge.
type Option func(*Bridge)

// WithExchange overrides DefaultExchange.
func WithExchange(name string) Option {
	return func(b *Bridge) {
		if name != "" {
			b.exchange = name
		}
	}
}

// WithLogger sets the logger used for undecodable deliveries.
func WithLogger(logger fanout.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func New(c Client, opts ...Option) *Bridge {
	b := &Bridge{client: c, exchange: DefaultExchange, logger: &fanout.NoopLogger{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bridge) ready(ctx context.Context, label string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if b.client == nil {
		return fanout.NewError(fanout.ErrCodeBridge, fmt.Sprintf("rabbitmq %s: client is nil", label))
	}

	return nil
}

// Forward publishes env to the exchange.
func (b *Bridge) Forward(ctx context.Context, env model.Envelope) error {
	if err := b.ready(ctx, "forward"); err != nil {
		return err
	}

	body, err := model.EncodeEnvelope(env)
	if err != nil {
		return fanout.NewErrorWithCause(fanout.ErrCodeBridge, "rabbitmq forward serialize", err)
	}

	msg := PubMsg{
		Exchange: b.exchange,
		Body:     body,
		Headers:  map[string]string{"origin": env.Origin, "topic": env.Topic},
	}
	if err := b.client.Publish(ctx, msg); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fanout.NewErrorWithCause(fanout.ErrCodeBridge, "rabbitmq forward publish", err)
	}

	return nil
}

// Receive consumes the node's queue until ctx ends or the delivery channel closes.
func (b *Bridge) Receive(ctx context.Context, handler fanout.EnvelopeHandler) error {
	if err := b.ready(ctx, "receive"); err != nil {
		return err
	}

	deliveries, err := b.client.Consume(ctx, b.exchange)
	if err != nil {
		return fanout.NewErrorWithCause(fanout.ErrCodeBridge, "rabbitmq consume", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case body, ok := <-deliveries:
			if !ok {
				return fanout.NewError(fanout.ErrCodeBridge, "rabbitmq delivery channel closed")
			}
			env, err := model.DecodeEnvelope(body)
			if err != nil {
				b.logger.Warnf("Skipping undecodable envelope from %s: %v", b.exchange, err)
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
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

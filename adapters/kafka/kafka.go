// Package kafka implements fanout.Bridge over a Kafka topic.
//
// Nodes consume without a consumer group, starting at the end of the log, so
// every node reads every envelope produced while it is up.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/coregx/fanout"
	"github.com/coregx/fanout/model"
)

// DefaultTopic is the Kafka topic envelopes are produced to.
const DefaultTopic = "fanout.envelopes"

// Record is a consumed Kafka record value with its headers.
type Record struct {
	Value   []byte
	Headers map[string]string
}

// Client is a minimal Kafka-like interface.
type Client interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error

	// Poll blocks until records are available or ctx ends.
	Poll(ctx context.Context) ([]Record, error)

	Close()
}

// Bridge implements fanout.Bridge using an injected Client.
type Bridge struct {
	client Client
	topic  string
	logger fanout.Logger
}

var _ fanout.Bridge = (*Bridge)(nil)

// Option configures a Bridge.
type Option func(*Bridge)

// WithTopic overrides DefaultTopic. The client must consume the same topic.
func WithTopic(topic string) Option {
	return func(b *Bridge) {
		if topic != "" {
			b.topic = topic
		}
	}
}

// WithLogger sets the logger used for undecodable records.
func WithLogger(logger fanout.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a Kafka bridge with the provided client.
func New(c Client, opts ...Option) *Bridge {
	b := &Bridge{client: c, topic: DefaultTopic, logger: &fanout.NoopLogger{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Forward produces env keyed by its fanout topic, so envelopes for one topic keep their order.
func (b *Bridge) Forward(ctx context.Context, env model.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if b.client == nil {
		return fanout.NewError(fanout.ErrCodeBridge, "kafka forward: client is nil")
	}

	val, err := model.EncodeEnvelope(env)
	if err != nil {
		return fanout.NewErrorWithCause(fanout.ErrCodeBridge, "kafka forward serialize", err)
	}

	headers := map[string]string{"origin": env.Origin}
	if err = b.client.Write(ctx, b.topic, []byte(env.Topic), val, headers); err != nil {
		return wrapProduceErr(b.topic, err)
	}

	return nil
}

// Receive polls the client and hands decoded envelopes to handler until ctx ends.
func (b *Bridge) Receive(ctx context.Context, handler fanout.EnvelopeHandler) error {
	if b.client == nil {
		return fanout.NewError(fanout.ErrCodeBridge, "kafka receive: client is nil")
	}

	for {
		records, err := b.client.Poll(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return fanout.NewErrorWithCause(fanout.ErrCodeBridge, fmt.Sprintf("kafka poll %q", b.topic), err)
		}

		for _, rec := range records {
			env, err := model.DecodeEnvelope(rec.Value)
			if err != nil {
				b.logger.Warnf("Skipping undecodable record on %s: %v", b.topic, err)
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

func wrapProduceErr(topic string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fanout.NewErrorWithCause(fanout.ErrCodeBridge, fmt.Sprintf("kafka produce to %q", topic), err)
}

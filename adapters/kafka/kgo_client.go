package kafka

import (
	"context"
	"crypto/tls"
	"errors"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/coregx/fanout"
)

// Concrete franz-go based constructor and client wrapper.

type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
	TLS      *tls.Config
}

type kgoClient struct{ cl *kgo.Client }

func (c kgoClient) Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	if len(headers) > 0 {
		rec.Headers = make([]kgo.RecordHeader, 0, len(headers))
		for k, v := range headers {
			rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
	}
	return c.cl.ProduceSync(ctx, rec).FirstErr()
}

func (c kgoClient) Poll(ctx context.Context) ([]Record, error) {
	fetches := c.cl.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return nil, fanout.ErrTransportUnavailable
	}

	var errs []error
	fetches.EachError(func(topic string, partition int32, err error) {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			errs = append(errs, err)
		}
	})
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	var records []Record
	fetches.EachRecord(func(r *kgo.Record) {
		rec := Record{Value: r.Value}
		if len(r.Headers) > 0 {
			rec.Headers = make(map[string]string, len(r.Headers))
			for _, h := range r.Headers {
				rec.Headers[h.Key] = string(h.Value)
			}
		}
		records = append(records, rec)
	})
	return records, nil
}

func (c kgoClient) Close() { c.cl.Close() }

// NewWithKgo builds a franz-go client that both produces to and consumes
// from cfg.Topic, and returns a Bridge over it.
func NewWithKgo(cfg Config, opts ...Option) (*Bridge, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fanout.NewError(fanout.ErrCodeConfiguration, "kafka brokers required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}

	kopts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	}
	if cfg.ClientID != "" {
		kopts = append(kopts, kgo.ClientID(cfg.ClientID))
	}
	if cfg.TLS != nil {
		kopts = append(kopts, kgo.DialTLSConfig(cfg.TLS))
	}

	cl, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fanout.NewErrorWithCause(fanout.ErrCodeBridge, "kafka client init", err)
	}

	return New(kgoClient{cl: cl}, append([]Option{WithTopic(cfg.Topic)}, opts...)...), nil
}

package nats

import (
	"time"

	"github.com/nats-io/nats.go"

	"github.com/coregx/fanout"
)

// Concrete NATS connection-backed Client and constructor.

type Config struct {
	URL           string
	Name          string
	Subject       string
	ConnTimeout   time.Duration
	MaxReconnects int
}

type natsClient struct{ nc *nats.Conn }

func (c natsClient) Publish(subject string, data []byte, headers map[string]string) error {
	msg := &nats.Msg{Subject: subject, Data: data}

	var h nats.Header
	if len(headers) > 0 {
		h = nats.Header{}
		for k, v := range headers {
			h.Add(k, v)
		}
	}

	msg.Header = h

	if err := c.nc.PublishMsg(msg); err != nil {
		return err
	}

	return c.nc.Flush()
}

func (c natsClient) Subscribe(subject string, handler func(data []byte)) (func() error, error) {
	sub, err := c.nc.Subscribe(subject, func(m *nats.Msg) {
		handler(m.Data)
	})
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

func (c natsClient) Close() {
	if c.nc != nil && !c.nc.IsClosed() {
		_ = c.nc.Drain() //nolint:errcheck // best-effort shutdown
		c.nc.Close()
	}
}

// NewWithNATS creates a real NATS connection and returns a Bridge over it.
// Bridge.Close drains and closes the connection.
func NewWithNATS(cfg Config, opts ...Option) (*Bridge, error) {
	if cfg.URL == "" {
		return nil, fanout.NewError(fanout.ErrCodeConfiguration, "nats url required")
	}

	natsOpts := []nats.Option{}
	if cfg.Name != "" {
		natsOpts = append(natsOpts, nats.Name(cfg.Name))
	}

	if cfg.ConnTimeout > 0 {
		natsOpts = append(natsOpts, nats.Timeout(cfg.ConnTimeout))
	}

	if cfg.MaxReconnects != 0 {
		natsOpts = append(natsOpts, nats.MaxReconnects(cfg.MaxReconnects))
	}

	nc, err := nats.Connect(cfg.URL, natsOpts...)
	if err != nil {
		return nil, fanout.NewErrorWithCause(fanout.ErrCodeBridge, "nats connect", err)
	}

	return New(natsClient{nc: nc}, append([]Option{WithSubject(cfg.Subject)}, opts...)...), nil
}

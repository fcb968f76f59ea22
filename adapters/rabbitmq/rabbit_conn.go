package rabbitmq

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/coregx/fanout"
)

// Concrete AMQP connection-backed client. A closed connection is redialled on
// the next Publish or Consume, so a relay retrying Receive recovers after a
// broker restart.

type Config struct {
	URL         string
	Exchange    string
	ConnTimeout time.Duration
}

type amqpClient struct {
	cfg Config

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func (c *amqpClient) channel() (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil && !c.ch.IsClosed() {
		return c.ch, nil
	}
	if c.conn != nil && !c.conn.IsClosed() {
		_ = c.conn.Close()
	}

	conn, err := amqp.DialConfig(c.cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "fanout"},
		Dial:       amqp.DefaultDial(c.cfg.ConnTimeout),
	})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(c.cfg.Exchange, exchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	c.conn = conn
	c.ch = ch
	return ch, nil
}

func (c *amqpClient) Publish(ctx context.Context, m PubMsg) error {
	ch, err := c.channel()
	if err != nil {
		return err
	}

	var h amqp.Table
	if len(m.Headers) > 0 {
		h = amqp.Table{}
		for k, v := range m.Headers {
			h[k] = v
		}
	}

	return ch.PublishWithContext(
		ctx,
		m.Exchange,
		"",
		false,
		false,
		amqp.Publishing{
			Headers:     h,
			ContentType: "application/json",
			Body:        m.Body,
		},
	)
}

func (c *amqpClient) Consume(ctx context.Context, exchange string) (<-chan []byte, error) {
	ch, err := c.channel()
	if err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, err
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return nil, err
	}
	consumer := "fanout-" + q.Name
	deliveries, err := ch.Consume(q.Name, consumer, true, true, false, false, nil)
	if err != nil {
		return nil, err
	}

	// Cancelling the consumer closes deliveries, which ends the copy loop.
	go func() {
		<-ctx.Done()
		_ = ch.Cancel(consumer, false)
	}()

	out := make(chan []byte)
	go func() {
		defer close(out)
		for d := range deliveries {
			select {
			case out <- d.Body:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func (c *amqpClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		if err != nil && err != amqp.ErrClosed {
			return err
		}
	}
	return nil
}

// NewWithAMQP dials RabbitMQ, declares the fanout exchange and returns a Bridge.
func NewWithAMQP(cfg Config, opts ...Option) (*Bridge, error) {
	if cfg.URL == "" {
		return nil, fanout.NewError(fanout.ErrCodeConfiguration, "rabbitmq url required")
	}
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}

	client := &amqpClient{cfg: cfg}
	if _, err := client.channel(); err != nil {
		return nil, fanout.NewErrorWithCause(fanout.ErrCodeBridge, "rabbitmq connect", err)
	}

	return New(client, append([]Option{WithExchange(cfg.Exchange)}, opts...)...), nil
}

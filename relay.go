package fanout

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/coregx/fanout/model"
	"github.com/coregx/fanout/retry"
)

// RelayStats counts envelopes seen by a relay.
type RelayStats struct {
	Received  int64 `json:"received"`
	Published int64 `json:"published"`
	Skipped   int64 `json:"skipped"`
	Failures  int64 `json:"failures"`
}

// Relay consumes envelopes from a bridge and publishes them to local subscribers.
// Envelopes stamped with this node's id are dropped, since the dispatcher
// already delivered them locally before forwarding.
//
// When the bridge subscription fails, the relay reconnects with exponential
// backoff until the retry strategy gives up or the context ends.
type Relay struct {
	bridge        Bridge
	dispatcher    *Dispatcher
	logger        Logger
	retryStrategy retry.Strategy

	received  atomic.Int64
	published atomic.Int64
	skipped   atomic.Int64
	failures  atomic.Int64
}

// RelayOption configures a Relay.
type RelayOption func(*Relay) error

// NewRelay creates a relay with the provided options.
//
// Required options:
//   - WithRelayBridge
//   - WithRelayDispatcher
//   - WithRelayLogger
//
// Optional options:
//   - WithRelayRetryStrategy (default retry.DefaultStrategy())
//
// Example:
//
//	relay, err := fanout.NewRelay(
//	    fanout.WithRelayBridge(bridge),
//	    fanout.WithRelayDispatcher(dispatcher),
//	    fanout.WithRelayLogger(logger),
//	)
//	go relay.Run(ctx)
func NewRelay(opts ...RelayOption) (*Relay, error) {
	r := &Relay{
		retryStrategy: retry.DefaultStrategy(),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply relay option", err)
		}
	}

	if r.bridge == nil {
		return nil, NewError(ErrCodeConfiguration, "Bridge is required (use WithRelayBridge)")
	}
	if r.dispatcher == nil {
		return nil, NewError(ErrCodeConfiguration, "Dispatcher is required (use WithRelayDispatcher)")
	}
	if r.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithRelayLogger)")
	}

	return r, nil
}

// WithRelayBridge sets the bridge to consume.
func WithRelayBridge(bridge Bridge) RelayOption {
	return func(r *Relay) error {
		if bridge == nil {
			return fmt.Errorf("bridge cannot be nil")
		}
		r.bridge = bridge
		return nil
	}
}

// WithRelayDispatcher sets the local dispatcher envelopes are published to.
func WithRelayDispatcher(dispatcher *Dispatcher) RelayOption {
	return func(r *Relay) error {
		if dispatcher == nil {
			return fmt.Errorf("dispatcher cannot be nil")
		}
		r.dispatcher = dispatcher
		return nil
	}
}

// WithRelayLogger sets the relay logger.
func WithRelayLogger(logger Logger) RelayOption {
	return func(r *Relay) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		r.logger = logger
		return nil
	}
}

// WithRelayRetryStrategy sets the reconnect backoff.
func WithRelayRetryStrategy(strategy retry.Strategy) RelayOption {
	return func(r *Relay) error {
		r.retryStrategy = strategy
		return nil
	}
}

// Run consumes the bridge until ctx is canceled, the dispatcher is closed,
// or reconnect attempts are exhausted. It blocks and should typically be run
// in a goroutine. A nil return means ctx ended or the dispatcher closed.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("Bridge relay started")
	defer r.logger.Info("Bridge relay stopped")

	attempt := 0
	for {
		before := r.received.Load()
		err := r.bridge.Receive(ctx, r.handle)

		if ctx.Err() != nil {
			return nil
		}
		if IsTransportUnavailable(err) {
			r.logger.Info("Dispatcher closed, relay exiting")
			return nil
		}

		// A session that carried traffic resets the backoff.
		if r.received.Load() > before {
			attempt = 0
		}
		attempt++
		r.failures.Add(1)

		if !r.retryStrategy.IsRetryable(attempt) {
			r.logger.Errorf("Bridge receive failed %d times, giving up: %v", attempt, err)
			return NewErrorWithCause(ErrCodeBridge, "bridge receive failed", err)
		}

		delay := r.retryStrategy.CalculateRetryDelay(attempt)
		r.logger.Warnf("Bridge receive failed (attempt=%d, next_retry=%v): %v", attempt, delay, err)

		if err := r.retryStrategy.Wait(ctx, attempt); err != nil {
			return nil
		}
	}
}

// Stats returns the relay counters.
func (r *Relay) Stats() RelayStats {
	return RelayStats{
		Received:  r.received.Load(),
		Published: r.published.Load(),
		Skipped:   r.skipped.Load(),
		Failures:  r.failures.Load(),
	}
}

// handle publishes one envelope locally. Only a closed dispatcher stops the relay.
func (r *Relay) handle(ctx context.Context, env model.Envelope) error {
	r.received.Add(1)

	if env.Origin == r.dispatcher.NodeID() {
		r.skipped.Add(1)
		return nil
	}
	if env.Topic == "" {
		r.skipped.Add(1)
		r.logger.Warnf("Dropping envelope without topic from node %s", env.Origin)
		return nil
	}

	report, err := r.dispatcher.PublishLocal(ctx, env.Topic, env.Message)
	if err != nil {
		if IsTransportUnavailable(err) {
			return err
		}
		r.logger.Errorf("Failed to relay message %s (topic=%s, origin=%s): %v",
			env.Message.ID, env.Topic, env.Origin, err)
		return nil
	}

	r.published.Add(1)
	r.logger.Debugf("Relayed message %s from node %s to %d local subscribers (topic=%s)",
		env.Message.ID, env.Origin, report.Len(), env.Topic)
	return nil
}

package fanout

import (
	"fmt"
	"time"
)

// Option configures a Dispatcher.
//
// Example:
//
//	dispatcher, err := fanout.NewDispatcher(
//	    fanout.WithRegistry(registry),
//	    fanout.WithLogger(logger),
//	    fanout.WithSendTimeout(2*time.Second), // optional
//	)
type Option func(*Dispatcher) error

// WithRegistry sets the group registry the dispatcher reads snapshots from
// and prunes on failed delivery.
//
// This is a required option for NewDispatcher.
func WithRegistry(registry *Registry) Option {
	return func(d *Dispatcher) error {
		if registry == nil {
			return fmt.Errorf("registry cannot be nil")
		}
		d.registry = registry
		return nil
	}
}

// WithLogger sets the logger instance for the dispatcher.
// Logger is required and must not be nil.
//
// This is a required option for NewDispatcher.
func WithLogger(logger Logger) Option {
	return func(d *Dispatcher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		d.logger = logger
		return nil
	}
}

// WithSendTimeout bounds each individual send. A send that has not completed
// within the timeout is reported as failed and its connection is evicted.
// Default is 5s.
func WithSendTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) error {
		if timeout <= 0 {
			return fmt.Errorf("send timeout must be > 0, got %v", timeout)
		}
		d.sendTimeout = timeout
		return nil
	}
}

// WithMaxConcurrency caps the number of sends in flight for a single publish.
// Default is 64.
func WithMaxConcurrency(n int) Option {
	return func(d *Dispatcher) error {
		if n <= 0 {
			return fmt.Errorf("max concurrency must be > 0, got %d", n)
		}
		d.maxConcurrency = n
		return nil
	}
}

// WithObserver sets the delivery observer. Defaults to NoOpObserver.
func WithObserver(observer DeliveryObserver) Option {
	return func(d *Dispatcher) error {
		if observer == nil {
			return fmt.Errorf("observer cannot be nil")
		}
		d.observer = observer
		return nil
	}
}

// WithBridge relays every locally published message to other processes.
// The dispatcher owns the bridge and closes it in Close.
func WithBridge(bridge Bridge) Option {
	return func(d *Dispatcher) error {
		if bridge == nil {
			return fmt.Errorf("bridge cannot be nil")
		}
		d.bridge = bridge
		return nil
	}
}

// WithNodeID sets the identity stamped on forwarded envelopes.
// Defaults to a random UUID.
func WithNodeID(id string) Option {
	return func(d *Dispatcher) error {
		if id == "" {
			return fmt.Errorf("node id cannot be empty")
		}
		d.nodeID = id
		return nil
	}
}

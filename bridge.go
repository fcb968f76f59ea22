package fanout

import (
	"context"

	"github.com/coregx/fanout/model"
)

// Bridge relays published messages between processes that each run their own
// registry and dispatcher. It is as volatile as the in-process core: envelopes
// are not stored, and a node that is down when an envelope passes misses it.
//
// Implementations live under adapters/ (inmemory, nats, rabbitmq, kafka).
type Bridge interface {
	// Forward sends env to every other node.
	Forward(ctx context.Context, env model.Envelope) error

	// Receive delivers incoming envelopes to handler until ctx ends or the
	// underlying subscription fails. A non-nil error from handler stops Receive
	// and is returned.
	Receive(ctx context.Context, handler EnvelopeHandler) error

	// Close releases the broker connection.
	Close() error
}

// EnvelopeHandler processes one envelope received from a bridge.
type EnvelopeHandler func(ctx context.Context, env model.Envelope) error

package fanout

import (
	"context"

	"github.com/coregx/fanout/model"
)

// Connection is a client endpoint owned by the transport layer.
// The core keeps a non-owning reference while the connection is subscribed
// and drops it on leave, on disconnect, or after a failed send.
//
// Send must honour ctx: the dispatcher bounds every send with a deadline
// and a send that outlives it is reported as failed.
type Connection interface {
	// ID returns an identifier unique among live connections. The registry
	// refuses a second connection value presenting an id that is already joined.
	ID() string

	// Send delivers one message to the client.
	Send(ctx context.Context, msg model.Message) error
}

// Closable is implemented by connections that can report reaching their
// terminal CLOSED state. Join refuses connections that report closed.
type Closable interface {
	IsClosed() bool
}

// Terminable is implemented by connections the core may close itself.
// After a failed send the dispatcher calls Close so the connection reaches
// CLOSED and cannot rejoin under the same identity. Close must be idempotent
// and report whether this call performed the close.
type Terminable interface {
	Close() bool
}

// ConnectionState is the lifecycle of a connection as seen by the core.
type ConnectionState int32

const (
	// StateUnregistered is a connection the registry has never seen.
	StateUnregistered ConnectionState = iota

	// StateOpen is a connection that may join topics and receive messages.
	StateOpen

	// StateClosed is terminal. A closed connection never receives again.
	StateClosed
)

// String implements fmt.Stringer.
func (s ConnectionState) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func isClosed(conn Connection) bool {
	c, ok := conn.(Closable)
	return ok && c.IsClosed()
}

// Package inmemory provides a process-local fanout.Bridge for tests and
// single-binary deployments that run several dispatchers side by side.
package inmemory

import (
	"context"
	"sync"

	"github.com/coregx/fanout"
	"github.com/coregx/fanout/model"
)

// DefaultBuffer is the per-bridge inbox size.
const DefaultBuffer = 256

// Hub connects bridges. An envelope forwarded by one bridge reaches every other
// bridge attached to the same hub.
type Hub struct {
	mu      sync.RWMutex
	bridges map[*Bridge]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{bridges: make(map[*Bridge]struct{})}
}

// Bridge attaches a new bridge to the hub.
func (h *Hub) Bridge() *Bridge {
	b := &Bridge{
		hub:   h,
		inbox: make(chan model.Envelope, DefaultBuffer),
		done:  make(chan struct{}),
	}
	h.mu.Lock()
	h.bridges[b] = struct{}{}
	h.mu.Unlock()
	return b
}

// Len returns the number of attached bridges.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bridges)
}

func (h *Hub) peers(except *Bridge) []*Bridge {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Bridge, 0, len(h.bridges))
	for b := range h.bridges {
		if b != except {
			out = append(out, b)
		}
	}
	return out
}

func (h *Hub) detach(b *Bridge) {
	h.mu.Lock()
	delete(h.bridges, b)
	h.mu.Unlock()
}

// Bridge is one node's attachment to a Hub.
type Bridge struct {
	hub   *Hub
	inbox chan model.Envelope

	closeOnce sync.Once
	done      chan struct{}
}

var _ fanout.Bridge = (*Bridge)(nil)

// Forward delivers env to the inbox of every other bridge on the hub.
// It blocks while a peer's inbox is full, until ctx ends.
func (b *Bridge) Forward(ctx context.Context, env model.Envelope) error {
	if b.isClosed() {
		return fanout.ErrTransportUnavailable
	}
	for _, peer := range b.hub.peers(b) {
		select {
		case peer.inbox <- env:
		case <-peer.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Receive hands inbox envelopes to handler until ctx ends or the bridge is closed.
func (b *Bridge) Receive(ctx context.Context, handler fanout.EnvelopeHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return fanout.ErrTransportUnavailable
		case env := <-b.inbox:
			if err := handler(ctx, env); err != nil {
				return err
			}
		}
	}
}

// Close detaches the bridge from the hub. It is safe to call more than once.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.hub.detach(b)
		close(b.done)
	})
	return nil
}

func (b *Bridge) isClosed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Package sse serves fanout sessions as server-sent event streams.
//
// Each published message becomes one event named after its type, with the
// JSON message as data:
//
//	id: 6f1c...
//	event: help
//	data: {"id":"6f1c...","type":"help","message":"..."}
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coregx/fanout"
	"github.com/coregx/fanout/model"
)

const (
	// DefaultHeartbeat is the interval between keep-alive comment frames.
	DefaultHeartbeat = 15 * time.Second

	// DefaultBuffer is how many messages may wait for the stream writer.
	DefaultBuffer = 64

	// DefaultRetry is the reconnect delay suggested to EventSource clients.
	DefaultRetry = 2 * time.Second
)

// TopicsFunc resolves the topics a stream subscribes to.
type TopicsFunc func(r *http.Request) ([]string, error)

// QueryTopics reads topics from repeated ?topic= query parameters.
func QueryTopics(r *http.Request) ([]string, error) {
	topics := r.URL.Query()["topic"]
	if len(topics) == 0 {
		return nil, fanout.NewError(fanout.ErrCodeValidation, "at least one topic is required")
	}
	return topics, nil
}

// Handler streams messages for the request's topics.
type Handler struct {
	dispatcher *fanout.Dispatcher
	logger     fanout.Logger
	topics     TopicsFunc
	heartbeat  time.Duration
	buffer     int
	retry      time.Duration
}

// Option configures a Handler.
type Option func(*Handler) error

// WithLogger sets the logger instance.
func WithLogger(logger fanout.Logger) Option {
	return func(h *Handler) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		h.logger = logger
		return nil
	}
}

// WithTopics overrides QueryTopics.
func WithTopics(fn TopicsFunc) Option {
	return func(h *Handler) error {
		if fn == nil {
			return fmt.Errorf("topics func cannot be nil")
		}
		h.topics = fn
		return nil
	}
}

// WithHeartbeat overrides DefaultHeartbeat.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Handler) error {
		if d <= 0 {
			return fmt.Errorf("heartbeat must be positive, got %v", d)
		}
		h.heartbeat = d
		return nil
	}
}

// WithBuffer overrides DefaultBuffer.
func WithBuffer(n int) Option {
	return func(h *Handler) error {
		if n <= 0 {
			return fmt.Errorf("buffer must be positive, got %d", n)
		}
		h.buffer = n
		return nil
	}
}

// NewHandler creates an SSE handler bound to dispatcher.
func NewHandler(dispatcher *fanout.Dispatcher, opts ...Option) (*Handler, error) {
	if dispatcher == nil {
		return nil, fanout.NewError(fanout.ErrCodeConfiguration, "Dispatcher is required")
	}

	h := &Handler{
		dispatcher: dispatcher,
		logger:     &fanout.NoopLogger{},
		topics:     QueryTopics,
		heartbeat:  DefaultHeartbeat,
		buffer:     DefaultBuffer,
		retry:      DefaultRetry,
	}

	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, fanout.NewErrorWithCause(fanout.ErrCodeConfiguration, "failed to apply sse option", err)
		}
	}

	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	topics, err := h.topics(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	outbox := make(chan model.Message, h.buffer)

	// The sender only hands off to the writer loop below; a full outbox
	// blocks until the dispatcher's send deadline.
	session, err := fanout.NewSession(h.dispatcher, func(sendCtx context.Context, msg model.Message) error {
		select {
		case outbox <- msg:
			return nil
		case <-ctx.Done():
			return fanout.ErrConnectionClosed
		case <-sendCtx.Done():
			return sendCtx.Err()
		}
	})
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	defer session.Close()

	if err := session.Open(topics...); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	fmt.Fprintf(w, "retry: %d\n\n", h.retry.Milliseconds())
	fmt.Fprintf(w, "event: ready\ndata: {\"sessionId\":%q}\n\n", session.ID())
	flusher.Flush()

	h.logger.Infof("SSE stream opened: id=%s, topics=%v", session.ID(), topics)
	defer h.logger.Infof("SSE stream closed: id=%s", session.ID())

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-session.Done():
			return

		case <-ticker.C:
			// comment frame keeps intermediaries from timing out the connection
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case msg := <-outbox:
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Errorf("SSE marshal error for message %s: %v", msg.ID, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", msg.ID, msg.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// Package ws serves fanout sessions over websocket connections.
//
// Clients receive every message published to their topics as a JSON
// model.Message. They may send control frames to change topics:
//
//	{"action": "join", "topic": "group.7"}
//	{"action": "leave", "topic": "group.7"}
//
// Handlers built WithChat also accept chat lines, published as chat messages
// to the topic named in the frame or, without one, to the topics joined on open:
//
//	{"action": "send", "message": "hello", "username": "alice"}
//
// Every control frame is answered with a system message whose attributes
// carry the action, the topic and, on failure, the error.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/coregx/fanout"
	"github.com/coregx/fanout/model"
)

// Control frame actions.
const (
	ActionJoin  = "join"
	ActionLeave = "leave"
	ActionPing  = "ping"
	ActionSend  = "send"
)

// Frame is a control frame sent by a client.
type Frame struct {
	Action   string `json:"action"`
	Topic    string `json:"topic"`
	Message  string `json:"message,omitempty"`
	Username string `json:"username,omitempty"`
}

// TopicsFunc resolves the topics a new connection joins on open.
type TopicsFunc func(r *http.Request) ([]string, error)

// JoinPolicy decides whether a client may join topic through a control frame.
type JoinPolicy func(r *http.Request, topic string) bool

// Handler upgrades HTTP requests to websocket sessions.
type Handler struct {
	dispatcher    *fanout.Dispatcher
	logger        fanout.Logger
	topics        TopicsFunc
	joinPolicy    JoinPolicy
	chat          bool
	acceptOptions *websocket.AcceptOptions
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

// WithTopics sets the topics joined on open.
func WithTopics(fn TopicsFunc) Option {
	return func(h *Handler) error {
		if fn == nil {
			return fmt.Errorf("topics func cannot be nil")
		}
		h.topics = fn
		return nil
	}
}

// WithStaticTopics joins every connection to the same topics.
func WithStaticTopics(topics ...string) Option {
	return WithTopics(func(*http.Request) ([]string, error) {
		return topics, nil
	})
}

// WithJoinPolicy allows join frames for the topics the policy accepts.
// Without a policy join frames are refused.
func WithJoinPolicy(policy JoinPolicy) Option {
	return func(h *Handler) error {
		h.joinPolicy = policy
		return nil
	}
}

// WithChat lets clients publish chat lines with send frames.
func WithChat() Option {
	return func(h *Handler) error {
		h.chat = true
		return nil
	}
}

// WithAcceptOptions passes options to websocket.Accept (origin patterns, compression).
func WithAcceptOptions(opts *websocket.AcceptOptions) Option {
	return func(h *Handler) error {
		h.acceptOptions = opts
		return nil
	}
}

// NewHandler creates a websocket handler bound to dispatcher.
func NewHandler(dispatcher *fanout.Dispatcher, opts ...Option) (*Handler, error) {
	if dispatcher == nil {
		return nil, fanout.NewError(fanout.ErrCodeConfiguration, "Dispatcher is required")
	}

	h := &Handler{
		dispatcher: dispatcher,
		logger:     &fanout.NoopLogger{},
		topics:     func(*http.Request) ([]string, error) { return nil, nil },
	}

	for _, opt := range opts {
		if err := opt(h); err != nil {
			return nil, fanout.NewErrorWithCause(fanout.ErrCodeConfiguration, "failed to apply websocket option", err)
		}
	}

	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topics, err := h.topics(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, h.acceptOptions)
	if err != nil {
		h.logger.Warnf("Failed to accept websocket connection: %v", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	ctx := r.Context()
	session, err := fanout.NewSession(h.dispatcher, func(ctx context.Context, msg model.Message) error {
		return wsjson.Write(ctx, conn, msg)
	})
	if err != nil {
		h.logger.Errorf("Failed to create session: %v", err)
		_ = conn.Close(websocket.StatusInternalError, "session unavailable")
		return
	}
	defer session.Close()

	if err := session.Open(topics...); err != nil {
		h.logger.Warnf("Session %s failed to open: %v", session.ID(), err)
		_ = conn.Close(websocket.StatusPolicyViolation, "cannot join topics")
		return
	}

	h.logger.Infof("Websocket session opened: id=%s, topics=%v", session.ID(), topics)
	defer h.logger.Infof("Websocket session closed: id=%s", session.ID())

	welcome := model.NewMessage(model.MessageTypeSystem, "connected", "").
		WithAttribute("sessionId", session.ID())
	if err := session.Send(ctx, welcome); err != nil {
		return
	}

	// A session closed by the dispatcher after a failed send ends the read
	// loop, which closes the socket so the client reconnects.
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-session.Done():
			cancel()
		case <-readCtx.Done():
		}
	}()

	h.readLoop(readCtx, r, conn, session, topics)
}

func (h *Handler) readLoop(ctx context.Context, r *http.Request, conn *websocket.Conn, session *fanout.Session, rooms []string) {
	for {
		var frame Frame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				h.logger.Debugf("Websocket read ended for %s: %v", session.ID(), err)
			}
			return
		}

		if err := session.Send(ctx, h.handleFrame(ctx, r, session, rooms, frame)); err != nil {
			return
		}
	}
}

func (h *Handler) handleFrame(ctx context.Context, r *http.Request, session *fanout.Session, rooms []string, frame Frame) model.Message {
	var err error
	switch frame.Action {
	case ActionSend:
		if !h.chat {
			err = fmt.Errorf("chat not enabled")
			break
		}
		err = h.publishChat(ctx, session, rooms, frame)
	case ActionJoin:
		if h.joinPolicy == nil || !h.joinPolicy(r, frame.Topic) {
			err = fmt.Errorf("join not allowed: %s", frame.Topic)
			break
		}
		err = session.Join(frame.Topic)
	case ActionLeave:
		session.Leave(frame.Topic)
	case ActionPing:
	default:
		err = fmt.Errorf("unknown action: %q", frame.Action)
	}

	ack := model.NewMessage(model.MessageTypeSystem, "ack", "").
		WithAttribute("action", frame.Action).
		WithAttribute("topic", frame.Topic)
	if err != nil {
		ack = ack.WithAttribute("error", err.Error())
	}
	return ack
}

// publishChat publishes a chat line to topics the session is subscribed to.
func (h *Handler) publishChat(ctx context.Context, session *fanout.Session, rooms []string, frame Frame) error {
	targets := rooms
	if frame.Topic != "" {
		targets = []string{frame.Topic}
	}
	if len(targets) == 0 {
		return fmt.Errorf("no topic to send to")
	}

	joined := make(map[string]struct{})
	for _, topic := range session.Topics() {
		joined[topic] = struct{}{}
	}
	for _, topic := range targets {
		if _, ok := joined[topic]; !ok {
			return fmt.Errorf("not subscribed to %s", topic)
		}
	}

	msg := model.NewMessage(model.MessageTypeChat, frame.Message, frame.Username)
	if err := msg.Validate(); err != nil {
		return err
	}

	for _, topic := range targets {
		if _, err := h.dispatcher.Publish(ctx, topic, msg); err != nil {
			return err
		}
	}

	h.logger.Debugf("Chat message %s from session %s to %v", msg.ID, session.ID(), targets)
	return nil
}

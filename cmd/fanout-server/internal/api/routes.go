package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/coregx/fanout"
	"github.com/coregx/fanout/model"
	"github.com/coregx/fanout/transport/sse"
	"github.com/coregx/fanout/transport/ws"
)

// RequestTimeout bounds REST calls. Streaming routes are not subject to it.
const RequestTimeout = 15 * time.Second

// RegisterRoutes mounts the REST API under /api/v1 and the streaming
// endpoints under /ws and /events.
func (h *Handler) RegisterRoutes(r chi.Router) error {
	notifications, err := ws.NewHandler(h.dispatcher,
		ws.WithLogger(h.logger),
		ws.WithTopics(notificationTopics),
		ws.WithJoinPolicy(CanWatch),
	)
	if err != nil {
		return err
	}

	interfaith, err := ws.NewHandler(h.dispatcher,
		ws.WithLogger(h.logger),
		ws.WithStaticTopics(model.TopicInterfaith),
		ws.WithChat(),
	)
	if err != nil {
		return err
	}

	groups, err := ws.NewHandler(h.dispatcher,
		ws.WithLogger(h.logger),
		ws.WithTopics(groupTopics),
		ws.WithJoinPolicy(CanWatch),
		ws.WithChat(),
	)
	if err != nil {
		return err
	}

	events, err := sse.NewHandler(h.dispatcher,
		sse.WithLogger(h.logger),
		sse.WithTopics(eventTopics),
	)
	if err != nil {
		return err
	}

	r.Method(http.MethodGet, "/ws/notifications", notifications)
	r.Method(http.MethodGet, "/ws/interfaith", interfaith)
	r.Method(http.MethodGet, "/ws/groups/{groupID}", groups)
	r.Method(http.MethodGet, "/events", events)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(RequestTimeout))

		r.Get("/health", h.HandleHealth)
		r.Get("/stats", h.HandleStats)
		r.Post("/publish", h.HandlePublish)
		r.Post("/help-alerts", h.HandleHelpAlert)
		r.Post("/groups/{groupID}/messages", h.HandleGroupMessage)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.HandleListNotifications)
			r.Post("/", h.HandleNotify)
			r.Post("/read-all", h.HandleMarkAllRead)
			r.Post("/{notificationID}/read", h.HandleMarkRead)
			r.Delete("/{notificationID}", h.HandleDeleteNotification)
		})
	})

	return nil
}

// CanWatch reports whether the caller may subscribe to topic.
// Private user topics are visible only to their owner.
func CanWatch(r *http.Request, topic string) bool {
	if err := model.ValidateTopic(topic); err != nil {
		return false
	}
	if !strings.HasPrefix(topic, "user.") {
		return true
	}
	userID, ok := UserID(r)
	return ok && topic == model.UserTopic(userID)
}

// notificationTopics joins the site-wide feed plus the caller's private topic.
func notificationTopics(r *http.Request) ([]string, error) {
	topics := []string{model.TopicNotifications}
	if userID, ok := UserID(r); ok {
		topics = append(topics, model.UserTopic(userID))
	}
	return topics, nil
}

func groupTopics(r *http.Request) ([]string, error) {
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil || groupID <= 0 {
		return nil, fanout.NewError(fanout.ErrCodeValidation, "invalid group id")
	}
	return []string{model.GroupTopic(groupID)}, nil
}

func eventTopics(r *http.Request) ([]string, error) {
	topics, err := sse.QueryTopics(r)
	if err != nil {
		return nil, err
	}
	for _, topic := range topics {
		if !CanWatch(r, topic) {
			return nil, fanout.NewError(fanout.ErrCodeValidation, "topic not allowed: "+topic)
		}
	}
	return topics, nil
}

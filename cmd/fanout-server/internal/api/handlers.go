// Package api provides HTTP handlers for the fanout server REST API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coregx/fanout"
	"github.com/coregx/fanout/model"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// userIDHeader carries the authenticated user id, set by the fronting proxy.
const userIDHeader = "X-User-ID"

// Handler holds dependencies for API handlers.
type Handler struct {
	dispatcher *fanout.Dispatcher
	publisher  *fanout.AlertPublisher
	center     *fanout.NotificationCenter
	logger     fanout.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	dispatcher *fanout.Dispatcher,
	publisher *fanout.AlertPublisher,
	center *fanout.NotificationCenter,
	logger fanout.Logger,
) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		publisher:  publisher,
		center:     center,
		logger:     logger,
	}
}

// PublishRequest represents a raw publish request.
type PublishRequest struct {
	Topic      string            `json:"topic"`
	Type       model.MessageType `json:"type"`
	Message    string            `json:"message"`
	Sender     string            `json:"sender"`
	Attributes model.Attributes  `json:"attributes"`
}

// GroupMessageRequest represents a chat line posted to a group.
type GroupMessageRequest struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// ReportResponse summarises a delivery report.
type ReportResponse struct {
	Topic      string   `json:"topic"`
	MessageID  string   `json:"messageId"`
	Recipients int      `json:"recipients"`
	Delivered  int      `json:"delivered"`
	Failed     int      `json:"failed"`
	FailedIDs  []string `json:"failedIds"`
}

// HelpAlertResponse is returned after a help alert is stored.
type HelpAlertResponse struct {
	Alert        model.HelpAlert `json:"alert"`
	Report       *ReportResponse `json:"report,omitempty"`
	PublishError string          `json:"publishError,omitempty"`
}

// NotifyResponse is returned after a notification is stored.
type NotifyResponse struct {
	Notification model.Notification `json:"notification"`
	Report       *ReportResponse    `json:"report,omitempty"`
	PublishError string             `json:"publishError,omitempty"`
}

// NotificationListResponse is a page of the user's notifications.
type NotificationListResponse struct {
	Notifications []model.Notification `json:"notifications"`
	Unread        int                  `json:"unread"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse represents a success response.
type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// HandlePublish handles POST /api/v1/publish
//
// With ?async=true the message is dispatched in the background and the
// response is 202 without a report.
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	if err := model.ValidateTopic(req.Topic); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid topic: "+err.Error(), fanout.ErrCodeValidation)
		return
	}
	if req.Type == "" {
		req.Type = model.MessageTypeNotification
	}

	msg := model.NewMessage(req.Type, req.Message, req.Sender)
	for k, v := range req.Attributes {
		msg = msg.WithAttribute(k, v)
	}
	if err := msg.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid message: "+err.Error(), fanout.ErrCodeValidation)
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		results := h.dispatcher.PublishAsync(r.Context(), req.Topic, msg)
		go h.logAsync(req.Topic, msg.ID, results)
		h.respondSuccess(w, http.StatusAccepted, map[string]string{"messageId": msg.ID}, "Message accepted")
		return
	}

	report, err := h.dispatcher.Publish(r.Context(), req.Topic, msg)
	if err != nil {
		h.logger.Errorf("Failed to publish message: %v", err)
		h.respondDomainError(w, err, "Failed to publish message")
		return
	}

	h.respondSuccess(w, http.StatusCreated, summarise(report), "Message published successfully")
}

// HandleHelpAlert handles POST /api/v1/help-alerts
func (h *Handler) HandleHelpAlert(w http.ResponseWriter, r *http.Request) {
	var req fanout.HelpAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	result, err := h.publisher.SubmitHelpAlert(r.Context(), req)
	if err != nil {
		h.respondDomainError(w, err, "Failed to submit help alert")
		return
	}

	resp := HelpAlertResponse{Alert: result.Alert}
	if result.Report != nil {
		resp.Report = summarise(result.Report)
	}
	if result.PublishErr != nil {
		resp.PublishError = result.PublishErr.Error()
	}

	h.respondSuccess(w, http.StatusCreated, resp, "Help alert submitted")
}

// HandleGroupMessage handles POST /api/v1/groups/{groupID}/messages
func (h *Handler) HandleGroupMessage(w http.ResponseWriter, r *http.Request) {
	groupID, ok := h.pathID(w, r, "groupID")
	if !ok {
		return
	}

	var req GroupMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	report, err := h.publisher.PostGroupMessage(r.Context(), model.GroupMessage{
		GroupID:  groupID,
		Username: req.Username,
		Text:     req.Message,
	})
	if err != nil {
		h.respondDomainError(w, err, "Failed to post message")
		return
	}

	h.respondSuccess(w, http.StatusCreated, summarise(report), "")
}

// HandleNotify handles POST /api/v1/notifications
//
// Accepts a single notification or an array of them.
func (h *Handler) HandleNotify(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	var batch []fanout.NotifyRequest
	if err := json.Unmarshal(raw, &batch); err == nil {
		results, err := h.publisher.NotifyMany(r.Context(), batch)
		if err != nil {
			h.respondDomainError(w, err, "Failed to send notifications")
			return
		}
		resp := make([]NotifyResponse, 0, len(results))
		for _, result := range results {
			resp = append(resp, toNotifyResponse(result))
		}
		h.respondSuccess(w, http.StatusCreated, resp, "")
		return
	}

	var req fanout.NotifyRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "INVALID_JSON")
		return
	}

	result, err := h.publisher.Notify(r.Context(), req)
	if err != nil {
		h.respondDomainError(w, err, "Failed to send notification")
		return
	}

	h.respondSuccess(w, http.StatusCreated, toNotifyResponse(result), "")
}

// HandleListNotifications handles GET /api/v1/notifications?limit=
func (h *Handler) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer", fanout.ErrCodeValidation)
			return
		}
		limit = n
	}

	notifications, err := h.center.List(r.Context(), userID, limit)
	if err != nil {
		h.respondDomainError(w, err, "Failed to list notifications")
		return
	}

	unread, err := h.center.UnreadCount(r.Context(), userID)
	if err != nil {
		h.respondDomainError(w, err, "Failed to count notifications")
		return
	}

	h.respondSuccess(w, http.StatusOK, NotificationListResponse{
		Notifications: notifications,
		Unread:        unread,
	}, "")
}

// HandleMarkRead handles POST /api/v1/notifications/{notificationID}/read
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "notificationID")
	if !ok {
		return
	}

	n, err := h.center.MarkRead(r.Context(), userID, id)
	if err != nil {
		h.respondDomainError(w, err, "Failed to mark notification as read")
		return
	}

	h.respondSuccess(w, http.StatusOK, n, "")
}

// HandleMarkAllRead handles POST /api/v1/notifications/read-all
func (h *Handler) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	if err := h.center.MarkAllRead(r.Context(), userID); err != nil {
		h.respondDomainError(w, err, "Failed to mark notifications as read")
		return
	}

	h.respondSuccess(w, http.StatusOK, nil, "All notifications marked as read")
}

// HandleDeleteNotification handles DELETE /api/v1/notifications/{notificationID}
func (h *Handler) HandleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r, "notificationID")
	if !ok {
		return
	}

	if err := h.center.Delete(r.Context(), userID, id); err != nil {
		h.respondDomainError(w, err, "Failed to delete notification")
		return
	}

	h.respondSuccess(w, http.StatusOK, nil, "Notification deleted")
}

// HandleStats handles GET /api/v1/stats
func (h *Handler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	registry := h.dispatcher.Registry()

	h.respondSuccess(w, http.StatusOK, map[string]interface{}{
		"nodeId":   h.dispatcher.NodeID(),
		"registry": registry.Stats(),
		"topics":   registry.Topics(),
	}, "")
}

// HandleHealth handles GET /api/v1/health
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"nodeId":    h.dispatcher.NodeID(),
	}

	h.respondSuccess(w, http.StatusOK, health, "")
}

func (h *Handler) logAsync(topic, messageID string, results <-chan fanout.PublishResult) {
	res := <-results
	if res.Err != nil {
		h.logger.Errorf("Async publish of %s to %s failed: %v", messageID, topic, res.Err)
		return
	}
	h.logger.Debugf("Async publish of %s to %s: delivered=%d, failed=%d",
		messageID, topic, res.Report.Delivered(), res.Report.Failed())
}

// requireUser reads the caller's user id or answers 401.
func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := UserID(r)
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "user id is required", "UNAUTHORIZED")
		return 0, false
	}
	return userID, true
}

// pathID parses a positive integer URL parameter or answers 400.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusBadRequest, "invalid "+name, fanout.ErrCodeValidation)
		return 0, false
	}
	return id, true
}

// respondDomainError maps fanout error codes to HTTP statuses.
func (h *Handler) respondDomainError(w http.ResponseWriter, err error, fallback string) {
	var ferr *fanout.Error
	if !errors.As(err, &ferr) {
		h.respondError(w, http.StatusInternalServerError, fallback, "INTERNAL_ERROR")
		return
	}

	switch ferr.Code {
	case fanout.ErrCodeValidation:
		h.respondError(w, http.StatusBadRequest, ferr.Error(), ferr.Code)
	case fanout.ErrCodeNoData:
		h.respondError(w, http.StatusNotFound, ferr.Message, ferr.Code)
	case fanout.ErrCodeTransportUnavailable:
		h.respondError(w, http.StatusServiceUnavailable, ferr.Message, ferr.Code)
	default:
		h.logger.Errorf("%s: %v", fallback, err)
		h.respondError(w, http.StatusInternalServerError, fallback, ferr.Code)
	}
}

// respondError sends an error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Code:    code,
		Message: message,
	})
}

// respondSuccess sends a success response.
func (h *Handler) respondSuccess(w http.ResponseWriter, status int, data interface{}, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// UserID returns the caller's user id from the X-User-ID header, falling
// back to the userId query parameter for browser websocket and SSE clients.
func UserID(r *http.Request) (int64, bool) {
	raw := r.Header.Get(userIDHeader)
	if raw == "" {
		raw = r.URL.Query().Get("userId")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func summarise(report *model.DeliveryReport) *ReportResponse {
	return &ReportResponse{
		Topic:      report.Topic,
		MessageID:  report.MessageID,
		Recipients: report.Len(),
		Delivered:  report.Delivered(),
		Failed:     report.Failed(),
		FailedIDs:  report.FailedIDs(),
	}
}

func toNotifyResponse(result *fanout.NotifyResult) NotifyResponse {
	resp := NotifyResponse{Notification: result.Notification}
	if result.Report != nil {
		resp.Report = summarise(result.Report)
	}
	if result.PublishErr != nil {
		resp.PublishError = result.PublishErr.Error()
	}
	return resp
}

package model

import "time"

// Default values applied to notifications created without a title or type.
const (
	DefaultNotificationTitle = "Untitled"
	DefaultNotificationType  = "General"
)

// Notification is a persisted, per-user record shown in the notification center.
// It is produced by the domain event source alongside the transient broadcast;
// the fan-out core itself never reads or writes it.
type Notification struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"userId" db:"user_id"`
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	NotificationType string    `json:"notificationType" db:"notification_type"`
	IsRead           bool      `json:"isRead" db:"is_read"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for Notification.
func (n Notification) TableName() string {
	return tablePrefix + "notification"
}

// NewNotification creates an unread notification, filling in the default title and type.
func NewNotification(userID int64, title, message, notificationType string) Notification {
	if title == "" {
		title = DefaultNotificationTitle
	}
	if notificationType == "" {
		notificationType = DefaultNotificationType
	}
	return Notification{
		UserID:           userID,
		Title:            title,
		Message:          message,
		NotificationType: notificationType,
		IsRead:           false,
		CreatedAt:        time.Now(),
	}
}

// MarkRead flags the notification as read. Returns false if it already was.
func (n *Notification) MarkRead() bool {
	if n.IsRead {
		return false
	}
	n.IsRead = true
	return true
}

// BelongsTo reports whether the notification is owned by userID.
func (n Notification) BelongsTo(userID int64) bool {
	return n.UserID == userID
}

// ToMessage renders the notification as a transient broadcast payload.
func (n Notification) ToMessage() Message {
	return NewMessage(MessageTypeNotification, n.Message, "").
		WithAttribute("title", n.Title).
		WithAttribute("notificationType", n.NotificationType)
}

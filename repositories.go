package fanout

import (
	"context"

	"github.com/coregx/fanout/model"
)

// NotificationRepository defines the persistence interface for per-user notifications.
//
// Implementations must be safe for concurrent use.
type NotificationRepository interface {
	// Load retrieves a notification by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Notification, error)

	// Save creates a new notification (if ID=0) or updates an existing one.
	// Returns the saved notification with populated ID.
	Save(ctx context.Context, n model.Notification) (model.Notification, error)

	// Delete permanently removes a notification.
	Delete(ctx context.Context, n model.Notification) error

	// FindByUser returns the user's notifications, newest first, at most limit rows.
	// Returns ErrNoData if the user has none.
	FindByUser(ctx context.Context, userID int64, limit int) ([]model.Notification, error)

	// CountUnread returns how many of the user's notifications are unread.
	CountUnread(ctx context.Context, userID int64) (int, error)

	// MarkAllRead flags every unread notification of the user as read.
	MarkAllRead(ctx context.Context, userID int64) error
}

// HelpAlertRepository defines the persistence interface for help alerts.
type HelpAlertRepository interface {
	// Load retrieves a help alert by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.HelpAlert, error)

	// Save creates a new help alert (if ID=0) or updates an existing one.
	Save(ctx context.Context, h model.HelpAlert) (model.HelpAlert, error)

	// FindRecent returns the newest alerts, at most limit rows.
	// Returns ErrNoData if there are none.
	FindRecent(ctx context.Context, limit int) ([]model.HelpAlert, error)
}

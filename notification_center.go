package fanout

import (
	"context"
	"fmt"

	"github.com/coregx/fanout/model"
)

// DefaultNotificationPageSize is used by List when no limit is given.
const DefaultNotificationPageSize = 50

// NotificationCenter manages a user's stored notifications: listing,
// marking as read, deleting and counting unread ones.
//
// Every operation is scoped to the requesting user. A notification owned by
// someone else is reported as not found.
//
// Thread safety: Safe for concurrent use.
type NotificationCenter struct {
	notificationRepo NotificationRepository
	logger           Logger
}

// NotificationCenterOption is a function that configures a NotificationCenter.
type NotificationCenterOption func(*NotificationCenter) error

// NewNotificationCenter creates a new NotificationCenter with the provided options.
//
// Required options:
//   - WithNotificationCenterRepository: notification repository
//   - WithNotificationCenterLogger: logger instance
func NewNotificationCenter(opts ...NotificationCenterOption) (*NotificationCenter, error) {
	nc := &NotificationCenter{}

	for _, opt := range opts {
		if err := opt(nc); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply notification center option", err)
		}
	}

	if nc.notificationRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "NotificationRepository is required")
	}
	if nc.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required")
	}

	return nc, nil
}

// WithNotificationCenterRepository sets the notification repository.
func WithNotificationCenterRepository(repo NotificationRepository) NotificationCenterOption {
	return func(nc *NotificationCenter) error {
		if repo == nil {
			return fmt.Errorf("notificationRepo cannot be nil")
		}
		nc.notificationRepo = repo
		return nil
	}
}

// WithNotificationCenterLogger sets the logger instance.
func WithNotificationCenterLogger(logger Logger) NotificationCenterOption {
	return func(nc *NotificationCenter) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		nc.logger = logger
		return nil
	}
}

// List returns the user's notifications, newest first.
// A limit <= 0 means DefaultNotificationPageSize.
//
// Returns empty slice if the user has none (not an error).
func (nc *NotificationCenter) List(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	if userID <= 0 {
		return nil, NewError(ErrCodeValidation, "user ID is required")
	}
	if limit <= 0 {
		limit = DefaultNotificationPageSize
	}

	notifications, err := nc.notificationRepo.FindByUser(ctx, userID, limit)
	if err != nil {
		if IsNoData(err) {
			return []model.Notification{}, nil
		}
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to load notifications", err)
	}

	return notifications, nil
}

// MarkRead flags one of the user's notifications as read.
// Marking an already-read notification is not an error.
func (nc *NotificationCenter) MarkRead(ctx context.Context, userID, notificationID int64) (*model.Notification, error) {
	n, err := nc.loadOwned(ctx, userID, notificationID)
	if err != nil {
		return nil, err
	}

	if !n.MarkRead() {
		nc.logger.Debugf("Notification already read: id=%d", notificationID)
		return &n, nil
	}

	n, err = nc.notificationRepo.Save(ctx, n)
	if err != nil {
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to save notification", err)
	}

	nc.logger.Infof("Notification marked as read: id=%d, user=%d", notificationID, userID)

	return &n, nil
}

// MarkAllRead flags every notification of the user as read.
func (nc *NotificationCenter) MarkAllRead(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return NewError(ErrCodeValidation, "user ID is required")
	}

	if err := nc.notificationRepo.MarkAllRead(ctx, userID); err != nil {
		return NewErrorWithCause(ErrCodeDatabase, "failed to mark notifications as read", err)
	}

	nc.logger.Infof("All notifications marked as read: user=%d", userID)

	return nil
}

// Delete permanently removes one of the user's notifications.
func (nc *NotificationCenter) Delete(ctx context.Context, userID, notificationID int64) error {
	n, err := nc.loadOwned(ctx, userID, notificationID)
	if err != nil {
		return err
	}

	if err := nc.notificationRepo.Delete(ctx, n); err != nil {
		return NewErrorWithCause(ErrCodeDatabase, "failed to delete notification", err)
	}

	nc.logger.Infof("Notification deleted: id=%d, user=%d", notificationID, userID)

	return nil
}

// UnreadCount returns the number of unread notifications for the user.
func (nc *NotificationCenter) UnreadCount(ctx context.Context, userID int64) (int, error) {
	if userID <= 0 {
		return 0, NewError(ErrCodeValidation, "user ID is required")
	}

	count, err := nc.notificationRepo.CountUnread(ctx, userID)
	if err != nil {
		return 0, NewErrorWithCause(ErrCodeDatabase, "failed to count unread notifications", err)
	}

	return count, nil
}

func (nc *NotificationCenter) loadOwned(ctx context.Context, userID, notificationID int64) (model.Notification, error) {
	if userID <= 0 {
		return model.Notification{}, NewError(ErrCodeValidation, "user ID is required")
	}
	if notificationID <= 0 {
		return model.Notification{}, NewError(ErrCodeValidation, "notification ID is required")
	}

	n, err := nc.notificationRepo.Load(ctx, notificationID)
	if err != nil {
		if IsNoData(err) {
			return model.Notification{}, NewErrorWithCause(ErrCodeNoData, fmt.Sprintf("notification not found: %d", notificationID), err)
		}
		return model.Notification{}, NewErrorWithCause(ErrCodeDatabase, "failed to load notification", err)
	}

	if !n.BelongsTo(userID) {
		nc.logger.Warnf("Notification %d requested by user %d but owned by %d", notificationID, userID, n.UserID)
		return model.Notification{}, NewError(ErrCodeNoData, fmt.Sprintf("notification not found: %d", notificationID))
	}

	return n, nil
}

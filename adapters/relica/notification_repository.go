package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/fanout"
	"github.com/coregx/fanout/model"
	"github.com/coregx/relica"
)

// NotificationRepository implements fanout.NotificationRepository using Relica.
type NotificationRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewNotificationRepository creates a new NotificationRepository with default table prefix.
func NewNotificationRepository(sqlDB *sql.DB, driverName string) *NotificationRepository {
	return &NotificationRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: DefaultTablePrefix}
}

// NewNotificationRepositoryWithPrefix creates a new NotificationRepository with custom table prefix.
func NewNotificationRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *NotificationRepository {
	return &NotificationRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *NotificationRepository) tableName() string {
	return r.tablePrefix + "notification"
}

// Load retrieves a notification by ID.
func (r *NotificationRepository) Load(ctx context.Context, id int64) (model.Notification, error) {
	var n model.Notification
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return n, fanout.ErrNoData
	}
	if err != nil {
		return n, fanout.NewErrorWithCause(fanout.ErrCodeDatabase, "failed to load notification", err)
	}
	return n, nil
}

// Save creates or updates a notification.
func (r *NotificationRepository) Save(ctx context.Context, n model.Notification) (model.Notification, error) {
	if n.ID == 0 {
		err := r.db.WithContext(ctx).Model(&n).Table(r.tableName()).Insert()
		if err != nil {
			return n, fanout.NewErrorWithCause(fanout.ErrCodeDatabase, "failed to insert notification", err)
		}
		return n, nil
	}

	err := r.db.WithContext(ctx).Model(&n).Table(r.tableName()).Update()
	if err != nil {
		return n, fanout.NewErrorWithCause(fanout.ErrCodeDatabase, "failed to update notification", err)
	}
	return n, nil
}

// Delete removes a notification.
func (r *NotificationRepository) Delete(ctx context.Context, n model.Notification) error {
	err := r.db.WithContext(ctx).Model(&n).Table(r.tableName()).Delete()
	if err != nil {
		return fanout.NewErrorWithCause(fanout.ErrCodeDatabase, "failed to delete notification", err)
	}
	return nil
}

// FindByUser retrieves the user's notifications, newest first.
func (r *NotificationRepository) FindByUser(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	var notifications []model.Notification
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("user_id = ?", userID).
		OrderBy("created_at DESC").
		Limit(int64(limit)).
		All(&notifications)
	if err != nil {
		return nil, fanout.NewErrorWithCause(fanout.ErrCodeDatabase, "failed to find notifications by user", err)
	}
	if len(notifications) == 0 {
		return nil, fanout.ErrNoData
	}
	return notifications, nil
}

// CountUnread returns the number of unread notifications for the user.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID int64) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Select("COUNT(*)").
		From(r.tableName()).
		Where("user_id = ? AND is_read = ?", userID, false).
		One(&count)
	if err != nil {
		return 0, fanout.NewErrorWithCause(fanout.ErrCodeDatabase, "failed to count unread notifications", err)
	}
	return int(count), nil
}

// MarkAllRead flags every unread notification of the user as read.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int64) error {
	_, err := r.db.WithContext(ctx).Update(r.tableName()).
		Set(map[string]interface{}{
			"is_read": true,
		}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Execute()
	if err != nil {
		return fanout.NewErrorWithCause(fanout.ErrCodeDatabase, "failed to mark notifications as read", err)
	}
	return nil
}

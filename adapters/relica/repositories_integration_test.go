//go:build integration

package relica

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/fanout"
	"github.com/coregx/fanout/model"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, fanout.ApplyMigrations(context.Background(), db, "sqlite3"))
	return db
}

func TestNotificationRepository_SQLite(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(openSQLite(t), "sqlite3")

	_, err := repos.Notification.Load(ctx, 1)
	assert.True(t, fanout.IsNoData(err))

	_, err = repos.Notification.FindByUser(ctx, 1, 10)
	assert.True(t, fanout.IsNoData(err))

	older := model.NewNotification(1, "", "older", "")
	older.CreatedAt = time.Now().Add(-time.Hour)
	older, err = repos.Notification.Save(ctx, older)
	require.NoError(t, err)
	require.NotZero(t, older.ID)

	newer, err := repos.Notification.Save(ctx, model.NewNotification(1, "Hi", "newer", "Chat"))
	require.NoError(t, err)

	list, err := repos.Notification.FindByUser(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "newer", list[0].Message)
	assert.Equal(t, model.DefaultNotificationTitle, list[1].Title)

	unread, err := repos.Notification.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	newer.MarkRead()
	_, err = repos.Notification.Save(ctx, newer)
	require.NoError(t, err)

	unread, err = repos.Notification.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	require.NoError(t, repos.Notification.MarkAllRead(ctx, 1))
	unread, err = repos.Notification.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	require.NoError(t, repos.Notification.Delete(ctx, older))
	_, err = repos.Notification.Load(ctx, older.ID)
	assert.True(t, fanout.IsNoData(err))
}

func TestHelpAlertRepository_SQLite(t *testing.T) {
	ctx := context.Background()
	repos := NewRepositories(openSQLite(t), "sqlite3")

	_, err := repos.HelpAlert.FindRecent(ctx, 5)
	assert.True(t, fanout.IsNoData(err))

	saved, err := repos.HelpAlert.Save(ctx, model.NewHelpAlert("alice", "groceries", "stuck at home", "555-0100"))
	require.NoError(t, err)
	require.NotZero(t, saved.ID)

	loaded, err := repos.HelpAlert.Load(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "groceries", loaded.NeedHelp)

	recent, err := repos.HelpAlert.FindRecent(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

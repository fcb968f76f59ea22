package fanout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/fanout/model"
)

func newTestCenter(t *testing.T) (*NotificationCenter, *memNotificationRepo) {
	t.Helper()
	repo := newMemNotificationRepo()
	nc, err := NewNotificationCenter(
		WithNotificationCenterRepository(repo),
		WithNotificationCenterLogger(&NoopLogger{}),
	)
	require.NoError(t, err)
	return nc, repo
}

func seed(t *testing.T, repo *memNotificationRepo, userID int64, message string) model.Notification {
	t.Helper()
	n, err := repo.Save(context.Background(), model.NewNotification(userID, "", message, ""))
	require.NoError(t, err)
	return n
}

func TestNewNotificationCenter_RequiredOptions(t *testing.T) {
	_, err := NewNotificationCenter(WithNotificationCenterLogger(&NoopLogger{}))
	assert.Error(t, err)

	_, err = NewNotificationCenter(WithNotificationCenterRepository(newMemNotificationRepo()))
	assert.Error(t, err)

	_, err = NewNotificationCenter(WithNotificationCenterRepository(nil))
	assert.Error(t, err)
}

func TestNotificationCenter_ListNewestFirst(t *testing.T) {
	nc, repo := newTestCenter(t)
	seed(t, repo, 1, "first")
	seed(t, repo, 2, "someone else")
	seed(t, repo, 1, "second")

	list, err := nc.List(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Message)
	assert.Equal(t, "first", list[1].Message)

	list, err = nc.List(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestNotificationCenter_ListEmpty(t *testing.T) {
	nc, _ := newTestCenter(t)

	list, err := nc.List(context.Background(), 42, 10)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	_, err = nc.List(context.Background(), 0, 10)
	assert.True(t, IsValidation(err))
}

func TestNotificationCenter_MarkRead(t *testing.T) {
	nc, repo := newTestCenter(t)
	n := seed(t, repo, 1, "hello")

	unread, err := nc.UnreadCount(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	got, err := nc.MarkRead(context.Background(), 1, n.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)

	again, err := nc.MarkRead(context.Background(), 1, n.ID)
	require.NoError(t, err)
	assert.True(t, again.IsRead)

	unread, err = nc.UnreadCount(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}

func TestNotificationCenter_OtherUsersNotificationIsNotFound(t *testing.T) {
	nc, repo := newTestCenter(t)
	n := seed(t, repo, 1, "private")

	_, err := nc.MarkRead(context.Background(), 2, n.ID)
	assert.True(t, IsNoData(err))

	err = nc.Delete(context.Background(), 2, n.ID)
	assert.True(t, IsNoData(err))

	stored, err := repo.Load(context.Background(), n.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsRead)
}

func TestNotificationCenter_Delete(t *testing.T) {
	nc, repo := newTestCenter(t)
	n := seed(t, repo, 1, "bye")

	require.NoError(t, nc.Delete(context.Background(), 1, n.ID))

	_, err := repo.Load(context.Background(), n.ID)
	assert.True(t, IsNoData(err))

	err = nc.Delete(context.Background(), 1, n.ID)
	assert.True(t, IsNoData(err))

	err = nc.Delete(context.Background(), 1, 0)
	assert.True(t, IsValidation(err))
}

func TestNotificationCenter_UnreadCountValidation(t *testing.T) {
	nc, _ := newTestCenter(t)

	_, err := nc.UnreadCount(context.Background(), -1)
	assert.True(t, IsValidation(err))
}

func TestNotificationCenter_MarkAllRead(t *testing.T) {
	nc, repo := newTestCenter(t)
	seed(t, repo, 1, "a")
	seed(t, repo, 1, "b")
	seed(t, repo, 2, "c")

	require.NoError(t, nc.MarkAllRead(context.Background(), 1))

	unread, err := nc.UnreadCount(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	unread, err = nc.UnreadCount(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	assert.True(t, IsValidation(nc.MarkAllRead(context.Background(), 0)))
}

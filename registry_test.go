package fanout

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(conns []Connection) []string {
	out := make([]string, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.ID())
	}
	return out
}

func TestNewRegistry_Options(t *testing.T) {
	_, err := NewRegistry(WithRegistryLogger(nil))
	require.Error(t, err)

	var fErr *Error
	require.ErrorAs(t, err, &fErr)
	assert.Equal(t, ErrCodeConfiguration, fErr.Code)

	r, err := NewRegistry(WithRegistryLogger(&NoopLogger{}))
	require.NoError(t, err)
	assert.Empty(t, r.Topics())
}

func TestRegistry_JoinIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	a := newFakeConn("a")

	require.NoError(t, r.Join("room", a))
	require.NoError(t, r.Join("room", a))

	assert.Equal(t, []string{"a"}, ids(r.SubscribersOf("room")))
	assert.Equal(t, RegistryStats{Topics: 1, Connections: 1, Subscriptions: 1}, r.Stats())
}

func TestRegistry_JoinValidation(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Join("", newFakeConn("a"))
	assert.True(t, IsValidation(err))

	err = r.Join("room", nil)
	assert.True(t, IsValidation(err))

	closed := newFakeConn("c")
	closed.closed.Store(true)
	err = r.Join("room", closed)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.Empty(t, r.SubscribersOf("room"))
}

func TestRegistry_JoinWithoutClosable(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.Join("room", plainConn{id: "p"}))
	assert.Equal(t, []string{"p"}, ids(r.SubscribersOf("room")))
}

func TestRegistry_JoinRejectsDuplicateID(t *testing.T) {
	r := newTestRegistry(t)
	first := newFakeConn("dup")
	require.NoError(t, r.Join("room", first))

	err := r.Join("room", newFakeConn("dup"))
	assert.True(t, IsValidation(err))
	err = r.Join("hall", newFakeConn("dup"))
	assert.True(t, IsValidation(err))

	subs := r.SubscribersOf("room")
	require.Len(t, subs, 1)
	assert.Same(t, first, subs[0])
	assert.Empty(t, r.SubscribersOf("hall"))

	// Once the first connection is gone the id is free again.
	r.LeaveAll(first)
	assert.NoError(t, r.Join("room", newFakeConn("dup")))
}

func TestRegistry_SubscribersOfUnknownTopic(t *testing.T) {
	r := newTestRegistry(t)

	subs := r.SubscribersOf("nobody-here")
	assert.NotNil(t, subs)
	assert.Empty(t, subs)
}

func TestRegistry_SnapshotIsIsolated(t *testing.T) {
	r := newTestRegistry(t)
	a, b := newFakeConn("a"), newFakeConn("b")
	require.NoError(t, r.Join("room", a))

	snap := r.SubscribersOf("room")
	require.NoError(t, r.Join("room", b))
	r.Leave("room", a)

	assert.Equal(t, []string{"a"}, ids(snap))
	assert.Equal(t, []string{"b"}, ids(r.SubscribersOf("room")))
}

func TestRegistry_Leave(t *testing.T) {
	r := newTestRegistry(t)
	a, b := newFakeConn("a"), newFakeConn("b")
	require.NoError(t, r.Join("room", a))
	require.NoError(t, r.Join("room", b))

	r.Leave("room", a)
	assert.Equal(t, []string{"b"}, ids(r.SubscribersOf("room")))

	// No-ops.
	r.Leave("room", a)
	r.Leave("elsewhere", b)
	r.Leave("room", nil)
	assert.Equal(t, []string{"b"}, ids(r.SubscribersOf("room")))
}

func TestRegistry_EmptyTopicsArePruned(t *testing.T) {
	r := newTestRegistry(t)
	a := newFakeConn("a")
	require.NoError(t, r.Join("room", a))
	require.NoError(t, r.Join("hall", a))

	r.Leave("room", a)
	assert.Equal(t, []string{"hall"}, r.Topics())

	r.Leave("hall", a)
	assert.Empty(t, r.Topics())
	assert.Equal(t, RegistryStats{}, r.Stats())
}

func TestRegistry_LeaveAll(t *testing.T) {
	r := newTestRegistry(t)
	a, b := newFakeConn("a"), newFakeConn("b")
	for _, topic := range []string{"t1", "t2", "t3"} {
		require.NoError(t, r.Join(topic, a))
	}
	require.NoError(t, r.Join("t2", b))

	left := r.LeaveAll(a)

	assert.Equal(t, []string{"t1", "t2", "t3"}, left)
	for _, topic := range []string{"t1", "t3"} {
		assert.Empty(t, r.SubscribersOf(topic))
	}
	assert.Equal(t, []string{"b"}, ids(r.SubscribersOf("t2")))
	assert.Empty(t, r.TopicsOf(a))
	assert.Equal(t, []string{"t2"}, r.TopicsOf(b))
}

func TestRegistry_LeaveAllUnknown(t *testing.T) {
	r := newTestRegistry(t)

	assert.Empty(t, r.LeaveAll(newFakeConn("ghost")))
	assert.Empty(t, r.LeaveAll(nil))
}

func TestRegistry_LeaveAllMarksSnapshotHandlesClosed(t *testing.T) {
	r := newTestRegistry(t)
	a := newFakeConn("a")
	require.NoError(t, r.Join("room", a))

	handles := r.snapshot("room")
	require.Len(t, handles, 1)
	assert.False(t, handles[0].closed.Load())

	r.LeaveAll(a)
	assert.True(t, handles[0].closed.Load())

	// A fresh join gets a fresh handle.
	require.NoError(t, r.Join("room", a))
	assert.False(t, r.snapshot("room")[0].closed.Load())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := newTestRegistry(t)
	const workers = 32

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := newFakeConn(fmt.Sprintf("c%d", i))
			topic := fmt.Sprintf("t%d", i%4)
			for j := 0; j < 100; j++ {
				_ = r.Join(topic, conn)
				_ = r.SubscribersOf(topic)
				_ = r.Stats()
				if j%3 == 0 {
					r.Leave(topic, conn)
				}
			}
			_ = r.Join(topic, conn)
		}(i)
	}
	wg.Wait()

	stats := r.Stats()
	assert.Equal(t, workers, stats.Connections)
	assert.Equal(t, workers, stats.Subscriptions)
	assert.Equal(t, 4, stats.Topics)
}

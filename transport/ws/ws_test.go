package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/fanout"
	"github.com/coregx/fanout/model"
	"github.com/coregx/fanout/transport/ws"
)

func newDispatcher(t *testing.T) *fanout.Dispatcher {
	t.Helper()
	registry, err := fanout.NewRegistry()
	require.NoError(t, err)
	d, err := fanout.NewDispatcher(fanout.WithRegistry(registry), fanout.WithLogger(&fanout.NoopLogger{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) model.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var msg model.Message
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func TestHandler_ReceivesPublishedMessages(t *testing.T) {
	d := newDispatcher(t)
	h, err := ws.NewHandler(d, ws.WithStaticTopics(model.TopicNotifications))
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	welcome := read(t, conn)
	assert.Equal(t, model.MessageTypeSystem, welcome.Type)
	assert.NotEmpty(t, welcome.Attributes["sessionId"])

	msg := model.NewMessage(model.MessageTypeHelp, "dana needs help: a ride.", "dana")
	report, err := d.Publish(context.Background(), model.TopicNotifications, msg)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered())

	got := read(t, conn)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, msg.Text, got.Text)
}

func TestHandler_JoinAndLeaveFrames(t *testing.T) {
	d := newDispatcher(t)
	h, err := ws.NewHandler(d, ws.WithJoinPolicy(func(_ *http.Request, topic string) bool {
		return strings.HasPrefix(topic, "group.")
	}))
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	read(t, conn)

	ctx := context.Background()
	require.NoError(t, wsjson.Write(ctx, conn, ws.Frame{Action: ws.ActionJoin, Topic: "group.9"}))
	ack := read(t, conn)
	assert.Equal(t, "join", ack.Attributes["action"])
	assert.Empty(t, ack.Attributes["error"])
	assert.Len(t, d.Registry().SubscribersOf("group.9"), 1)

	require.NoError(t, wsjson.Write(ctx, conn, ws.Frame{Action: ws.ActionJoin, Topic: "user.1"}))
	ack = read(t, conn)
	assert.Contains(t, ack.Attributes["error"], "not allowed")

	require.NoError(t, wsjson.Write(ctx, conn, ws.Frame{Action: "dance"}))
	ack = read(t, conn)
	assert.Contains(t, ack.Attributes["error"], "unknown action")

	require.NoError(t, wsjson.Write(ctx, conn, ws.Frame{Action: ws.ActionLeave, Topic: "group.9"}))
	read(t, conn)
	assert.Empty(t, d.Registry().SubscribersOf("group.9"))
}

func TestHandler_DisconnectLeavesAllTopics(t *testing.T) {
	d := newDispatcher(t)
	h, err := ws.NewHandler(d, ws.WithStaticTopics("a", "b"))
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	read(t, conn)
	assert.Equal(t, 1, d.Registry().Stats().Connections)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	require.Eventually(t, func() bool {
		return d.Registry().Stats().Connections == 0
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, d.Registry().Topics())
}

func TestHandler_InvalidTopicsRejected(t *testing.T) {
	d := newDispatcher(t)
	h, err := ws.NewHandler(d, ws.WithTopics(func(*http.Request) ([]string, error) {
		return nil, fanout.NewError(fanout.ErrCodeValidation, "group id required")
	}))
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNewHandler_RequiresDispatcher(t *testing.T) {
	_, err := ws.NewHandler(nil)
	assert.Error(t, err)

	_, err = ws.NewHandler(newDispatcher(t), ws.WithLogger(nil))
	assert.Error(t, err)
}

func readChat(t *testing.T, conn *websocket.Conn) model.Message {
	t.Helper()
	for i := 0; i < 5; i++ {
		if msg := read(t, conn); msg.Type == model.MessageTypeChat {
			return msg
		}
	}
	t.Fatal("no chat message received")
	return model.Message{}
}

func TestHandler_ChatReachesEveryoneInTheRoom(t *testing.T) {
	d := newDispatcher(t)
	h, err := ws.NewHandler(d, ws.WithStaticTopics(model.TopicInterfaith), ws.WithChat())
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	defer srv.Close()

	alice := dial(t, srv)
	read(t, alice)
	bob := dial(t, srv)
	read(t, bob)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, alice, ws.Frame{Action: ws.ActionSend, Message: "peace be with you", Username: "alice"}))

	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := readChat(t, conn)
		assert.Equal(t, "peace be with you", msg.Text)
		assert.Equal(t, "alice", msg.Sender)
	}

	ack := read(t, alice)
	assert.Equal(t, ws.ActionSend, ack.Attributes["action"])
	assert.Empty(t, ack.Attributes["error"])
}

func TestHandler_ChatRules(t *testing.T) {
	d := newDispatcher(t)
	chat, err := ws.NewHandler(d, ws.WithStaticTopics("room"), ws.WithChat())
	require.NoError(t, err)
	listenOnly, err := ws.NewHandler(d, ws.WithStaticTopics("room"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	chatSrv := httptest.NewServer(chat)
	defer chatSrv.Close()
	conn := dial(t, chatSrv)
	read(t, conn)

	// Empty text fails validation.
	require.NoError(t, wsjson.Write(ctx, conn, ws.Frame{Action: ws.ActionSend}))
	assert.NotEmpty(t, read(t, conn).Attributes["error"])

	// Only joined topics can be written to.
	require.NoError(t, wsjson.Write(ctx, conn, ws.Frame{Action: ws.ActionSend, Topic: "elsewhere", Message: "hi"}))
	assert.Contains(t, read(t, conn).Attributes["error"], "not subscribed")

	listenSrv := httptest.NewServer(listenOnly)
	defer listenSrv.Close()
	other := dial(t, listenSrv)
	read(t, other)

	require.NoError(t, wsjson.Write(ctx, other, ws.Frame{Action: ws.ActionSend, Message: "hi"}))
	assert.Equal(t, "chat not enabled", read(t, other).Attributes["error"])
}

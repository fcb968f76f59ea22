package sse_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/fanout"
	"github.com/coregx/fanout/model"
	"github.com/coregx/fanout/transport/sse"
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

// readEvent returns the fields of the next event, skipping comments and retry frames.
func readEvent(t *testing.T, r *bufio.Reader) map[string]string {
	t.Helper()
	fields := map[string]string{}
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")

		if line == "" {
			if _, ok := fields["event"]; ok {
				return fields
			}
			fields = map[string]string{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			fields["comment"] = line
			continue
		}
		key, value, _ := strings.Cut(line, ": ")
		fields[key] = value
	}
}

func TestHandler_StreamsMessages(t *testing.T) {
	d := newDispatcher(t)
	h, err := sse.NewHandler(d)
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?topic=notifications&topic=group.2", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body := bufio.NewReader(resp.Body)
	ready := readEvent(t, body)
	assert.Equal(t, "ready", ready["event"])
	assert.Equal(t, []string{"group.2", "notifications"}, d.Registry().Topics())

	msg := model.NewMessage(model.MessageTypeChat, "hello group", "erin")
	report, err := d.Publish(ctx, "group.2", msg)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered())

	ev := readEvent(t, body)
	assert.Equal(t, "chat", ev["event"])
	assert.Equal(t, msg.ID, ev["id"])

	var got model.Message
	require.NoError(t, json.Unmarshal([]byte(ev["data"]), &got))
	assert.Equal(t, "hello group", got.Text)

	cancel()
	require.Eventually(t, func() bool {
		return d.Registry().Stats().Connections == 0
	}, time.Second, 5*time.Millisecond)
}

func TestHandler_Heartbeat(t *testing.T) {
	d := newDispatcher(t)
	h, err := sse.NewHandler(d, sse.WithHeartbeat(10*time.Millisecond))
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?topic=t", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if scanner.Text() == ": ping" {
			return
		}
	}
	t.Fatal("no heartbeat received")
}

func TestHandler_RequiresTopic(t *testing.T) {
	d := newDispatcher(t)
	h, err := sse.NewHandler(d)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events?topic=%20padded", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, d.Registry().Topics())
}

func TestNewHandler_Options(t *testing.T) {
	_, err := sse.NewHandler(nil)
	assert.Error(t, err)

	d := newDispatcher(t)
	_, err = sse.NewHandler(d, sse.WithHeartbeat(0))
	assert.Error(t, err)
	_, err = sse.NewHandler(d, sse.WithBuffer(-1))
	assert.Error(t, err)
	_, err = sse.NewHandler(d, sse.WithTopics(nil))
	assert.Error(t, err)
}

package hub_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapset-verifier/server/pkg/hub"
	"github.com/mapset-verifier/server/pkg/orchestrator"
)

const waitFor = 2 * time.Second

type inbox struct {
	mu  sync.Mutex
	got []orchestrator.Message
}

func (i *inbox) handle(_ context.Context, key, value string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.got = append(i.got, orchestrator.Message{Key: key, Value: value})
}

func (i *inbox) messages() []orchestrator.Message {
	i.mu.Lock()
	defer i.mu.Unlock()

	return append([]orchestrator.Message(nil), i.got...)
}

func start(t *testing.T, handler hub.Handler) (*hub.Hub, string) {
	t.Helper()

	h := hub.New(hub.Deps{Handler: handler})
	srv := httptest.NewServer(h)

	t.Cleanup(func() {
		_ = h.Close()
		srv.Close()
	})

	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func TestHub_ReceivesFrames(t *testing.T) {
	t.Parallel()

	var in inbox

	h, url := start(t, in.handle)
	conn := dial(t, url)

	require.Eventually(t, h.Connected, waitFor, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"key":"RequestBeatmapset","value":"/maps/A"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"key":"RequestOverlay"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"key":"RequestDocumentation","value":""}`)))

	require.Eventually(t, func() bool { return len(in.messages()) == 2 }, waitFor, 10*time.Millisecond)

	assert.Equal(t, []orchestrator.Message{
		{Key: orchestrator.KeyRequestBeatmapset, Value: "/maps/A"},
		{Key: orchestrator.KeyRequestDocumentation, Value: ""},
	}, in.messages())
}

func TestHub_Send(t *testing.T) {
	t.Parallel()

	h, url := start(t, nil)
	conn := dial(t, url)

	require.Eventually(t, h.Connected, waitFor, 10*time.Millisecond)

	require.NoError(t, h.Send(context.Background(), orchestrator.Message{Key: orchestrator.KeyAddLoad, Value: "Checks:Loading"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"AddLoad","value":"Checks:Loading"}`, string(data))
}

func TestHub_SendWithoutClient(t *testing.T) {
	t.Parallel()

	h := hub.New(hub.Deps{})

	assert.False(t, h.Connected())
	require.ErrorIs(t, h.Send(context.Background(), orchestrator.Message{Key: "k"}), hub.ErrNoClient)
}

func TestHub_NewClientReplacesOld(t *testing.T) {
	t.Parallel()

	h, url := start(t, nil)

	first := dial(t, url)
	require.Eventually(t, h.Connected, waitFor, 10*time.Millisecond)

	second := dial(t, url)

	// The first connection is closed by the server.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(waitFor)))

	_, _, err := first.ReadMessage()
	require.Error(t, err)

	require.NoError(t, h.Send(context.Background(), orchestrator.Message{Key: "UpdateChecks", Value: "<div></div>"}))
	require.NoError(t, second.SetReadDeadline(time.Now().Add(waitFor)))

	_, data, err := second.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "UpdateChecks")
	assert.True(t, h.Connected())
}

func TestHub_DisconnectDetaches(t *testing.T) {
	t.Parallel()

	h, url := start(t, nil)
	conn := dial(t, url)

	require.Eventually(t, h.Connected, waitFor, 10*time.Millisecond)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return !h.Connected() }, waitFor, 10*time.Millisecond)
}

func TestHub_ConcurrentSends(t *testing.T) {
	t.Parallel()

	const senders = 20

	h, url := start(t, nil)
	conn := dial(t, url)

	require.Eventually(t, h.Connected, waitFor, 10*time.Millisecond)

	var wg sync.WaitGroup

	for range senders {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, h.Send(context.Background(), orchestrator.Message{Key: "AddLoad", Value: "Overview:x"}))
		}()
	}

	wg.Wait()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))

	for range senders {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.JSONEq(t, `{"key":"AddLoad","value":"Overview:x"}`, string(data))
	}
}

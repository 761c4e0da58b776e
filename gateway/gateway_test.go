package gateway

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ringkit/config"
	"github.com/c360/ringkit/pkg/logbuf"
	"github.com/c360/ringkit/service"
)

func newRuntime(t *testing.T) *service.Runtime {
	t.Helper()
	cfg := config.Default()
	cfg.Runtime.Channels = 2
	cfg.Runtime.ChannelSize = 16
	rt, err := service.New(cfg.Runtime, cfg.Flush)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func newServer(t *testing.T, b Backend) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(b, 0, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestRuntimeInfo(t *testing.T) {
	rt := newRuntime(t)
	srv := newServer(t, rt)

	resp, err := http.Get(srv.URL + "/api/v1/runtime")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var info map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, rt.ID(), info["id"])
	assert.Equal(t, "stopped", info["status"])
	assert.Len(t, info["channels"], 2)
}

func TestRequestIDEchoed(t *testing.T) {
	srv := newServer(t, newRuntime(t))

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/channels", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))
}

func TestHealthUnavailableWhenStopped(t *testing.T) {
	srv := newServer(t, newRuntime(t))

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var st map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "unhealthy", st["status"])
}

func TestAppendAndSnapshot(t *testing.T) {
	rt := newRuntime(t)
	srv := newServer(t, rt)

	resp, err := http.Post(srv.URL+"/api/v1/channels/1", "text/plain", strings.NewReader("hello\n"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/channels/1")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello\n", string(body))

	// snapshot leaves the bytes in place
	ch, err := rt.Channels().Get(1)
	require.NoError(t, err)
	assert.Equal(t, 6, ch.Stats().Len)
}

func TestAppendTooLarge(t *testing.T) {
	srv := newServer(t, newRuntime(t))

	resp, err := http.Post(srv.URL+"/api/v1/channels/0", "text/plain",
		strings.NewReader(strings.Repeat("x", 17)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestUnknownChannel(t *testing.T) {
	srv := newServer(t, newRuntime(t))

	for _, path := range []string{"/api/v1/channels/7", "/api/v1/channels/nope"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.Equal(t, "channel not found", body["error"])
	}
}

type namedBackend struct {
	*service.Runtime
	set *logbuf.Set
}

func (b namedBackend) Channels() *logbuf.Set { return b.set }

func TestChannelByName(t *testing.T) {
	set := logbuf.NewSet(2, 16, logbuf.WithNames(func(i int) string {
		return []string{"kernel", "app"}[i]
	}))
	ch, _ := set.Get(1)
	_, _ = ch.WriteString("from app\n")

	srv := newServer(t, namedBackend{Runtime: newRuntime(t), set: set})

	resp, err := http.Get(srv.URL + "/api/v1/channels/app")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "from app\n", string(body))
}

func TestTailStreamsRecords(t *testing.T) {
	rt := newRuntime(t)
	srv := newServer(t, rt)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/channels/0/tail"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return rt.Subscribers(0) == 1 },
		time.Second, 5*time.Millisecond)

	w, err := rt.Writer(0)
	require.NoError(t, err)
	_, err = w.Write([]byte("line one\n"))
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, "line one\n", string(msg))

	// closing the client releases the subscription
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return rt.Subscribers(0) == 0 },
		time.Second, 5*time.Millisecond)
}

func TestStartStop(t *testing.T) {
	g := New(newRuntime(t), -1, nil)
	done := make(chan error, 1)
	go func() { done <- g.Start() }()

	require.Eventually(t, func() bool { return g.Addr() != "" }, time.Second, 5*time.Millisecond)

	_, port, err := net.SplitHostPort(g.Addr())
	require.NoError(t, err)
	resp, err := http.Get("http://127.0.0.1:" + port + "/api/v1/channels")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, g.Stop(t.Context()))
	require.NoError(t, <-done)

	requests, failed, tails := g.Stats()
	assert.Equal(t, uint64(1), requests)
	assert.Zero(t, failed)
	assert.Zero(t, tails)
}

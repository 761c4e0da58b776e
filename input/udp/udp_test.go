package udp

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ringkit/config"
	"github.com/c360/ringkit/metric"
)

type recorder struct {
	mu      sync.Mutex
	records map[int][]string
	refuse  bool
}

func (r *recorder) Ingest(_ context.Context, idx int, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refuse {
		return errors.New("queue full")
	}
	if r.records == nil {
		r.records = make(map[int][]string)
	}
	r.records[idx] = append(r.records[idx], string(data))
	return nil
}

func (r *recorder) got(idx int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.records[idx]...)
}

func startListener(t *testing.T, target Ingester, opts ...Option) (*Listener, net.Conn) {
	t.Helper()
	l, err := NewListener(config.UDPConfig{Bind: "127.0.0.1", Port: 0, Channel: 2}, target, opts...)
	require.NoError(t, err)
	require.NoError(t, l.Listen(t.Context()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	require.Eventually(t, func() bool { return l.Health().IsHealthy() }, time.Second, 5*time.Millisecond)

	conn, err := net.Dial("udp", l.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return l, conn
}

func TestListenerIngestsDatagrams(t *testing.T) {
	rec := &recorder{}
	registry := metric.NewMetricsRegistry()
	l, conn := startListener(t, rec, WithMetrics(registry))

	_, err := conn.Write([]byte("first"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("second\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.got(2)) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"first\n", "second\n"}, rec.got(2))

	st := l.Stats()
	assert.Equal(t, int64(2), st.Packets)
	assert.Equal(t, int64(12), st.Bytes)
	assert.False(t, st.LastActivity.IsZero())
	assert.Equal(t, float64(2), testutil.ToFloat64(l.metrics.packetsReceived))
}

func TestListenerCountsDrops(t *testing.T) {
	rec := &recorder{refuse: true}
	l, conn := startListener(t, rec)

	_, err := conn.Write([]byte("lost"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return l.Stats().Dropped == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, l.Health().IsDegraded())
}

func TestListenerLifecycle(t *testing.T) {
	l, err := NewListener(config.UDPConfig{Bind: "127.0.0.1"}, &recorder{})
	require.NoError(t, err)

	assert.Nil(t, l.Addr())
	assert.Error(t, l.Run(t.Context()), "run before listen")
	assert.True(t, l.Health().IsUnhealthy())

	require.NoError(t, l.Listen(t.Context()))
	assert.Error(t, l.Listen(t.Context()), "second listen")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, l.Run(ctx))
	assert.Nil(t, l.Addr(), "run closes the socket")
}

func TestNewListenerValidation(t *testing.T) {
	_, err := NewListener(config.UDPConfig{}, nil)
	assert.Error(t, err)
	_, err = NewListener(config.UDPConfig{Port: 70000}, &recorder{})
	assert.Error(t, err)
	_, err = NewListener(config.UDPConfig{Channel: -1}, &recorder{})
	assert.Error(t, err)
}

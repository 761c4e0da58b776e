package metric

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/ringkit/errors"
)

func gatheredNames(t *testing.T, r *MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()
	require.NotNil(t, registry.PrometheusRegistry())
	require.NotNil(t, registry.CoreMetrics())

	// vectors only appear once a label set has been observed
	registry.CoreMetrics().RecordChannelWrite("0", 10, 0)
	names := gatheredNames(t, registry)
	assert.True(t, names["ringkit_channel_bytes"])
	assert.True(t, names["ringkit_channel_writes_total"])
	assert.True(t, names["go_goroutines"])
}

func TestMetricsRegistry_RegisterCounter(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "A test counter",
	})
	require.NoError(t, registry.RegisterCounter("test-owner", "test_counter", counter))
	counter.Inc()

	assert.True(t, gatheredNames(t, registry)["test_counter"])
	assert.Equal(t, 1.0, testutil.ToFloat64(counter))
}

func TestMetricsRegistry_PreventDuplicateRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	newGauge := func() prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: "dup_gauge", Help: "dup"})
	}
	require.NoError(t, registry.RegisterGauge("owner", "dup_gauge", newGauge()))

	err := registry.RegisterGauge("owner", "dup_gauge", newGauge())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	// same prometheus name under a different key is a prometheus conflict
	err = registry.RegisterGauge("other", "dup_gauge", newGauge())
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Unregister(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "gone_total", Help: "gone"})
	require.NoError(t, registry.RegisterCounter("owner", "gone_total", counter))

	assert.True(t, registry.Unregister("owner", "gone_total"))
	assert.False(t, registry.Unregister("owner", "gone_total"))
	assert.False(t, gatheredNames(t, registry)["gone_total"])

	// the name is free again
	require.NoError(t, registry.RegisterCounter("owner", "gone_total", counter))
}

func TestMetricsRegistry_UnregisterOwner(t *testing.T) {
	registry := NewMetricsRegistry()

	for i := 0; i < 3; i++ {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: fmt.Sprintf("owned_%d", i), Help: "x"})
		require.NoError(t, registry.RegisterGauge("chan", fmt.Sprintf("owned_%d", i), g))
	}
	other := prometheus.NewGauge(prometheus.GaugeOpts{Name: "chanx_gauge", Help: "x"})
	require.NoError(t, registry.RegisterGauge("chanx", "gauge", other))

	assert.Equal(t, 3, registry.UnregisterOwner("chan"))
	assert.Equal(t, 0, registry.UnregisterOwner("chan"))
	assert.True(t, gatheredNames(t, registry)["chanx_gauge"])
}

func TestMetricsRegistry_ThreadSafety(t *testing.T) {
	registry := NewMetricsRegistry()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := prometheus.NewCounter(prometheus.CounterOpts{
				Name: fmt.Sprintf("concurrent_%d_total", i),
				Help: "concurrent",
			})
			errs <- registry.RegisterCounter("owner", fmt.Sprintf("c%d", i), c)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestMetrics_RecordMethods(t *testing.T) {
	m := NewMetricsRegistry().CoreMetrics()

	m.RecordChannelWrite("1", 40, 0)
	m.RecordChannelWrite("1", 64, 12)
	assert.Equal(t, 64.0, testutil.ToFloat64(m.ChannelBytes.WithLabelValues("1")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.ChannelEvictedBytes.WithLabelValues("1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChannelWrites.WithLabelValues("1")))

	m.RecordChannelLevel("1", 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ChannelBytes.WithLabelValues("1")))

	m.RecordFlush("1", "stdout", 64, nil)
	m.RecordFlush("1", "stdout", 0, assert.AnError)
	assert.Equal(t, 64.0, testutil.ToFloat64(m.FlushedBytes.WithLabelValues("1", "stdout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlushErrors.WithLabelValues("1", "stdout")))

	m.RecordFlushDuration("stdout", 3*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(m.FlushDuration))

	m.RecordMailbox("requests", 4, false)
	m.RecordMailbox("requests", 4, true)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.MailboxDepth.WithLabelValues("requests")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MailboxRejects.WithLabelValues("requests")))
}

func TestServer_Handler(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RecordChannelWrite("0", 5, 0)

	srv := httptest.NewServer(NewServer(0, "", registry).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `ringkit_channel_bytes{channel="0"} 5`)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", string(body))
}

func TestServer_StartStop(t *testing.T) {
	s := NewServer(-1, "/metrics", NewMetricsRegistry())

	done := make(chan error, 1)
	go func() { done <- s.Start() }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(s.Address())
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	err := s.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, <-done)
	require.NoError(t, s.Stop(context.Background()))
}

func TestServer_NilRegistry(t *testing.T) {
	err := NewServer(-1, "", nil).Start()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

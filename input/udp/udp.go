// Package udp receives datagrams and writes each one as a record into a
// runtime log channel.
package udp

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/ringkit/config"
	"github.com/c360/ringkit/errors"
	"github.com/c360/ringkit/health"
	"github.com/c360/ringkit/metric"
	"github.com/c360/ringkit/pkg/retry"
)

// maxDatagram is the largest UDP payload.
const maxDatagram = 65535

// Ingester accepts records for a log channel.
type Ingester interface {
	Ingest(ctx context.Context, idx int, data []byte) error
}

// Metrics holds Prometheus metrics for the UDP listener
type Metrics struct {
	packetsReceived prometheus.Counter
	bytesReceived   prometheus.Counter
	packetsDropped  prometheus.Counter
	socketErrors    prometheus.Counter
	lastActivity    prometheus.Gauge
}

// newMetrics creates and registers listener metrics. A nil registry means
// no metrics.
func newMetrics(registry *metric.MetricsRegistry, port int) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		packetsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ringkit",
			Subsystem: "udp",
			Name:      "packets_received_total",
			Help:      "Total UDP packets received",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ringkit",
			Subsystem: "udp",
			Name:      "bytes_received_total",
			Help:      "Total bytes received from UDP",
		}),
		packetsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ringkit",
			Subsystem: "udp",
			Name:      "packets_dropped_total",
			Help:      "Packets the ingest queue refused",
		}),
		socketErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ringkit",
			Subsystem: "udp",
			Name:      "socket_errors_total",
			Help:      "Socket read errors encountered",
		}),
		lastActivity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ringkit",
			Subsystem: "udp",
			Name:      "last_activity_timestamp",
			Help:      "Unix timestamp of last received packet",
		}),
	}

	owner := fmt.Sprintf("udp_%d", port)
	_ = registry.RegisterCounter(owner, "packets_received", m.packetsReceived)
	_ = registry.RegisterCounter(owner, "bytes_received", m.bytesReceived)
	_ = registry.RegisterCounter(owner, "packets_dropped", m.packetsDropped)
	_ = registry.RegisterCounter(owner, "socket_errors", m.socketErrors)
	_ = registry.RegisterGauge(owner, "last_activity", m.lastActivity)
	return m
}

// Listener reads datagrams from a UDP socket and ingests them into one
// channel. A datagram that does not end in a newline gets one.
type Listener struct {
	cfg    config.UDPConfig
	target Ingester
	logger *slog.Logger
	retry  retry.Config

	mu      sync.Mutex // protects conn
	conn    *net.UDPConn
	running atomic.Bool

	packets      atomic.Int64
	bytes        atomic.Int64
	dropped      atomic.Int64
	errCount     atomic.Int64
	lastActivity atomic.Value // time.Time

	registry *metric.MetricsRegistry
	metrics  *Metrics
}

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets the listener logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics registers listener metrics with registry.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(l *Listener) { l.registry = registry }
}

// NewListener creates a listener for cfg that ingests into target.
func NewListener(cfg config.UDPConfig, target Ingester, opts ...Option) (*Listener, error) {
	if target == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("nil ingester"), "udp", "NewListener", "check target")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, errors.WrapInvalid(fmt.Errorf("invalid port %d", cfg.Port),
			"udp", "NewListener", "port validation")
	}
	if cfg.Channel < 0 {
		return nil, errors.WrapInvalid(fmt.Errorf("invalid channel %d", cfg.Channel),
			"udp", "NewListener", "channel validation")
	}

	l := &Listener{
		cfg:    cfg,
		target: target,
		logger: slog.Default(),
		retry:  retry.DefaultConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	l.metrics = newMetrics(l.registry, cfg.Port)
	l.logger = l.logger.With("component", "udp", "port", cfg.Port, "channel", cfg.Channel)
	l.lastActivity.Store(time.Time{})
	return l, nil
}

// Listen binds the socket, retrying transient failures. Run must follow.
func (l *Listener) Listen(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "udp", "Listen", "check socket")
	}

	err := retry.Do(ctx, l.retry, func() error {
		addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(l.cfg.Bind, strconv.Itoa(l.cfg.Port)))
		if err != nil {
			return retry.NonRetryable(err)
		}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			return err
		}
		const socketBufferSize = 2 << 20
		if err := conn.SetReadBuffer(socketBufferSize); err != nil {
			l.logger.Warn("Could not set UDP buffer size", "buffer_size", socketBufferSize, "error", err)
		}
		l.conn = conn
		return nil
	})
	if err != nil {
		return errors.WrapTransient(err, "udp", "Listen", "socket binding")
	}
	l.logger.Info("UDP listener bound", "address", l.conn.LocalAddr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Run reads datagrams until ctx is cancelled, then closes the socket.
func (l *Listener) Run(ctx context.Context) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return errors.WrapInvalid(errors.ErrNotStarted, "udp", "Run", "Listen was not called")
	}
	if !l.running.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "udp", "Run", "check running state")
	}
	defer l.running.Store(false)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() {
		l.mu.Lock()
		_ = conn.Close()
		l.conn = nil
		l.mu.Unlock()
	}()

	buf := make([]byte, maxDatagram)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, net.ErrClosed) {
				return nil
			}
			l.errCount.Add(1)
			if l.metrics != nil {
				l.metrics.socketErrors.Inc()
			}
			if !errors.IsTransient(err) {
				return errors.WrapFatal(err, "udp", "Run", "read datagram")
			}
			continue
		}
		if n == 0 {
			continue
		}
		l.receive(ctx, buf[:n])
	}
}

func (l *Listener) receive(ctx context.Context, payload []byte) {
	now := time.Now()
	l.packets.Add(1)
	l.bytes.Add(int64(len(payload)))
	l.lastActivity.Store(now)
	if l.metrics != nil {
		l.metrics.packetsReceived.Inc()
		l.metrics.bytesReceived.Add(float64(len(payload)))
		l.metrics.lastActivity.Set(float64(now.Unix()))
	}

	rec := make([]byte, len(payload), len(payload)+1)
	copy(rec, payload)
	if rec[len(rec)-1] != '\n' {
		rec = append(rec, '\n')
	}

	if err := l.target.Ingest(ctx, l.cfg.Channel, rec); err != nil {
		l.dropped.Add(1)
		if l.metrics != nil {
			l.metrics.packetsDropped.Inc()
		}
		l.logger.Debug("Datagram dropped", "bytes", len(rec), "error", err)
	}
}

// Stats is a snapshot of listener counters.
type Stats struct {
	Packets      int64     `json:"packets"`
	Bytes        int64     `json:"bytes"`
	Dropped      int64     `json:"dropped"`
	Errors       int64     `json:"errors"`
	LastActivity time.Time `json:"last_activity"`
}

// Stats returns the listener counters.
func (l *Listener) Stats() Stats {
	last, _ := l.lastActivity.Load().(time.Time)
	return Stats{
		Packets:      l.packets.Load(),
		Bytes:        l.bytes.Load(),
		Dropped:      l.dropped.Load(),
		Errors:       l.errCount.Load(),
		LastActivity: last,
	}
}

// Health reports healthy while Run is reading and degraded once datagrams
// have been dropped.
func (l *Listener) Health() health.Status {
	if !l.running.Load() {
		return health.NewUnhealthy("udp", "listener not running")
	}
	st := l.Stats()
	var s health.Status
	if st.Dropped > 0 {
		s = health.NewDegraded("udp", fmt.Sprintf("%d datagrams dropped", st.Dropped))
	} else {
		s = health.NewHealthy("udp", "receiving")
	}
	return s.WithMetrics(&health.Metrics{ErrorCount: int(st.Errors), LastActivity: st.LastActivity})
}

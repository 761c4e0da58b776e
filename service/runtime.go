// Package service runs the ringkit runtime: a fixed set of log channels, an
// IPC byte-buffer pool with its mailbox, an ingest queue, and the flush loop
// that drains channels into a sink.
package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/c360/ringkit/config"
	"github.com/c360/ringkit/errors"
	"github.com/c360/ringkit/health"
	"github.com/c360/ringkit/metric"
	"github.com/c360/ringkit/output"
	"github.com/c360/ringkit/pkg/buffer"
	"github.com/c360/ringkit/pkg/ipc"
	"github.com/c360/ringkit/pkg/logbuf"
)

// Status represents the current status of a runtime
type Status int

// Possible runtime statuses
const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const (
	defaultMailboxPoll = 10 * time.Millisecond
	defaultTailBuffer  = 64
	shutdownFlush      = 5 * time.Second
)

// Option is a functional option for configuring a Runtime
type Option func(*Runtime)

// WithLogger sets the logger for runtime events. It is never pointed at a
// runtime channel.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics exports channel, flush, mailbox and ingest metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(r *Runtime) { r.registry = registry }
}

// WithSink sets the flush destination. The default discards.
func WithSink(sink output.Sink) Option {
	return func(r *Runtime) {
		if sink != nil {
			r.sink = sink
		}
	}
}

// WithHandler serves mailbox requests from the run loop.
func WithHandler(h ipc.Handler) Option {
	return func(r *Runtime) { r.handler = h }
}

// WithTailBuffer sets how many chunks a tail subscriber may fall behind.
func WithTailBuffer(n int) Option {
	return func(r *Runtime) {
		if n > 0 {
			r.tailBuffer = n
		}
	}
}

// Runtime owns the log channels and IPC buffers of one process.
type Runtime struct {
	id      string
	name    string
	logger  *slog.Logger
	sink    output.Sink
	handler ipc.Handler

	channels *logbuf.Set
	pool     *ipc.Pool
	mailbox  *ipc.Mailbox
	ingest   buffer.Buffer[record]
	kick     chan struct{}

	registry *metric.MetricsRegistry
	core     *metric.Metrics
	monitor  *health.Monitor
	warn     *rate.Limiter

	flushMu    sync.Mutex
	flushCfg   atomic.Pointer[config.FlushConfig]
	intervalCh chan time.Duration
	carry      [][]byte
	flushes    atomic.Int64
	flushFails atomic.Int64
	oversized  atomic.Int64

	tailBuffer int
	tails      *broker

	status    atomic.Value // Status
	startTime atomic.Value // time.Time
}

// record is a write waiting in the ingest queue.
type record struct {
	channel int
	data    []byte
}

// New builds a runtime sized by rc. All channels and buffers are allocated
// here and never grow.
func New(rc config.RuntimeConfig, fc config.FlushConfig, opts ...Option) (*Runtime, error) {
	if fc.Interval <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Runtime", "New",
			fmt.Sprintf("flush interval must be positive, got %s", fc.Interval.D()))
	}

	r := &Runtime{
		id:         uuid.NewString(),
		name:       rc.Name,
		logger:     slog.Default(),
		sink:       output.Discard{},
		kick:       make(chan struct{}, 1),
		monitor:    health.NewMonitor(),
		intervalCh: make(chan time.Duration, 1),
		tailBuffer: defaultTailBuffer,
	}
	if r.name == "" {
		r.name = "ringkit"
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.logger = r.logger.With("component", "runtime", "runtime_id", r.id)
	r.tails = newBroker(rc.Channels, r.tailBuffer)

	if rc.EvictionWarnRate > 0 {
		r.warn = rate.NewLimiter(rate.Limit(rc.EvictionWarnRate), 1)
	}
	if r.registry != nil {
		r.core = r.registry.CoreMetrics()
	}

	r.channels = logbuf.NewSet(rc.Channels, rc.ChannelSize, logbuf.WithObserver(r.observeWrite))
	r.carry = make([][]byte, r.channels.Len())
	r.pool = ipc.NewPool(rc.Buffers, rc.BufferSize)

	var mbOpts []ipc.MailboxOption
	if r.registry != nil {
		mbOpts = append(mbOpts, ipc.WithMailboxMetrics(r.registry, r.name+"_mailbox"))
	}
	mb, err := ipc.NewMailbox(r.pool, rc.MailboxDepth, mbOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "Runtime", "New", "create mailbox")
	}
	r.mailbox = mb

	policy, ok := buffer.ParseOverflowPolicy(rc.IngestPolicy)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Runtime", "New",
			"unknown ingest policy "+rc.IngestPolicy)
	}
	bopts := []buffer.Option[record]{
		buffer.WithOverflowPolicy[record](policy),
		buffer.WithDropCallback[record](func(rec record) {
			r.logger.Debug("Ingest queue dropped record", "channel", rec.channel, "bytes", len(rec.data))
		}),
	}
	if r.registry != nil {
		bopts = append(bopts, buffer.WithMetrics[record](r.registry, r.name+"_ingest"))
	}
	r.ingest, err = buffer.NewCircularBuffer[record](rc.IngestQueue, bopts...)
	if err != nil {
		return nil, errors.Wrap(err, "Runtime", "New", "create ingest queue")
	}

	fcCopy := fc
	r.flushCfg.Store(&fcCopy)
	r.status.Store(StatusStopped)
	r.startTime.Store(time.Time{})
	r.monitor.Update("sink", health.NewHealthy("sink", "no flush yet"))
	return r, nil
}

// ID returns the runtime instance id.
func (r *Runtime) ID() string { return r.id }

// Name returns the configured runtime name.
func (r *Runtime) Name() string { return r.name }

// Status returns the current runtime status
func (r *Runtime) Status() Status {
	return r.status.Load().(Status)
}

// Channels returns the log channel set.
func (r *Runtime) Channels() *logbuf.Set { return r.channels }

// Pool returns the IPC buffer pool.
func (r *Runtime) Pool() *ipc.Pool { return r.pool }

// Mailbox returns the IPC request/response mailbox.
func (r *Runtime) Mailbox() *ipc.Mailbox { return r.mailbox }

// Uptime returns how long the runtime has been running, zero when stopped.
func (r *Runtime) Uptime() time.Duration {
	start := r.startTime.Load().(time.Time)
	if start.IsZero() || r.Status() != StatusRunning {
		return 0
	}
	return time.Since(start)
}

// Writer returns a writer whose every Write is one record on channel idx.
// Records are also copied to tail subscribers of that channel.
func (r *Runtime) Writer(idx int) (io.Writer, error) {
	ch, err := r.channels.Get(idx)
	if err != nil {
		return nil, err
	}
	return &channelWriter{ch: ch, idx: idx, tails: r.tails, rejected: &r.oversized}, nil
}

// Logger returns a text logger that writes into channel idx.
func (r *Runtime) Logger(idx int, level slog.Leveler) (*slog.Logger, error) {
	w, err := r.Writer(idx)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// Ingest queues data for channel idx. The queue's overflow policy decides
// what happens when the run loop falls behind; only the block policy waits
// on ctx. Data larger than the channel fails with errors.ErrFrameTooLarge.
func (r *Runtime) Ingest(ctx context.Context, idx int, data []byte) error {
	ch, err := r.channels.Get(idx)
	if err != nil {
		return err
	}
	if err := checkRecord(ch, len(data)); err != nil {
		r.oversized.Add(1)
		return err
	}
	if err := r.ingest.WriteWithContext(ctx, record{channel: idx, data: data}); err != nil {
		return err
	}
	select {
	case r.kick <- struct{}{}:
	default:
	}
	return nil
}

// pumpIngest moves queued records into their channels.
func (r *Runtime) pumpIngest() int {
	moved := 0
	for {
		batch := r.ingest.ReadBatch(64)
		if len(batch) == 0 {
			return moved
		}
		for _, rec := range batch {
			w, err := r.Writer(rec.channel)
			if err != nil {
				continue
			}
			_, _ = w.Write(rec.data)
		}
		moved += len(batch)
	}
}

// Subscribe streams records written to channel idx through Writer, Logger or
// a Handle. A subscriber that falls behind loses chunks rather than slowing
// writers. Call cancel to unsubscribe.
func (r *Runtime) Subscribe(idx int) (<-chan []byte, func(), error) {
	if _, err := r.channels.Get(idx); err != nil {
		return nil, nil, err
	}
	ch, cancel := r.tails.subscribe(idx)
	return ch, cancel, nil
}

// Subscribers returns the number of live tail subscribers on channel idx.
func (r *Runtime) Subscribers(idx int) int {
	if idx < 0 || idx >= r.channels.Len() {
		return 0
	}
	return r.tails.subscribers(idx)
}

// SetFlushInterval changes the flush period of a running loop.
func (r *Runtime) SetFlushInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	for {
		old := r.flushCfg.Load()
		next := *old
		next.Interval = config.Duration(d)
		if r.flushCfg.CompareAndSwap(old, &next) {
			break
		}
	}
	// keep only the newest pending change
	select {
	case <-r.intervalCh:
	default:
	}
	select {
	case r.intervalCh <- d:
	default:
	}
}

// ApplyFlushConfig swaps retry and timeout settings and the interval. A
// non-positive interval keeps the current one.
func (r *Runtime) ApplyFlushConfig(fc config.FlushConfig) {
	fcCopy := fc
	if fcCopy.Interval <= 0 {
		fcCopy.Interval = r.flushCfg.Load().Interval
	}
	r.flushCfg.Store(&fcCopy)
	r.SetFlushInterval(fc.Interval.D())
}

func (r *Runtime) observeWrite(channel string, held, evicted int) {
	if r.core != nil {
		r.core.RecordChannelWrite(channel, held, evicted)
	}
	if evicted == 0 {
		return
	}
	r.monitor.Update("channel/"+channel, health.NewDegraded("", "overwriting unflushed bytes"))
	if r.warn != nil && r.warn.Allow() {
		r.logger.Warn("Channel overwrote unflushed bytes",
			"channel", channel, "evicted", evicted, "held", held)
	}
}

// Run drives the flush loop, the ingest pump and mailbox serving until ctx
// is cancelled, then flushes once more. It may be called once at a time.
func (r *Runtime) Run(ctx context.Context) error {
	if !r.status.CompareAndSwap(StatusStopped, StatusStarting) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Runtime", "Run", "check status")
	}
	r.startTime.Store(time.Now())

	ticker := time.NewTicker(r.flushCfg.Load().Interval.D())
	defer ticker.Stop()

	var poll <-chan time.Time
	if r.handler != nil {
		pt := time.NewTicker(defaultMailboxPoll)
		defer pt.Stop()
		poll = pt.C
	}

	r.status.Store(StatusRunning)
	r.logger.Info("Runtime started",
		"channels", r.channels.Len(),
		"buffers", r.pool.Len(),
		"buffer_size", r.pool.BufSize(),
		"sink", r.sink.Name())

	for {
		select {
		case <-ctx.Done():
			return r.shutdown()
		case <-r.kick:
			r.pumpIngest()
		case d := <-r.intervalCh:
			ticker.Reset(d)
			r.logger.Info("Flush interval changed", "interval", d)
		case <-poll:
			r.serveMailbox()
		case <-ticker.C:
			r.pumpIngest()
			if err := r.Flush(ctx); err != nil {
				r.logger.Error("Flush failed", "error", err)
			}
		}
	}
}

func (r *Runtime) serveMailbox() {
	if _, err := r.mailbox.Serve(r.handler); err != nil {
		r.logger.Error("Mailbox serve failed", "error", err)
	}
}

func (r *Runtime) shutdown() error {
	r.status.Store(StatusStopping)
	defer func() {
		r.status.Store(StatusStopped)
		r.startTime.Store(time.Time{})
	}()

	r.pumpIngest()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlush)
	defer cancel()
	err := r.Flush(ctx)
	if err != nil {
		r.logger.Error("Final flush failed", "error", err)
	}
	r.logger.Info("Runtime stopped", "flushes", r.flushes.Load(), "flush_failures", r.flushFails.Load())
	return err
}

// Close releases the mailbox, ingest queue, tail subscribers and the sink.
// The runtime must not be running.
func (r *Runtime) Close() error {
	if s := r.Status(); s != StatusStopped {
		return errors.WrapInvalid(fmt.Errorf("runtime is %s", s), "Runtime", "Close", "check status")
	}
	r.tails.closeAll()
	var errs []error
	for _, c := range []io.Closer{r.mailbox, r.ingest, r.sink} {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Health returns the aggregated runtime health.
func (r *Runtime) Health() health.Status {
	if s := r.Status(); s != StatusRunning {
		st := health.NewUnhealthy(r.name, "runtime is "+s.String())
		st.SubStatuses = r.monitor.AggregateHealth(r.name).SubStatuses
		return st
	}
	return r.monitor.AggregateHealth(r.name).WithMetrics(&health.Metrics{
		Uptime:     r.Uptime(),
		ErrorCount: int(r.flushFails.Load()),
	})
}

// Info is a point-in-time summary of the runtime.
type Info struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Status      Status         `json:"status"`
	Uptime      time.Duration  `json:"uptime"`
	Sink        string         `json:"sink"`
	Channels    []logbuf.Stats `json:"channels"`
	Buffers     int            `json:"buffers"`
	BufferSize  int            `json:"buffer_size"`
	Requests    int            `json:"pending_requests"`
	Responses   int            `json:"pending_responses"`
	Ingest      map[string]any `json:"ingest"`
	Flushes     int64          `json:"flushes"`
	FlushErrors int64          `json:"flush_errors"`
	Oversized   int64          `json:"oversized_records"`
}

// Info returns the current runtime summary.
func (r *Runtime) Info() Info {
	req, resp := r.mailbox.Pending()
	return Info{
		ID:          r.id,
		Name:        r.name,
		Status:      r.Status(),
		Uptime:      r.Uptime(),
		Sink:        r.sink.Name(),
		Channels:    r.channels.Stats(),
		Buffers:     r.pool.Len(),
		BufferSize:  r.pool.BufSize(),
		Requests:    req,
		Responses:   resp,
		Ingest:      r.ingest.Stats().Summary(),
		Flushes:     r.flushes.Load(),
		FlushErrors: r.flushFails.Load(),
		Oversized:   r.oversized.Load(),
	}
}

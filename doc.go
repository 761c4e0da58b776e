// Package ringkit provides fixed-capacity ring storage and the runtime
// plumbing built on top of it: overwriting log channels, shared IPC buffers
// with a request mailbox, and a flush loop that ships channel contents to a
// sink.
//
// # Philosophy: Allocate Once, Never Grow
//
// Every structure in ringkit is sized at construction. A full ring either
// overwrites its oldest element or refuses the new one, and the caller picks
// which. Nothing reallocates on the write path, so a burst of output from a
// misbehaving task cannot push the process out of memory. It costs the
// oldest unflushed bytes, and that loss is counted and reported.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│          cmd/ringkit                │  Flags, config, signals
//	└─────────────────────────────────────┘
//	           ↓               ↓
//	┌──────────────────┐ ┌────────────────┐
//	│     gateway      │ │     metric     │  HTTP API, websocket tails,
//	│  (HTTP + ws)     │ │  (Prometheus)  │  /metrics
//	└──────────────────┘ └────────────────┘
//	           ↓
//	┌─────────────────────────────────────┐
//	│          service.Runtime            │  Flush loop, ingest queue,
//	│  (channels, pool, mailbox, health)  │  mailbox serving, health
//	└─────────────────────────────────────┘
//	     ↓            ↓             ↓
//	┌─────────┐ ┌───────────┐ ┌──────────┐
//	│ logbuf  │ │    ipc    │ │  output  │  Log channels, byte buffers,
//	│         │ │           │ │  sinks   │  stdout/file/NATS/HTTP
//	└─────────┘ └───────────┘ └──────────┘
//	     ↓            ↓
//	┌─────────────────────────────────────┐
//	│     pkg/deque  pkg/buffer           │  Ring deque, bounded queues
//	└─────────────────────────────────────┘
//
// # Core Packages
//
// pkg/deque: The fixed-capacity double-ended ring. Deque[T] supports push and
// pop at both ends, checked and overwriting variants, indexed access,
// rotation, range draining, contiguous views and iterators. Bytes
// specializes it for byte streams with bulk copy in and out.
//
// pkg/buffer: A bounded FIFO with a selectable overflow policy (drop oldest,
// drop newest, block, reject) and optional Prometheus metrics.
//
// pkg/logbuf: Named byte channels that keep the newest bytes written to them
// and report how many older bytes were overwritten.
//
// pkg/ipc: Fixed-size byte buffers with little-endian accessors, a pool of
// them, and a mailbox that carries request and response frames between a
// client and a server goroutine.
//
// pkg/frame: Splits a byte stream into delimiter-terminated frames,
// resynchronising after overflow.
//
// service: The Runtime ties channels, buffers and the mailbox together and
// periodically flushes channel contents to an output.Sink with retry.
//
// # Quick Start
//
//	cfg := config.Default()
//	sink, _ := output.Open(cfg.Sink)
//
//	rt, err := service.New(cfg.Runtime, cfg.Flush, service.WithSink(sink))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	h := rt.Handle()
//	h.SelectChannel(1)
//	logger, _ := h.Logger(slog.LevelInfo)
//	logger.Info("task started")
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	_ = rt.Run(ctx)
//
// # Configuration
//
// Configuration is loaded from JSON or YAML, layered over defaults, and
// overridden by RINGKIT_* environment variables. See package config.
//
// # Error Handling
//
// Errors are classified as transient, invalid or fatal (package errors).
// Flushes retry transient sink errors with exponential backoff and give up
// immediately on invalid ones.
package ringkit

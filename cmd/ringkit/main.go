// Package main runs a ringkit runtime as a standalone process: log channels
// flushed to a sink, a metrics endpoint, an HTTP gateway and optional stdin
// ingestion.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/ringkit/config"
	"github.com/c360/ringkit/gateway"
	"github.com/c360/ringkit/input/udp"
	"github.com/c360/ringkit/metric"
	"github.com/c360/ringkit/output"
	"github.com/c360/ringkit/pkg/frame"
	"github.com/c360/ringkit/service"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "ringkit"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(os.Stderr, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		return err
	}
	if cliCfg.Validate {
		slog.Info("Configuration is valid", "config", cfg.String())
		return nil
	}
	if cliCfg.Stdin && cliCfg.StdinChannel >= cfg.Runtime.Channels {
		return fmt.Errorf("stdin channel %d out of range (%d channels)",
			cliCfg.StdinChannel, cfg.Runtime.Channels)
	}

	slog.Info("Starting ringkit",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"sink", cfg.Sink.Type)

	sink, err := output.Open(cfg.Sink)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}

	registry := metric.NewMetricsRegistry()
	rt, err := service.New(cfg.Runtime, cfg.Flush,
		service.WithLogger(logger),
		service.WithMetrics(registry),
		service.WithSink(sink),
		service.WithTailBuffer(cfg.Gateway.TailBuffer),
	)
	if err != nil {
		_ = sink.Close()
		return fmt.Errorf("create runtime: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			slog.Error("Close runtime", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Run(gctx) })

	if cfg.Metrics.Enabled {
		srv := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		serveUntilDone(gctx, g, "metrics", srv.Start, srv.Stop, cliCfg.ShutdownTimeout)
	}
	if cfg.Gateway.Enabled {
		gw := gateway.New(rt, cfg.Gateway.Port, logger)
		serveUntilDone(gctx, g, "gateway", gw.Start, gw.Stop, cliCfg.ShutdownTimeout)
	}

	if cfg.UDP.Enabled {
		ln, err := udp.NewListener(cfg.UDP, rt, udp.WithLogger(logger), udp.WithMetrics(registry))
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("create udp listener: %w", err)
		}
		if err := ln.Listen(gctx); err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("udp listen: %w", err)
		}
		g.Go(func() error { return ln.Run(gctx) })
	}

	if cliCfg.ConfigPath != "" {
		w := config.NewWatcher(cliCfg.ConfigPath, config.NewSafeConfig(cfg), logger)
		w.OnChange(func(next *config.Config) {
			rt.ApplyFlushConfig(next.Flush)
			slog.Info("Flush settings reloaded", "interval", next.Flush.Interval.String())
		})
		g.Go(func() error { return w.Run(gctx) })
	}

	// stdin may never reach EOF, so it is not part of the group
	if cliCfg.Stdin {
		go ingestStdin(gctx, rt, cliCfg.StdinChannel, cfg.Runtime.ChannelSize)
	}

	slog.Info("Ringkit started", "runtime_id", rt.ID())
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Ringkit shutdown complete")
	return nil
}

// serveUntilDone runs a blocking start function in g and stops it when ctx
// is done.
func serveUntilDone(ctx context.Context, g *errgroup.Group, name string,
	start func() error, stopFn func(context.Context) error, timeout time.Duration,
) {
	g.Go(func() error {
		if err := start(); err != nil {
			return fmt.Errorf("%s server: %w", name, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := stopFn(sctx); err != nil {
			slog.Warn("Server stop failed", "server", name, "error", err)
		}
		return nil
	})
}

// ingestStdin feeds newline-delimited stdin records into channel idx. Each
// record keeps its newline.
func ingestStdin(ctx context.Context, rt *service.Runtime, idx, maxRecord int) {
	f := frame.New(maxRecord, frame.DefaultDelimiter)
	err := f.Scan(os.Stdin, func(rec []byte) error {
		return rt.Ingest(ctx, idx, append(rec, frame.DefaultDelimiter))
	})
	frames, dropped := f.Stats()
	if err != nil && ctx.Err() == nil {
		slog.Error("Stdin ingestion stopped", "error", err, "records", frames, "dropped", dropped)
		return
	}
	slog.Info("Stdin closed", "records", frames, "dropped", dropped)
}

// loadConfig loads configuration from path, or from defaults and the
// environment when path is empty.
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(true)
	if path != "" {
		loader.AddLayer(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

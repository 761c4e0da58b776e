package output

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/c360/ringkit/config"
	"github.com/c360/ringkit/errors"
)

// Sink receives the bytes drained from one log channel during a flush.
// Deliver may be retried with the same data, so it should either succeed
// completely or fail without side effects where the transport allows it.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, channel string, data []byte) error
	Close() error
}

var (
	_ Sink = (*WriterSink)(nil)
	_ Sink = (*NATSSink)(nil)
	_ Sink = (*HTTPSink)(nil)
	_ Sink = Discard{}
)

// Open builds the sink selected by cfg.
func Open(cfg config.SinkConfig) (Sink, error) {
	switch cfg.Type {
	case config.SinkStdout, "":
		return NewWriterSink("stdout", nopCloser{os.Stdout}), nil
	case config.SinkFile:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, errors.WrapFatal(err, "Sink", "Open", "create output directory")
		}
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, errors.WrapFatal(err, "Sink", "Open", "open output file")
		}
		return NewWriterSink("file", f), nil
	case config.SinkNATS:
		return ConnectNATS(cfg.URL, cfg.Subject)
	case config.SinkHTTP:
		return NewHTTPSink(cfg.URL, nil), nil
	case config.SinkDiscard:
		return Discard{}, nil
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Sink", "Open", "unknown sink type "+cfg.Type)
	}
}

// WriterSink writes every delivery to an io.WriteCloser, serialised so that
// concurrent flushes of different channels never interleave.
type WriterSink struct {
	name string
	mu   sync.Mutex
	w    io.WriteCloser
}

// NewWriterSink wraps w. The sink owns w and closes it on Close.
func NewWriterSink(name string, w io.WriteCloser) *WriterSink {
	return &WriterSink{name: name, w: w}
}

// Name returns the sink name used in metrics labels.
func (s *WriterSink) Name() string { return s.name }

// Deliver writes data in a single call.
func (s *WriterSink) Deliver(ctx context.Context, _ string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(data); err != nil {
		return errors.WrapTransient(err, "WriterSink", "Deliver", "write "+s.name)
	}
	return nil
}

// Close closes the underlying writer.
func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}

// Discard accepts and drops everything.
type Discard struct{}

func (Discard) Name() string                                  { return "discard" }
func (Discard) Deliver(context.Context, string, []byte) error { return nil }
func (Discard) Close() error                                  { return nil }

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

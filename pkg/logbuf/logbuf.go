// Package logbuf provides bounded in-memory log channels.
//
// A Channel keeps the most recent bytes written to it in a fixed-size
// deque.Bytes; older bytes are overwritten rather than blocking the writer.
// Each Write is one record and is stored whole: exactly enough of the oldest
// bytes are dropped to make room for it, so only the first held record can be
// partial.
//
// A Set is a fixed pool of channels addressed by index, built once with
// deque.NewFunc.
package logbuf

import (
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"

	"github.com/c360/ringkit/errors"
	"github.com/c360/ringkit/pkg/deque"
)

// WriteObserver is told about every record written to a channel: the bytes
// now held and the bytes evicted to make room.
type WriteObserver func(channel string, held, evicted int)

// Channel is a bounded, overwrite-oldest log buffer. It is safe for
// concurrent use.
type Channel struct {
	name     string
	mu       sync.Mutex
	buf      *deque.Bytes
	records  uint64
	observer WriteObserver
}

var _ io.Writer = (*Channel)(nil)

// NewChannel creates a channel holding at most capacity bytes.
func NewChannel(name string, capacity int) *Channel {
	return &Channel{name: name, buf: deque.NewBytes(capacity)}
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Cap returns the channel capacity in bytes.
func (c *Channel) Cap() int { return c.buf.Cap() }

// Write stores p as one record. It never fails and never blocks on readers.
func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()
	evicted := c.buf.WriteOverwrite(p)
	c.records++
	held := c.buf.Len()
	obs := c.observer
	c.mu.Unlock()

	if obs != nil {
		obs(c.name, held, evicted)
	}
	return len(p), nil
}

// WriteString stores s as one record.
func (c *Channel) WriteString(s string) (int, error) {
	return c.Write([]byte(s))
}

// Printf formats a record into the channel.
func (c *Channel) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c, format, args...)
}

// Logger returns a logger whose records land in this channel as text lines.
func (c *Channel) Logger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(c, &slog.HandlerOptions{Level: level}))
}

// Snapshot returns a copy of the held bytes without consuming them.
func (c *Channel) Snapshot() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Bytes()
}

// Drain returns the held bytes and empties the channel.
func (c *Channel) Drain() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.buf.Bytes()
	c.buf.Reset()
	return b
}

// WriteTo hands the held bytes to w and consumes whatever w accepted. The
// channel stays locked for the duration, so writers wait for w.
func (c *Channel) WriteTo(w io.Writer) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.buf.WriteTo(w)
	if err != nil {
		return n, errors.WrapTransient(err, "Channel", "WriteTo", "flush "+c.name)
	}
	return n, nil
}

// Reset discards the held bytes.
func (c *Channel) Reset() {
	c.mu.Lock()
	c.buf.Reset()
	c.mu.Unlock()
}

// Stats is a point-in-time view of a channel.
type Stats struct {
	Name     string `json:"name"`
	Len      int    `json:"len"`
	Cap      int    `json:"cap"`
	Records  uint64 `json:"records"`
	Evicted  uint64 `json:"evicted_bytes"`
	Wrapping bool   `json:"wrapping"`
}

// Stats returns the channel's current counters.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Name:     c.name,
		Len:      c.buf.Len(),
		Cap:      c.buf.Cap(),
		Records:  c.records,
		Evicted:  c.buf.Evicted(),
		Wrapping: len(c.buf.View().Second) > 0,
	}
}

// Option configures a Set.
type Option func(*setOptions)

type setOptions struct {
	names    func(i int) string
	observer WriteObserver
}

// WithNames overrides the default channel names ("0", "1", ...).
func WithNames(names func(i int) string) Option {
	return func(o *setOptions) {
		if names != nil {
			o.names = names
		}
	}
}

// WithObserver installs a write observer on every channel.
func WithObserver(fn WriteObserver) Option {
	return func(o *setOptions) { o.observer = fn }
}

// Set is a fixed pool of channels.
type Set struct {
	chans *deque.Deque[*Channel]
}

// NewSet creates count channels of capacity bytes each. Count is at least one.
func NewSet(count, capacity int, opts ...Option) *Set {
	o := setOptions{names: func(i int) string { return fmt.Sprint(i) }}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	return &Set{chans: deque.NewFunc(count, func(i int) *Channel {
		ch := NewChannel(o.names(i), capacity)
		ch.observer = o.observer
		return ch
	})}
}

// Len returns the number of channels.
func (s *Set) Len() int { return s.chans.Len() }

// Get returns channel i.
func (s *Set) Get(i int) (*Channel, error) {
	ch, ok := s.chans.At(i)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrChannelNotFound, "Set", "Get",
			fmt.Sprintf("channel %d of %d", i, s.chans.Len()))
	}
	return ch, nil
}

// Lookup finds a channel by name.
func (s *Set) Lookup(name string) (*Channel, bool) {
	for _, ch := range s.chans.All() {
		if ch.name == name {
			return ch, true
		}
	}
	return nil, false
}

// All yields (index, channel) pairs in index order.
func (s *Set) All() iter.Seq2[int, *Channel] {
	return s.chans.All()
}

// Stats returns the stats of every channel in index order.
func (s *Set) Stats() []Stats {
	out := make([]Stats, 0, s.chans.Len())
	for _, ch := range s.chans.All() {
		out = append(out, ch.Stats())
	}
	return out
}

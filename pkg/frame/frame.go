// Package frame splits a byte stream from a character device into
// delimiter-terminated frames.
//
// Device bytes land in a fixed-size deque.Bytes. Write never blocks the
// producer: when the buffer overflows, the oldest bytes are overwritten and
// the framer drops everything up to the next delimiter before it returns
// frames again, so a truncated frame is never delivered.
package frame

import (
	"bytes"
	"io"
	"sync"

	"github.com/c360/ringkit/errors"
	"github.com/c360/ringkit/pkg/deque"
)

// DefaultDelimiter terminates frames unless New is given another byte.
const DefaultDelimiter = '\n'

// Framer accumulates device bytes and yields complete frames. It is safe for
// one producer and one consumer to use concurrently.
type Framer struct {
	mu      sync.Mutex
	buf     *deque.Bytes
	delim   byte
	resync  bool
	frames  uint64
	dropped uint64
}

// New creates a framer whose frames, delimiter included, fit in maxFrame bytes.
func New(maxFrame int, delim byte) *Framer {
	return &Framer{buf: deque.NewBytes(maxFrame), delim: delim}
}

// Write feeds device bytes. It never fails; overflow is handled by
// overwriting and resynchronising at the next delimiter.
func (f *Framer) Write(p []byte) (int, error) {
	f.mu.Lock()
	if f.buf.WriteOverwrite(p) > 0 {
		f.resync = true
	}
	f.mu.Unlock()
	return len(p), nil
}

// index returns the logical position of the first delimiter, or -1.
func (f *Framer) index() int {
	v := f.buf.View()
	if i := bytes.IndexByte(v.First, f.delim); i >= 0 {
		return i
	}
	if i := bytes.IndexByte(v.Second, f.delim); i >= 0 {
		return len(v.First) + i
	}
	return -1
}

// Next returns the oldest complete frame without its delimiter.
func (f *Framer) Next() ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		i := f.index()
		if i < 0 {
			return nil, false
		}
		frame := make([]byte, i, i+1)
		_, _ = f.buf.Read(frame)
		var delim [1]byte
		_, _ = f.buf.Read(delim[:])

		if f.resync {
			f.resync = false
			f.dropped++
			continue
		}
		f.frames++
		return frame, true
	}
}

// Pending returns the number of buffered bytes not yet part of a frame.
func (f *Framer) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.Len()
}

// Stats returns the number of frames delivered and dropped.
func (f *Framer) Stats() (frames, dropped uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames, f.dropped
}

// Scan reads r until EOF, calling fn for every frame. Reads are sized to the
// free space, so nothing is overwritten. A frame that cannot fit is discarded
// up to its delimiter and counted as dropped, and scanning carries on. Bytes
// after the last delimiter at EOF are passed to fn as a final frame.
func (f *Framer) Scan(r io.Reader, fn func(frame []byte) error) error {
	chunk := make([]byte, f.buf.Cap())
	for {
		for {
			frame, ok := f.Next()
			if !ok {
				break
			}
			if err := fn(frame); err != nil {
				return err
			}
		}

		f.mu.Lock()
		free := f.buf.Free()
		if free == 0 {
			// no delimiter within Cap bytes; skip to the next one
			f.buf.Reset()
			f.resync = true
			free = f.buf.Cap()
		}
		f.mu.Unlock()

		n, err := r.Read(chunk[:free])
		if n > 0 {
			_, _ = f.Write(chunk[:n])
		}
		if err == io.EOF {
			return f.flushTrailing(fn)
		}
		if err != nil {
			return errors.WrapTransient(err, "Framer", "Scan", "read device")
		}
	}
}

func (f *Framer) flushTrailing(fn func([]byte) error) error {
	for {
		frame, ok := f.Next()
		if !ok {
			break
		}
		if err := fn(frame); err != nil {
			return err
		}
	}

	f.mu.Lock()
	rest := f.buf.Bytes()
	f.buf.Reset()
	resync := f.resync
	f.resync = false
	switch {
	case resync:
		f.dropped++
	case len(rest) > 0:
		f.frames++
	}
	f.mu.Unlock()

	if len(rest) == 0 || resync {
		return nil
	}
	return fn(rest)
}

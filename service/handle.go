package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/c360/ringkit/pkg/ipc"
)

// Handle is a task's view of the runtime: one selected log channel and one
// selected IPC buffer. Selecting an index that does not exist is ignored and
// the previous choice stays, so a handle always points somewhere valid.
type Handle struct {
	rt *Runtime

	mu      sync.Mutex
	channel int
	buffer  int
}

// Handle returns a handle with channel 0 and buffer 0 selected.
func (r *Runtime) Handle() *Handle {
	return &Handle{rt: r}
}

// SelectChannel selects log channel idx. It reports whether idx existed.
func (h *Handle) SelectChannel(idx int) bool {
	if idx < 0 || idx >= h.rt.channels.Len() {
		return false
	}
	h.mu.Lock()
	h.channel = idx
	h.mu.Unlock()
	return true
}

// SelectBuffer selects IPC buffer idx. It reports whether idx existed.
func (h *Handle) SelectBuffer(idx int) bool {
	if idx < 0 || idx >= h.rt.pool.Len() {
		return false
	}
	h.mu.Lock()
	h.buffer = idx
	h.mu.Unlock()
	return true
}

// Selected returns the selected channel and buffer indexes.
func (h *Handle) Selected() (channel, buffer int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.channel, h.buffer
}

// Write appends p as one record to the selected channel.
func (h *Handle) Write(p []byte) (int, error) {
	ch, _ := h.Selected()
	w, err := h.rt.Writer(ch)
	if err != nil {
		return 0, err
	}
	return w.Write(p)
}

// Logger returns a logger writing into the selected channel. Later
// selections do not move an existing logger.
func (h *Handle) Logger(level slog.Leveler) (*slog.Logger, error) {
	ch, _ := h.Selected()
	return h.rt.Logger(ch, level)
}

// Rd8 reads the byte at off in the selected buffer.
func (h *Handle) Rd8(off int) (uint8, error) {
	_, buf := h.Selected()
	var v uint8
	err := h.rt.pool.With(buf, func(b *ipc.ByteBuf) error {
		var err error
		v, err = b.Rd8(off)
		return err
	})
	return v, err
}

// Wr8 writes v at off in the selected buffer.
func (h *Handle) Wr8(off int, v uint8) error {
	_, buf := h.Selected()
	return h.rt.pool.With(buf, func(b *ipc.ByteBuf) error {
		return b.Wr8(off, v)
	})
}

// ReadAt copies n bytes from off in the selected buffer.
func (h *Handle) ReadAt(off, n int) ([]byte, error) {
	_, buf := h.Selected()
	return h.rt.pool.Read(buf, off, n)
}

// WriteAt copies data to off in the selected buffer.
func (h *Handle) WriteAt(off int, data []byte) error {
	_, buf := h.Selected()
	return h.rt.pool.Write(buf, off, data)
}

// Submit queues a mailbox request against the selected buffer.
func (h *Handle) Submit(op ipc.Op, off, n int) (ipc.Frame, error) {
	_, buf := h.Selected()
	return h.rt.mailbox.Submit(op, buf, off, n)
}

// Uptime returns the runtime uptime.
func (h *Handle) Uptime() time.Duration {
	return h.rt.Uptime()
}

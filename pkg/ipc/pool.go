package ipc

import (
	"fmt"
	"sync"

	"github.com/c360/ringkit/errors"
	"github.com/c360/ringkit/pkg/deque"
)

// Pool is a fixed set of equally sized byte buffers. Slots are created once
// and never reallocated; callers coordinate ownership through a Mailbox.
type Pool struct {
	slots   *deque.Deque[*slot]
	bufSize int
}

type slot struct {
	mu  sync.Mutex
	buf *ByteBuf
}

// NewPool creates count buffers of size bytes each. Count is at least one.
func NewPool(count, size int) *Pool {
	return &Pool{
		slots: deque.NewFunc(count, func(int) *slot {
			return &slot{buf: NewByteBuf(size)}
		}),
		bufSize: size,
	}
}

// Len returns the number of slots.
func (p *Pool) Len() int { return p.slots.Len() }

// BufSize returns the size of every slot's buffer.
func (p *Pool) BufSize() int { return p.bufSize }

func (p *Pool) slot(op string, idx int) (*slot, error) {
	s, ok := p.slots.At(idx)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrSlotNotFound, "Pool", op,
			fmt.Sprintf("slot %d of %d", idx, p.slots.Len()))
	}
	return s, nil
}

// With runs fn with exclusive access to slot idx's buffer.
func (p *Pool) With(idx int, fn func(*ByteBuf) error) error {
	s, err := p.slot("With", idx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.buf)
}

// Write copies data into slot idx at off.
func (p *Pool) Write(idx, off int, data []byte) error {
	return p.With(idx, func(b *ByteBuf) error {
		return b.CopyFrom(off, data)
	})
}

// Read copies n bytes from slot idx at off.
func (p *Pool) Read(idx, off, n int) ([]byte, error) {
	out := make([]byte, max(n, 0))
	err := p.With(idx, func(b *ByteBuf) error {
		return b.CopyTo(off, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

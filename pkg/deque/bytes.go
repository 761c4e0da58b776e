package deque

import "io"

// Bytes is a capped byte buffer with overwrite-oldest semantics. Every write
// is applied whole: when a chunk does not fit, exactly enough of the oldest
// bytes are dropped first. A chunk longer than the capacity leaves only its
// trailing Cap() bytes, which is what writing it byte by byte would leave.
//
// Bytes is not safe for concurrent use.
type Bytes struct {
	d       *Deque[byte]
	evicted uint64
}

var (
	_ io.Writer       = (*Bytes)(nil)
	_ io.StringWriter = (*Bytes)(nil)
	_ io.ByteWriter   = (*Bytes)(nil)
	_ io.Reader       = (*Bytes)(nil)
	_ io.WriterTo     = (*Bytes)(nil)
)

// NewBytes creates an empty byte buffer of the given capacity.
func NewBytes(capacity int) *Bytes {
	return &Bytes{d: New[byte](capacity)}
}

// BytesFromString creates a byte buffer of the given capacity holding s,
// or its trailing capacity bytes when s is longer.
func BytesFromString(capacity int, s string) *Bytes {
	b := NewBytes(capacity)
	_, _ = b.WriteString(s)
	return b
}

// WriteOverwrite appends p, evicting the oldest bytes as needed, and returns
// how many bytes were lost.
func (b *Bytes) WriteOverwrite(p []byte) int {
	return b.write(len(p), func(dst []byte, off int) int {
		return copy(dst, p[off:])
	})
}

// Write implements io.Writer. It never fails.
func (b *Bytes) Write(p []byte) (int, error) {
	b.WriteOverwrite(p)
	return len(p), nil
}

// WriteString implements io.StringWriter. It never fails.
func (b *Bytes) WriteString(s string) (int, error) {
	b.write(len(s), func(dst []byte, off int) int {
		return copy(dst, s[off:])
	})
	return len(s), nil
}

// WriteByte implements io.ByteWriter. It never fails.
func (b *Bytes) WriteByte(c byte) error {
	if b.d.IsFull() {
		b.d.DiscardFront(1)
		b.evicted++
	}
	return b.d.PushBack(c)
}

func (b *Bytes) write(n int, fill func(dst []byte, off int) int) int {
	d := b.d
	if n == 0 || d.Cap() == 0 {
		return 0
	}

	skip, dropped := 0, 0
	if n > d.Cap() {
		skip = n - d.Cap()
		dropped = skip + d.Len()
		d.Clear()
	} else if free := d.Free(); n > free {
		dropped = d.DiscardFront(n - free)
	}
	b.evicted += uint64(dropped)

	m := n - skip
	tail := d.tail.Pos()
	k := fill(d.buf[tail:], skip)
	if k < m {
		fill(d.buf[:m-k], skip+k)
	}
	d.tail.Advance(m)
	d.full = d.tail == d.head
	return dropped
}

// Read implements io.Reader, consuming bytes from the front. It returns
// io.EOF once the buffer is empty.
func (b *Bytes) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if b.d.IsEmpty() {
		return 0, io.EOF
	}
	return b.d.PopFrontInto(p), nil
}

// WriteTo implements io.WriterTo. Both runs are handed to w without copying;
// whatever w accepts is consumed, the rest stays buffered.
func (b *Bytes) WriteTo(w io.Writer) (int64, error) {
	v := b.d.View()
	var total int64
	for _, run := range [2][]byte{v.First, v.Second} {
		if len(run) == 0 {
			continue
		}
		n, err := w.Write(run)
		b.d.DiscardFront(n)
		total += int64(n)
		if err != nil {
			return total, err
		}
		if n < len(run) {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

// View returns the buffered bytes as two runs without copying.
func (b *Bytes) View() SliceView[byte] {
	return b.d.View()
}

// Bytes returns a copy of the buffered bytes.
func (b *Bytes) Bytes() []byte {
	return b.d.AppendTo(make([]byte, 0, b.d.Len()))
}

// String returns the buffered bytes as a string.
func (b *Bytes) String() string {
	return string(b.Bytes())
}

// Len returns the number of buffered bytes.
func (b *Bytes) Len() int { return b.d.Len() }

// Cap returns the fixed capacity.
func (b *Bytes) Cap() int { return b.d.Cap() }

// Free returns how many bytes can be written without eviction.
func (b *Bytes) Free() int { return b.d.Free() }

// Evicted returns the total number of bytes lost to overwrites.
func (b *Bytes) Evicted() uint64 { return b.evicted }

// Reset drops all buffered bytes. The eviction count is kept.
func (b *Bytes) Reset() {
	b.d.Clear()
}

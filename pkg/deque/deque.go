package deque

import (
	"fmt"

	"github.com/c360/ringkit/errors"
)

// State is the coarse occupancy of a deque.
type State int

const (
	// Empty deques reject pops.
	Empty State = iota
	// Partial deques accept both pushes and pops.
	Partial
	// Full deques reject strict pushes until a pop.
	Full
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case Empty:
		return "Empty"
	case Partial:
		return "Partial"
	case Full:
		return "Full"
	default:
		return "Unknown"
	}
}

// CapacityError is returned by strict pushes against a full deque.
// It unwraps to errors.ErrCapacityExceeded.
type CapacityError struct {
	Op       string
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("deque.%s: capacity %d exceeded", e.Op, e.Capacity)
}

func (e *CapacityError) Unwrap() error {
	return errors.ErrCapacityExceeded
}

// Deque is a fixed-capacity double-ended queue over a circular array.
//
// head is the slot of the first element and tail the slot one past the last.
// The two coincide both when the deque is empty and when it is full; full
// tells the cases apart.
//
// Deque is not safe for concurrent use.
type Deque[T any] struct {
	buf  []T
	head Cursor
	tail Cursor
	full bool
}

// New creates an empty deque holding at most capacity elements.
// A capacity below 1 is raised to 1.
func New[T any](capacity int) *Deque[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Deque[T]{
		buf:  make([]T, capacity),
		head: NewCursor(0, capacity, Forward),
		tail: NewCursor(0, capacity, Forward),
	}
}

// NewFunc creates a full deque whose slot i holds ctor(i). ctor is called
// exactly once per slot, in index order.
func NewFunc[T any](capacity int, ctor func(i int) T) *Deque[T] {
	d := New[T](capacity)
	for i := range d.buf {
		d.buf[i] = ctor(i)
	}
	d.full = true
	return d
}

// Cap returns the fixed capacity.
func (d *Deque[T]) Cap() int {
	return len(d.buf)
}

// Len returns the number of elements.
func (d *Deque[T]) Len() int {
	if d.full {
		return len(d.buf)
	}
	n := d.tail.Pos() - d.head.Pos()
	if n < 0 {
		n += len(d.buf)
	}
	return n
}

// Free returns the number of pushes that would succeed.
func (d *Deque[T]) Free() int {
	return d.Cap() - d.Len()
}

// IsEmpty reports whether Len() == 0.
func (d *Deque[T]) IsEmpty() bool {
	return d.Len() == 0
}

// IsFull reports whether Len() == Cap().
func (d *Deque[T]) IsFull() bool {
	return d.Len() == d.Cap()
}

// State returns Empty, Partial or Full.
func (d *Deque[T]) State() State {
	switch n := d.Len(); {
	case n == 0:
		return Empty
	case n == d.Cap():
		return Full
	default:
		return Partial
	}
}

// Head returns the physical slot of the first element.
func (d *Deque[T]) Head() int {
	return d.head.Pos()
}

// Tail returns the physical slot the next PushBack writes to.
func (d *Deque[T]) Tail() int {
	return d.tail.Pos()
}

// PushBack appends v. A full deque is left unchanged and a *CapacityError
// is returned.
func (d *Deque[T]) PushBack(v T) error {
	if d.IsFull() {
		return &CapacityError{Op: "PushBack", Capacity: d.Cap()}
	}
	d.buf[d.tail.Pos()] = v
	d.tail.Next()
	d.full = d.tail == d.head
	return nil
}

// PushFront prepends v. A full deque is left unchanged and a *CapacityError
// is returned.
func (d *Deque[T]) PushFront(v T) error {
	if d.IsFull() {
		return &CapacityError{Op: "PushFront", Capacity: d.Cap()}
	}
	d.head.Prev()
	d.buf[d.head.Pos()] = v
	d.full = d.head == d.tail
	return nil
}

// PopFront removes and returns the first element.
func (d *Deque[T]) PopFront() (T, bool) {
	var zero T
	if d.IsEmpty() {
		return zero, false
	}
	v := d.buf[d.head.Pos()]
	d.buf[d.head.Pos()] = zero
	d.head.Next()
	d.full = false
	return v, true
}

// PopBack removes and returns the last element.
func (d *Deque[T]) PopBack() (T, bool) {
	var zero T
	if d.IsEmpty() {
		return zero, false
	}
	d.tail.Prev()
	v := d.buf[d.tail.Pos()]
	d.buf[d.tail.Pos()] = zero
	d.full = false
	return v, true
}

// Front returns the first element without removing it.
func (d *Deque[T]) Front() (T, bool) {
	var zero T
	if d.IsEmpty() {
		return zero, false
	}
	return d.buf[d.head.Pos()], true
}

// Back returns the last element without removing it.
func (d *Deque[T]) Back() (T, bool) {
	var zero T
	if d.IsEmpty() {
		return zero, false
	}
	c := d.tail
	c.Prev()
	return d.buf[c.Pos()], true
}

// slot maps logical index i to a physical index.
func (d *Deque[T]) slot(i int) int {
	c := d.head
	c.Advance(i)
	return c.Pos()
}

// At returns the element at logical index i, counted from the front.
func (d *Deque[T]) At(i int) (T, bool) {
	var zero T
	if i < 0 || i >= d.Len() {
		return zero, false
	}
	return d.buf[d.slot(i)], true
}

// Ptr returns a pointer to the element at logical index i, or nil when i is
// out of range. The pointer is valid until the next mutation of d.
func (d *Deque[T]) Ptr(i int) *T {
	if i < 0 || i >= d.Len() {
		return nil
	}
	return &d.buf[d.slot(i)]
}

// View returns the logical contents as at most two contiguous runs of the
// backing array. The runs alias d and are valid until the next mutation.
func (d *Deque[T]) View() SliceView[T] {
	if d.IsEmpty() {
		return SliceView[T]{}
	}
	head, tail := d.head.Pos(), d.tail.Pos()
	if head < tail {
		return SliceView[T]{First: d.buf[head:tail]}
	}
	// wrapped, or full with head == tail
	v := SliceView[T]{First: d.buf[head:]}
	if tail > 0 {
		v.Second = d.buf[:tail]
	}
	return v
}

// Clear removes all elements.
func (d *Deque[T]) Clear() {
	clear(d.buf)
	d.head = NewCursor(0, d.Cap(), Forward)
	d.tail = d.head
	d.full = false
}

// Clone returns an independent copy with the same physical layout.
func (d *Deque[T]) Clone() *Deque[T] {
	buf := make([]T, len(d.buf))
	copy(buf, d.buf)
	return &Deque[T]{buf: buf, head: d.head, tail: d.tail, full: d.full}
}

// AppendTo appends the logical contents to dst and returns the result.
func (d *Deque[T]) AppendTo(dst []T) []T {
	v := d.View()
	dst = append(dst, v.First...)
	return append(dst, v.Second...)
}

// PushBackSlice appends all of p or nothing. When p does not fit a
// *CapacityError is returned and d is unchanged.
func (d *Deque[T]) PushBackSlice(p []T) error {
	if len(p) == 0 {
		return nil
	}
	if len(p) > d.Free() {
		return &CapacityError{Op: "PushBackSlice", Capacity: d.Cap()}
	}
	tail := d.tail.Pos()
	n := copy(d.buf[tail:], p)
	copy(d.buf, p[n:])
	d.tail.Advance(len(p))
	d.full = d.tail == d.head
	return nil
}

// PopFrontInto moves up to len(dst) elements from the front into dst and
// returns how many were moved.
func (d *Deque[T]) PopFrontInto(dst []T) int {
	v := d.View()
	n := copy(dst, v.First)
	n += copy(dst[n:], v.Second)
	d.DiscardFront(n)
	return n
}

// DiscardFront drops up to n elements from the front and returns how many
// were dropped.
func (d *Deque[T]) DiscardFront(n int) int {
	n = min(max(n, 0), d.Len())
	if n == 0 {
		return 0
	}
	v := d.View()
	k := min(n, len(v.First))
	clear(v.First[:k])
	clear(v.Second[:n-k])
	d.head.Advance(n)
	d.full = false
	return n
}

// DiscardBack drops up to n elements from the back and returns how many
// were dropped.
func (d *Deque[T]) DiscardBack(n int) int {
	n = min(max(n, 0), d.Len())
	if n == 0 {
		return 0
	}
	v := d.View()
	k := min(n, len(v.Second))
	clear(v.Second[len(v.Second)-k:])
	clear(v.First[len(v.First)-(n-k):])
	d.tail.Retreat(n)
	d.full = false
	return n
}

// Equal reports whether a and b hold the same logical sequence, regardless
// of where it sits in either backing array.
func Equal[T comparable](a, b *Deque[T]) bool {
	return EqualFunc(a, b, func(x, y T) bool { return x == y })
}

// EqualFunc is Equal with a caller-supplied element comparison.
func EqualFunc[T any](a, b *Deque[T], eq func(x, y T) bool) bool {
	if a.Len() != b.Len() {
		return false
	}
	ia, ib := a.Iter(), b.Iter()
	for {
		x, ok := ia.Next()
		if !ok {
			return true
		}
		y, _ := ib.Next()
		if !eq(x, y) {
			return false
		}
	}
}

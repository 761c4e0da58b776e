package buffer

import (
	"context"
)

// Buffer represents a bounded FIFO shared between producers and consumers.
type Buffer[T any] interface {
	// Write adds an item at the back. Behavior on a full buffer depends on
	// the overflow policy.
	Write(item T) error

	// WriteWithContext is Write that gives up when ctx is done. Only the
	// Block policy ever waits.
	WriteWithContext(ctx context.Context, item T) error

	// Requeue puts an item back at the front, ahead of everything else.
	// It never evicts and fails with a capacity error when full.
	Requeue(item T) error

	// Read retrieves and removes the oldest item.
	Read() (T, bool)

	// ReadBatch retrieves and removes up to max items, oldest first.
	ReadBatch(max int) []T

	// Peek returns the oldest item without removing it.
	Peek() (T, bool)

	// Snapshot returns a copy of the buffered items, oldest first.
	Snapshot() []T

	// Size returns the current number of items.
	Size() int

	// Capacity returns the maximum number of items.
	Capacity() int

	// IsFull returns true if the buffer is at capacity.
	IsFull() bool

	// IsEmpty returns true if the buffer holds no items.
	IsEmpty() bool

	// Clear removes all items, reporting each to the drop callback.
	Clear()

	// Stats returns buffer statistics.
	Stats() *Statistics

	// Close wakes blocked writers and rejects further writes.
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest silently drops new items when the buffer is full.
	DropNewest

	// Block causes Write operations to block until space is available.
	Block

	// Reject returns a capacity error when the buffer is full.
	Reject
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	case Block:
		return "Block"
	case Reject:
		return "Reject"
	default:
		return "Unknown"
	}
}

// ParseOverflowPolicy maps a configuration string to a policy.
func ParseOverflowPolicy(s string) (OverflowPolicy, bool) {
	switch s {
	case "drop_oldest", "DropOldest", "":
		return DropOldest, true
	case "drop_newest", "DropNewest":
		return DropNewest, true
	case "block", "Block":
		return Block, true
	case "reject", "Reject":
		return Reject, true
	default:
		return DropOldest, false
	}
}

// DropCallback is called with every item lost to the overflow policy or to
// Clear. It runs after the buffer lock is released.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a buffer with the given capacity and options.
// Statistics are always collected; Prometheus metrics only with WithMetrics.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer(capacity, opts)
}

package buffer

import (
	"context"
	"sync"
	"time"

	"github.com/c360/ringkit/errors"
	"github.com/c360/ringkit/pkg/deque"
)

// circularBuffer guards a deque.Ring with a lock and applies the overflow
// policy on top of it.
type circularBuffer[T any] struct {
	mu      sync.RWMutex
	ring    *deque.Ring[T]
	stats   *Statistics    // always present
	metrics *bufferMetrics // nil unless WithMetrics
	opts    *bufferOptions[T]

	// items evicted by the write in progress, handed to the drop callback
	// once the lock is released
	evicted []T

	notEmpty *sync.Cond
	notFull  *sync.Cond
	closed   bool
}

func newCircularBuffer[T any](capacity int, opts *bufferOptions[T]) (*circularBuffer[T], error) {
	var metrics *bufferMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "newCircularBuffer", "metrics registration")
		}
	}

	cb := &circularBuffer[T]{
		stats:   NewStatistics(),
		metrics: metrics,
		opts:    opts,
	}
	cb.ring = deque.NewRing[T](capacity, deque.WithEvictFunc[T](cb.onEvict))
	cb.notEmpty = sync.NewCond(&cb.mu)
	cb.notFull = sync.NewCond(&cb.mu)

	return cb, nil
}

// onEvict runs under cb.mu from inside ring.PushOverwrite.
func (cb *circularBuffer[T]) onEvict(item T) {
	cb.recordDrop()
	if cb.opts.dropCallback != nil {
		cb.evicted = append(cb.evicted, item)
	}
}

// Write adds an item to the buffer according to the overflow policy.
func (cb *circularBuffer[T]) Write(item T) error {
	return cb.WriteWithContext(context.Background(), item)
}

// WriteWithTimeout is WriteWithContext with a deadline of now+timeout.
func (cb *circularBuffer[T]) WriteWithTimeout(item T, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return cb.WriteWithContext(ctx, item)
}

// WriteWithContext adds an item; under the Block policy it waits for space
// until ctx is done and then returns ctx.Err().
func (cb *circularBuffer[T]) WriteWithContext(ctx context.Context, item T) error {
	cb.mu.Lock()
	dropped, err := cb.writeLocked(ctx, "Write", item)
	cb.mu.Unlock()

	cb.notifyDropped(dropped)
	return err
}

func (cb *circularBuffer[T]) writeLocked(ctx context.Context, op string, item T) ([]T, error) {
	if cb.closed {
		return nil, errors.WrapInvalid(errors.ErrBufferClosed, "Buffer", op, "buffer closed")
	}

	if cb.ring.IsFull() {
		cb.recordOverflow()

		switch cb.opts.overflowPolicy {
		case DropNewest:
			cb.recordDrop()
			if cb.opts.dropCallback != nil {
				return []T{item}, nil
			}
			return nil, nil

		case Reject:
			return nil, errors.WrapTransient(cb.ring.PushBack(item), "Buffer", op, "append item")

		case Block:
			if err := cb.waitNotFull(ctx); err != nil {
				return nil, err
			}
			if cb.closed {
				return nil, errors.WrapInvalid(errors.ErrBufferClosed, "Buffer", op,
					"buffer closed during blocking wait")
			}
		}
	}

	// DropOldest evicts through onEvict; every other path has room here.
	cb.ring.PushOverwrite(item)
	cb.recordWrite()
	cb.notEmpty.Signal()

	dropped := cb.evicted
	cb.evicted = nil
	return dropped, nil
}

// waitNotFull blocks on notFull until there is room, the buffer closes or
// ctx is done. Called with cb.mu held.
func (cb *circularBuffer[T]) waitNotFull(ctx context.Context) error {
	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() {
			cb.mu.Lock()
			cb.notFull.Broadcast()
			cb.mu.Unlock()
		})
		defer stop()
	}

	for cb.ring.IsFull() && !cb.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		cb.notFull.Wait()
	}
	return nil
}

// Requeue puts an item back at the front of the buffer.
func (cb *circularBuffer[T]) Requeue(item T) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return errors.WrapInvalid(errors.ErrBufferClosed, "Buffer", "Requeue", "buffer closed")
	}
	if err := cb.ring.PushFront(item); err != nil {
		cb.recordOverflow()
		return errors.WrapTransient(err, "Buffer", "Requeue", "prepend item")
	}
	cb.recordWrite()
	cb.notEmpty.Signal()
	return nil
}

// Read retrieves and removes one item from the buffer.
func (cb *circularBuffer[T]) Read() (T, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	item, ok := cb.ring.PopFront()
	if !ok {
		return item, false
	}
	cb.recordRead(1)
	cb.notFull.Signal()
	return item, true
}

// ReadBatch retrieves and removes up to max items from the buffer.
func (cb *circularBuffer[T]) ReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	n := min(max, cb.ring.Len())
	if n == 0 {
		return nil
	}

	result := make([]T, n)
	cb.ring.PopFrontInto(result)
	cb.recordRead(n)
	cb.notFull.Broadcast()

	return result
}

// Peek retrieves one item without removing it from the buffer.
func (cb *circularBuffer[T]) Peek() (T, bool) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	item, ok := cb.ring.Front()
	if ok {
		cb.stats.Peek()
		if cb.metrics != nil {
			cb.metrics.recordPeek()
		}
	}
	return item, ok
}

// Snapshot returns a copy of the buffered items, oldest first.
func (cb *circularBuffer[T]) Snapshot() []T {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.ring.AppendTo(make([]T, 0, cb.ring.Len()))
}

// Size returns the current number of items in the buffer.
func (cb *circularBuffer[T]) Size() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.ring.Len()
}

// Capacity returns the maximum number of items the buffer can hold.
func (cb *circularBuffer[T]) Capacity() int {
	return cb.ring.Cap() // immutable
}

// IsFull returns true if the buffer is at maximum capacity.
func (cb *circularBuffer[T]) IsFull() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.ring.IsFull()
}

// IsEmpty returns true if the buffer contains no items.
func (cb *circularBuffer[T]) IsEmpty() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.ring.IsEmpty()
}

// Clear removes all items from the buffer.
func (cb *circularBuffer[T]) Clear() {
	cb.mu.Lock()
	var dropped []T
	if cb.opts.dropCallback != nil {
		dropped = cb.ring.AppendTo(nil)
	}
	cb.ring.Clear()
	cb.stats.UpdateSize(0)
	if cb.metrics != nil {
		cb.metrics.updateSize(0, cb.ring.Cap())
	}
	cb.notFull.Broadcast()
	cb.mu.Unlock()

	cb.notifyDropped(dropped)
}

// Stats returns buffer statistics.
func (cb *circularBuffer[T]) Stats() *Statistics {
	return cb.stats
}

// Close shuts down the buffer and wakes all waiting writers.
func (cb *circularBuffer[T]) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return nil
	}
	cb.closed = true
	cb.notEmpty.Broadcast()
	cb.notFull.Broadcast()
	return nil
}

func (cb *circularBuffer[T]) notifyDropped(items []T) {
	if cb.opts.dropCallback == nil {
		return
	}
	for _, item := range items {
		cb.opts.dropCallback(item)
	}
}

func (cb *circularBuffer[T]) recordWrite() {
	size := cb.ring.Len()
	cb.stats.Write()
	cb.stats.UpdateSize(int64(size))
	if cb.metrics != nil {
		cb.metrics.recordWrite(size, cb.ring.Cap())
	}
}

func (cb *circularBuffer[T]) recordRead(n int) {
	size := cb.ring.Len()
	cb.stats.ReadN(int64(n))
	cb.stats.UpdateSize(int64(size))
	if cb.metrics != nil {
		cb.metrics.recordRead(n, size, cb.ring.Cap())
	}
}

func (cb *circularBuffer[T]) recordOverflow() {
	cb.stats.Overflow()
	if cb.metrics != nil {
		cb.metrics.recordOverflow()
	}
}

func (cb *circularBuffer[T]) recordDrop() {
	cb.stats.Drop()
	if cb.metrics != nil {
		cb.metrics.recordDrop()
	}
}

// Package buffer provides mutex-guarded FIFO buffers over pkg/deque with
// configurable overflow policies, always-on statistics and optional
// Prometheus metrics.
//
// A deque.Deque is single-owner by construction. A circular buffer is the
// owner that makes one shareable: every operation runs under the buffer's
// lock, and the configured OverflowPolicy decides what a write into a full
// buffer does.
//
// # Quick Start
//
//	buf, err := buffer.NewCircularBuffer[int](1000)
//	if err != nil {
//		return err
//	}
//	_ = buf.Write(42)
//	value, ok := buf.Read()
//
// With overflow policy and metrics:
//
//	buf, err := buffer.NewCircularBuffer[ipc.Frame](64,
//		buffer.WithOverflowPolicy[ipc.Frame](buffer.Reject),
//		buffer.WithMetrics[ipc.Frame](registry, "mailbox_requests"),
//	)
//
// # Overflow Policies
//
//   - DropOldest: evict the oldest item to make room (default)
//   - DropNewest: discard the incoming item
//   - Block: wait for space, bounded by WriteWithContext's context
//   - Reject: fail with an error wrapping errors.ErrCapacityExceeded
//
// Items lost to DropOldest, DropNewest or Clear are passed to the
// DropCallback after the buffer lock is released, so a callback may call
// back into the buffer.
//
// # Observability
//
// Statistics are tracked with atomic counters and are available through
// Stats(). WithMetrics additionally exports the same counters under the
// ringkit_buffer_* metric family, labelled with the buffer name.
package buffer

// Package deque provides a fixed-capacity double-ended queue over a circular
// array, together with the overwrite-oldest wrappers built on it.
//
// # Layout
//
// A Deque holds a backing array of Cap() slots allocated once by New or
// NewFunc, a head cursor at the first element, a tail cursor one past the
// last element and a full flag. Head and tail coincide both when the deque is
// empty and when it is full; the flag tells the two apart, and every push
// that makes the cursors meet sets it on the same call.
//
//	head          tail
//	 v             v
//	[a][b][c][d][ ][ ][ ]   Len 4, View: First=[a b c d]
//
//	      tail  head
//	       v     v
//	[e][f][ ][ ][a][b][c]   Len 5, View: First=[a b c] Second=[e f]
//
// # Policies
//
// Deque pushes are strict: a full deque returns a *CapacityError and is left
// unchanged. Ring and Bytes layer overwrite-oldest semantics on top, for log
// and telemetry buffers where losing old data is preferable to blocking the
// producer.
//
// # Concurrency
//
// Nothing in this package locks. A deque shared between goroutines must be
// guarded by its owner; see pkg/buffer for a mutex-guarded channel buffer.
package deque

package deque

// EvictFunc receives each element a Ring drops to make room.
type EvictFunc[T any] func(item T)

// Ring is a bounded lossy buffer: pushes never fail, and a push into a full
// ring first drops an element from the opposite end. The strict Deque
// methods remain available through the embedded *Deque.
type Ring[T any] struct {
	*Deque[T]
	onEvict EvictFunc[T]
	evicted uint64
}

// RingOption configures a Ring.
type RingOption[T any] func(*Ring[T])

// WithEvictFunc installs a callback invoked synchronously for every evicted
// element, oldest first.
func WithEvictFunc[T any](fn EvictFunc[T]) RingOption[T] {
	return func(r *Ring[T]) {
		r.onEvict = fn
	}
}

// NewRing creates an empty ring of the given capacity.
func NewRing[T any](capacity int, opts ...RingOption[T]) *Ring[T] {
	return Wrap(New[T](capacity), opts...)
}

// Wrap layers overwrite semantics over an existing deque.
func Wrap[T any](d *Deque[T], opts ...RingOption[T]) *Ring[T] {
	r := &Ring[T]{Deque: d}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// PushOverwrite appends v, dropping the oldest element first if the ring is
// full. The newest Cap() pushes are kept in arrival order.
func (r *Ring[T]) PushOverwrite(v T) {
	if r.IsFull() {
		if old, ok := r.PopFront(); ok {
			r.evict(old)
		}
	}
	// cannot fail: there is room now
	_ = r.PushBack(v)
}

// PushFrontOverwrite prepends v, dropping the newest element first if the
// ring is full.
func (r *Ring[T]) PushFrontOverwrite(v T) {
	if r.IsFull() {
		if old, ok := r.PopBack(); ok {
			r.evict(old)
		}
	}
	_ = r.PushFront(v)
}

// Evicted returns how many elements have been dropped since creation.
func (r *Ring[T]) Evicted() uint64 {
	return r.evicted
}

func (r *Ring[T]) evict(v T) {
	r.evicted++
	if r.onEvict != nil {
		r.onEvict(v)
	}
}

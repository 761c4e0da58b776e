package deque

import "iter"

// SliceView is the logical contents of a deque as two contiguous runs.
// Second is empty unless the contents wrap past the end of the backing array.
type SliceView[T any] struct {
	First  []T
	Second []T
}

// Len returns len(First) + len(Second).
func (v SliceView[T]) Len() int {
	return len(v.First) + len(v.Second)
}

// Iter returns a double-ended iterator over the view.
func (v SliceView[T]) Iter() *Iter[T] {
	return &Iter[T]{view: v, back: v.Len()}
}

// Iter walks a SliceView from either end. The two ends meet in the middle:
// every element is yielded exactly once no matter how Next and NextBack
// calls are interleaved.
//
// An Iter borrows the deque it came from; mutating the deque while the
// iterator is in use gives undefined results.
type Iter[T any] struct {
	view  SliceView[T]
	front int // next logical index Next yields
	back  int // one past the logical index NextBack yields
}

// Iter returns a borrowing iterator over d's logical contents.
func (d *Deque[T]) Iter() *Iter[T] {
	return d.View().Iter()
}

func (it *Iter[T]) at(i int) T {
	if i < len(it.view.First) {
		return it.view.First[i]
	}
	return it.view.Second[i-len(it.view.First)]
}

// Next yields the front-most remaining element.
func (it *Iter[T]) Next() (T, bool) {
	if it.front >= it.back {
		var zero T
		return zero, false
	}
	v := it.at(it.front)
	it.front++
	return v, true
}

// NextBack yields the back-most remaining element.
func (it *Iter[T]) NextBack() (T, bool) {
	if it.front >= it.back {
		var zero T
		return zero, false
	}
	it.back--
	return it.at(it.back), true
}

// Len returns the number of elements not yet yielded.
func (it *Iter[T]) Len() int {
	return it.back - it.front
}

// IntoIter owns a private copy of a deque and drains it: Next pops from the
// front and NextBack pops from the back.
type IntoIter[T any] struct {
	d *Deque[T]
}

// IntoIter returns an owning iterator over a copy of d. d itself is not
// modified.
func (d *Deque[T]) IntoIter() *IntoIter[T] {
	return &IntoIter[T]{d: d.Clone()}
}

// Next pops the front-most remaining element.
func (it *IntoIter[T]) Next() (T, bool) {
	return it.d.PopFront()
}

// NextBack pops the back-most remaining element.
func (it *IntoIter[T]) NextBack() (T, bool) {
	return it.d.PopBack()
}

// Len returns the number of elements not yet yielded.
func (it *IntoIter[T]) Len() int {
	return it.d.Len()
}

// All yields (logical index, element) pairs front to back.
func (d *Deque[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		v := d.View()
		i := 0
		for _, run := range [2][]T{v.First, v.Second} {
			for _, e := range run {
				if !yield(i, e) {
					return
				}
				i++
			}
		}
	}
}

// Values yields elements front to back.
func (d *Deque[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, e := range d.All() {
			if !yield(e) {
				return
			}
		}
	}
}

// Backward yields (logical index, element) pairs back to front.
func (d *Deque[T]) Backward() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		it := d.Iter()
		for i := it.Len() - 1; i >= 0; i-- {
			e, _ := it.NextBack()
			if !yield(i, e) {
				return
			}
		}
	}
}

// Drain pops and yields elements from the front until d is empty or the
// loop stops early. Elements not yet yielded stay in d.
func (d *Deque[T]) Drain() iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			e, ok := d.PopFront()
			if !ok || !yield(e) {
				return
			}
		}
	}
}

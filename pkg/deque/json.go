package deque

import "encoding/json"

// MarshalJSON encodes the logical contents, front first, as a JSON array.
func (d *Deque[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.AppendTo(make([]T, 0, d.Len())))
}

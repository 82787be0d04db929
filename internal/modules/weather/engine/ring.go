package engine

// ring is a fixed-capacity circular buffer. Slots start at the zero value
// and are overwritten oldest first.
type ring[T any] struct {
	data []T
	head int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{data: make([]T, capacity)}
}

// push stores v at the write position and advances it. It reports whether
// the write position wrapped back to the start.
func (r *ring[T]) push(v T) bool {
	r.data[r.head] = v
	r.head = (r.head + 1) % len(r.data)
	return r.head == 0
}

// slots returns every slot, including ones not yet written.
func (r *ring[T]) slots() []T {
	return r.data
}

func (r *ring[T]) clone() *ring[T] {
	return &ring[T]{data: append([]T(nil), r.data...), head: r.head}
}

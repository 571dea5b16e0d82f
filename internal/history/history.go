package history

// #region bounded
// Bounded is a fixed-capacity append-only ring buffer. Pushing past capacity
// evicts from the front, including multi-element bursts in a single call.
// Insertion order is temporal order; nothing ever reorders elements.
//
// Bounded is a value type: Push returns a new Bounded and never aliases the
// receiver's backing array, so snapshots of the owning aggregate stay stable.
type Bounded[T any] struct {
	capacity int
	items    []T
}

// NewBounded creates an empty buffer with the given capacity.
// A capacity of zero or less means unbounded.
func NewBounded[T any](capacity int) Bounded[T] {
	return Bounded[T]{capacity: capacity}
}

// #endregion bounded

// #region push

// Push appends items in order, then evicts from the front until the buffer
// fits its capacity again.
func (b Bounded[T]) Push(items ...T) Bounded[T] {
	if len(items) == 0 {
		return b
	}
	merged := make([]T, 0, len(b.items)+len(items))
	merged = append(merged, b.items...)
	merged = append(merged, items...)
	if b.capacity > 0 && len(merged) > b.capacity {
		merged = merged[len(merged)-b.capacity:]
	}
	b.items = merged
	return b
}

// #endregion push

// #region read-views

// Len returns the number of stored elements.
func (b Bounded[T]) Len() int {
	return len(b.items)
}

// Cap returns the configured capacity.
func (b Bounded[T]) Cap() int {
	return b.capacity
}

// Items returns a mutable copy of the elements, oldest first.
func (b Bounded[T]) Items() []T {
	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

// Last returns the most recent element, if any.
func (b Bounded[T]) Last() (T, bool) {
	if len(b.items) == 0 {
		var zero T
		return zero, false
	}
	return b.items[len(b.items)-1], true
}

// #endregion read-views

package pipeline

// Batch accumulates normalized records from repeated per-entity fetches
// into one ordered collection for a bulk write. Entities that contribute
// nothing simply contribute no items; first-seen order is preserved and
// nothing is deduplicated here.
type Batch[T any] struct {
	items []T
}

// Append adds items to the batch in order.
func (b *Batch[T]) Append(items ...T) {
	b.items = append(b.items, items...)
}

// Len returns the number of accumulated items.
func (b *Batch[T]) Len() int {
	return len(b.items)
}

// Items returns the accumulated items in insertion order.
func (b *Batch[T]) Items() []T {
	return b.items
}

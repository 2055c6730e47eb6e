package interp

import "iter"

// Table is an ordered map from id to an owned record. Records are created
// lazily by Ensure and iterate in first-reference order.
type Table[K comparable, V any] struct {
	keys  []K
	items map[K]*V
	newFn func(K) *V
}

// NewTable creates an empty table. newFn builds the record of a new id.
func NewTable[K comparable, V any](newFn func(K) *V) *Table[K, V] {
	return &Table[K, V]{
		items: make(map[K]*V),
		newFn: newFn,
	}
}

// Ensure returns the record of id, creating it on first reference.
func (t *Table[K, V]) Ensure(id K) *V {
	if v, ok := t.items[id]; ok {
		return v
	}
	v := t.newFn(id)
	t.items[id] = v
	t.keys = append(t.keys, id)
	return v
}

// Get returns the record of id without creating it.
func (t *Table[K, V]) Get(id K) (*V, bool) {
	v, ok := t.items[id]
	return v, ok
}

// Len returns the number of records.
func (t *Table[K, V]) Len() int {
	return len(t.keys)
}

// All iterates the records in insertion order.
func (t *Table[K, V]) All() iter.Seq2[K, *V] {
	return func(yield func(K, *V) bool) {
		for _, k := range t.keys {
			if !yield(k, t.items[k]) {
				return
			}
		}
	}
}

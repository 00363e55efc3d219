// Package sequence restores the order of items that carry a monotonically
// increasing sequence number but may arrive out of order, for example the
// chunks of a file sent as individual notifications.
package sequence

import "sync"

// Buffer releases items to a handler strictly in sequence order, starting at
// zero. Items that arrive early are held until the gap before them closes.
// The zero value is ready to use.
type Buffer[T any] struct {
	mu      sync.Mutex
	next    uint64
	pending map[uint64]T
}

// New creates an empty Buffer.
func New[T any]() *Buffer[T] {
	return &Buffer[T]{}
}

// Process hands item with sequence number seq to the buffer. handler is
// invoked, under the buffer's lock, for every item that becomes deliverable,
// in ascending order. Sequence numbers that were already delivered or are
// already buffered are ignored.
func (b *Buffer[T]) Process(item T, seq uint64, handler func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case seq < b.next:
		return
	case seq == b.next:
		handler(item)
		b.next++
	default:
		if b.pending == nil {
			b.pending = make(map[uint64]T)
		}
		if _, ok := b.pending[seq]; !ok {
			b.pending[seq] = item
		}
	}

	for {
		v, ok := b.pending[b.next]
		if !ok {
			return
		}
		delete(b.pending, b.next)
		handler(v)
		b.next++
	}
}

// Clear forgets all buffered items and restarts the sequence at zero.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	b.next = 0
	b.pending = nil
	b.mu.Unlock()
}

// Next returns the sequence number the buffer is waiting for.
func (b *Buffer[T]) Next() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.next
}

// Pending returns the number of items held back waiting for a gap to close.
func (b *Buffer[T]) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

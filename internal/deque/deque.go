// Package deque implements a doubly-linked list augmented with a
// value→node index, giving O(1) push/pop at either end and O(1)
// promotion/demotion of any present element via Bubble/Drown.
//
// It is not safe for concurrent use; callers that need that (the LRU
// cache) serialize access with their own mutex.
package deque

import "iter"

// node is owned by the FancyDeque it was inserted into. It is referenced,
// non-owning, by the index map.
type node[T comparable] struct {
	prev, next *node[T]
	value      T
}

// FancyDeque is a doubly-linked list of unique values with an index from
// value to node, enabling O(1) Bubble/Drown of any present element.
// Pushing a value that is already present is undefined; callers (the LRU
// cache) avoid it by checking membership first.
type FancyDeque[T comparable] struct {
	head, tail *node[T]
	size       int
	index      map[T]*node[T]
}

// New returns an empty FancyDeque.
func New[T comparable]() *FancyDeque[T] {
	return &FancyDeque[T]{index: make(map[T]*node[T])}
}

// Len returns the number of values currently in the deque.
func (d *FancyDeque[T]) Len() int {
	return d.size
}

// PushHead inserts v before the current head.
func (d *FancyDeque[T]) PushHead(v T) {
	n := &node[T]{value: v, next: d.head}
	if d.head != nil {
		d.head.prev = n
	}
	d.head = n
	if d.tail == nil {
		d.tail = n
	}
	d.index[v] = n
	d.size++
}

// PushTail inserts v after the current tail.
func (d *FancyDeque[T]) PushTail(v T) {
	n := &node[T]{value: v, prev: d.tail}
	if d.tail != nil {
		d.tail.next = n
	}
	d.tail = n
	if d.head == nil {
		d.head = n
	}
	d.index[v] = n
	d.size++
}

// PopHead removes and returns the head value. ok is false when the deque
// is empty.
func (d *FancyDeque[T]) PopHead() (v T, ok bool) {
	if d.head == nil {
		return v, false
	}
	n := d.head
	d.head = n.next
	if d.head != nil {
		d.head.prev = nil
	} else {
		d.tail = nil
	}
	delete(d.index, n.value)
	d.size--
	return n.value, true
}

// PopTail removes and returns the tail value. ok is false when the deque
// is empty.
func (d *FancyDeque[T]) PopTail() (v T, ok bool) {
	if d.tail == nil {
		return v, false
	}
	n := d.tail
	d.tail = n.prev
	if d.tail != nil {
		d.tail.next = nil
	} else {
		d.head = nil
	}
	delete(d.index, n.value)
	d.size--
	return n.value, true
}

// Head peeks at the head value without removing it.
func (d *FancyDeque[T]) Head() (v T, ok bool) {
	if d.head == nil {
		return v, false
	}
	return d.head.value, true
}

// Tail peeks at the tail value without removing it.
func (d *FancyDeque[T]) Tail() (v T, ok bool) {
	if d.tail == nil {
		return v, false
	}
	return d.tail.value, true
}

// Bubble moves v to the head in O(1), if present. Returns false if v is
// not indexed. Idempotent: bubbling an already-head value is a no-op.
func (d *FancyDeque[T]) Bubble(v T) bool {
	n, ok := d.index[v]
	if !ok {
		return false
	}
	if d.size == 1 || n == d.head {
		return true
	}
	d.detach(n)
	d.PushHead(v)
	return true
}

// Drown moves v to the tail in O(1), if present. Returns false if v is
// not indexed. Idempotent: drowning an already-tail value is a no-op.
func (d *FancyDeque[T]) Drown(v T) bool {
	n, ok := d.index[v]
	if !ok {
		return false
	}
	if d.size == 1 || n == d.tail {
		return true
	}
	d.detach(n)
	d.PushTail(v)
	return true
}

// detach splices n out of the list and removes its index entry; the
// caller re-inserts via PushHead/PushTail, which recreates the index
// entry. The index is never left pointing at a detached node.
func (d *FancyDeque[T]) detach(n *node[T]) {
	delete(d.index, n.value)
	if n == d.tail {
		d.tail = n.prev
		d.tail.next = nil
		d.size--
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		d.head = n.next
	}
	n.next.prev = n.prev
	d.size--
}

// Values returns a lazy, non-restartable head-to-tail sequence of values.
func (d *FancyDeque[T]) Values() iter.Seq[T] {
	return func(yield func(T) bool) {
		for n := d.head; n != nil; n = n.next {
			if !yield(n.value) {
				return
			}
		}
	}
}

// ValuesReverse returns a lazy, non-restartable tail-to-head sequence of
// values.
func (d *FancyDeque[T]) ValuesReverse() iter.Seq[T] {
	return func(yield func(T) bool) {
		for n := d.tail; n != nil; n = n.prev {
			if !yield(n.value) {
				return
			}
		}
	}
}

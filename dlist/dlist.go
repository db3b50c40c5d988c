// Package dlist implements a doubly-linked list with per-list value
// hooks.
//
// The list is used where O(1) splice and middle insertion matter more
// than memory locality. Value ownership is governed by the hooks: Free is
// invoked when a node is removed or the list is released, Dup when the
// list is copied, Match during Search. All hooks are optional.
package dlist

// Direction selects iteration order.
type Direction int

const (
	// Forward iterates head to tail.
	Forward Direction = iota
	// Backward iterates tail to head.
	Backward
)

// Hooks carries the per-list value callbacks.
type Hooks struct {
	// Dup copies a value during List.Dup. Nil means values are shared.
	Dup func(value any) any
	// Free releases a value when its node is removed. Nil means no-op.
	Free func(value any)
	// Match reports whether a value matches a search key. Nil means
	// comparison with ==, which requires comparable values.
	Match func(value, key any) bool
}

// Node is a list element. Nodes are owned exclusively by the list that
// contains them.
type Node struct {
	prev, next *Node
	value      any
}

// Prev returns the previous node or nil.
func (n *Node) Prev() *Node { return n.prev }

// Next returns the next node or nil.
func (n *Node) Next() *Node { return n.next }

// Value returns the node's value.
func (n *Node) Value() any { return n.value }

// SetValue replaces the node's value without invoking hooks.
func (n *Node) SetValue(v any) { n.value = v }

// List is a doubly-linked list. The zero value is not usable; create
// instances with New.
type List struct {
	head, tail *Node
	length     int
	hooks      Hooks
}

// New creates an empty list with the given hooks.
func New(hooks Hooks) *List {
	return &List{hooks: hooks}
}

// Len returns the number of nodes. O(1).
func (l *List) Len() int { return l.length }

// Head returns the first node or nil.
func (l *List) Head() *Node { return l.head }

// Tail returns the last node or nil.
func (l *List) Tail() *Node { return l.tail }

// Release removes every node, invoking the Free hook on each value.
func (l *List) Release() {
	n := l.head
	for n != nil {
		next := n.next
		if l.hooks.Free != nil {
			l.hooks.Free(n.value)
		}
		n.prev, n.next, n.value = nil, nil, nil
		n = next
	}
	l.head, l.tail, l.length = nil, nil, 0
}

// AddHead prepends a node holding v and returns it. O(1).
func (l *List) AddHead(v any) *Node {
	n := &Node{value: v}
	if l.length == 0 {
		l.head, l.tail = n, n
	} else {
		n.next = l.head
		l.head.prev = n
		l.head = n
	}
	l.length++
	return n
}

// AddTail appends a node holding v and returns it. O(1).
func (l *List) AddTail(v any) *Node {
	n := &Node{value: v}
	if l.length == 0 {
		l.head, l.tail = n, n
	} else {
		n.prev = l.tail
		l.tail.next = n
		l.tail = n
	}
	l.length++
	return n
}

// InsertBefore inserts a node holding v before old and returns it. O(1).
func (l *List) InsertBefore(old *Node, v any) *Node {
	n := &Node{value: v, prev: old.prev, next: old}
	if old.prev == nil {
		l.head = n
	} else {
		old.prev.next = n
	}
	old.prev = n
	l.length++
	return n
}

// InsertAfter inserts a node holding v after old and returns it. O(1).
func (l *List) InsertAfter(old *Node, v any) *Node {
	n := &Node{value: v, prev: old, next: old.next}
	if old.next == nil {
		l.tail = n
	} else {
		old.next.prev = n
	}
	old.next = n
	l.length++
	return n
}

// Remove unlinks n and invokes the Free hook on its value. The node must
// belong to this list. O(1).
func (l *List) Remove(n *Node) {
	if n.prev == nil {
		l.head = n.next
	} else {
		n.prev.next = n.next
	}
	if n.next == nil {
		l.tail = n.prev
	} else {
		n.next.prev = n.prev
	}
	if l.hooks.Free != nil {
		l.hooks.Free(n.value)
	}
	n.prev, n.next, n.value = nil, nil, nil
	l.length--
}

// Iterator is a list traversal position. Obtain with List.Iterator.
type Iterator struct {
	list      *List
	next      *Node
	direction Direction
}

// Iterator creates an iterator over l in the given direction.
func (l *List) Iterator(d Direction) *Iterator {
	it := &Iterator{list: l, direction: d}
	if d == Forward {
		it.next = l.head
	} else {
		it.next = l.tail
	}
	return it
}

// Next returns the next node or nil when the traversal is done. The
// returned node may be removed from the list without invalidating the
// iterator; removing any other node is also safe unless it is the one the
// iterator would return next.
func (it *Iterator) Next() *Node {
	current := it.next
	if current != nil {
		if it.direction == Forward {
			it.next = current.next
		} else {
			it.next = current.prev
		}
	}
	return current
}

// RewindHead resets the iterator to the head, iterating forward.
func (it *Iterator) RewindHead() {
	it.next = it.list.head
	it.direction = Forward
}

// RewindTail resets the iterator to the tail, iterating backward.
func (it *Iterator) RewindTail() {
	it.next = it.list.tail
	it.direction = Backward
}

// Dup returns a copy of the list. Values are copied through the Dup hook
// when present and shared otherwise. O(n).
func (l *List) Dup() *List {
	out := New(l.hooks)
	it := l.Iterator(Forward)
	for n := it.Next(); n != nil; n = it.Next() {
		v := n.value
		if l.hooks.Dup != nil {
			v = l.hooks.Dup(v)
		}
		out.AddTail(v)
	}
	return out
}

// Search returns the first node matching key, walking head to tail, using
// the Match hook or == when the hook is nil. O(n).
func (l *List) Search(key any) *Node {
	it := l.Iterator(Forward)
	for n := it.Next(); n != nil; n = it.Next() {
		if l.hooks.Match != nil {
			if l.hooks.Match(n.value, key) {
				return n
			}
		} else if n.value == key {
			return n
		}
	}
	return nil
}

// Index returns the node at position i, negative indices counting from
// the tail (-1 is the tail itself). Returns nil when out of range. O(n).
func (l *List) Index(i int) *Node {
	var n *Node
	if i < 0 {
		i = (-i) - 1
		n = l.tail
		for i > 0 && n != nil {
			n = n.prev
			i--
		}
	} else {
		n = l.head
		for i > 0 && n != nil {
			n = n.next
			i--
		}
	}
	return n
}

// Rotate moves the tail node to the head. O(1).
func (l *List) Rotate() {
	if l.length <= 1 {
		return
	}
	t := l.tail
	l.tail = t.prev
	l.tail.next = nil
	t.prev = nil
	t.next = l.head
	l.head.prev = t
	l.head = t
}

// Package alloc owns object lifetime bookkeeping.
//
// Ownership boundary:
// - every Node has at most one owner
// - Attach moves a node, it never shares one
// - Free releases a node and everything still attached beneath it
//
// The relation is a forest. Attach refuses anything that would create a
// cycle or resurrect a released node.
package alloc

import "errors"

var (
	ErrFreed = errors.New("alloc: node already freed")
	ErrCycle = errors.New("alloc: attach would create an ownership cycle")
)

// Node is one slot in the ownership forest. The zero value is a live,
// unowned root. Nodes are meant to be embedded in the values they track.
type Node struct {
	owner *Node
	head  *Node
	tail  *Node
	prev  *Node
	next  *Node

	ref     any
	release func()
	freed   bool
}

// Init binds the node to the value it tracks and the hook that runs when the
// node is released. Either may be nil.
func (n *Node) Init(ref any, release func()) {
	n.ref = ref
	n.release = release
}

// Ref returns the value bound by Init.
func (n *Node) Ref() any {
	return n.ref
}

// Owner returns the current owner or nil for a root.
func (n *Node) Owner() *Node {
	return n.owner
}

// Freed reports whether the node has been released.
func (n *Node) Freed() bool {
	return n.freed
}

// Children returns the directly attached nodes in attach order.
func (n *Node) Children() []*Node {
	out := make([]*Node, 0)
	for c := n.head; c != nil; c = c.next {
		out = append(out, c)
	}
	return out
}

// Attach detaches child from its current owner and links it under owner.
// A nil owner turns child into a root.
func Attach(child, owner *Node) error {
	if child == nil {
		return nil
	}
	if child.freed || (owner != nil && owner.freed) {
		return ErrFreed
	}
	for p := owner; p != nil; p = p.owner {
		if p == child {
			return ErrCycle
		}
	}
	Detach(child)
	if owner == nil {
		return nil
	}
	child.owner = owner
	child.prev = owner.tail
	if owner.tail != nil {
		owner.tail.next = child
	} else {
		owner.head = child
	}
	owner.tail = child
	return nil
}

// Detach unlinks n from its owner. It is a no-op for roots.
func Detach(n *Node) {
	o := n.owner
	if o == nil {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		o.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		o.tail = n.prev
	}
	n.owner, n.prev, n.next = nil, nil, nil
}

// Free detaches n and releases it together with every node still attached
// beneath it, children before parents. It returns the number of nodes
// released; freeing an already released node releases nothing.
func Free(n *Node) int {
	if n == nil || n.freed {
		return 0
	}
	Detach(n)
	return release(n)
}

func release(n *Node) int {
	count := 0
	for c := n.head; c != nil; {
		next := c.next
		c.owner, c.prev, c.next = nil, nil, nil
		count += release(c)
		c = next
	}
	n.head, n.tail = nil, nil
	n.freed = true
	if n.release != nil {
		n.release()
	}
	return count + 1
}

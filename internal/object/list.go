package object

import (
	"fmt"
	"iter"

	"github.com/danmuck/meshd/internal/alloc"
)

// Ownership selects whether a container adopts an inserted value.
type Ownership bool

const (
	// Adopt makes the container the value's owner; freeing the container
	// frees the value.
	Adopt Ownership = true
	// Borrow links the value without taking ownership; the caller keeps
	// responsibility for its lifetime.
	Borrow Ownership = false
)

type element struct {
	value *Object
	prev  *element
	next  *element
}

// List is an ordered sequence of objects. Membership is by identity: an
// object can appear in a given list at most once.
type List struct {
	obj     *Object
	head    *element
	tail    *element
	length  int
	members map[*Object]*element
	width   Width
	walking int
}

// NewList returns an empty list whose count prefix width is chosen at
// encode time.
func NewList() *List {
	l, _ := NewListWidth(WidthAuto)
	return l
}

// NewListWidth returns an empty list pinned to the given prefix width.
func NewListWidth(width Width) (*List, error) {
	if !width.Valid() {
		return nil, fmt.Errorf("%w: list width %s", ErrTypeMismatch, width)
	}
	l := &List{members: make(map[*Object]*element), width: width}
	l.obj = newObject(TagList16, l)
	return l, nil
}

// Object returns the list object wrapping l.
func (l *List) Object() *Object {
	return l.obj
}

// Width returns the pinned width, WidthAuto if none.
func (l *List) Width() Width {
	return l.width
}

// Free releases the list and every value it still owns.
func (l *List) Free() {
	l.obj.Free()
}

func (l *List) tag() Tag {
	switch l.width {
	case Width32:
		return TagList32
	case Width16:
		return TagList16
	}
	if l.length > 0xffff {
		return TagList32
	}
	return TagList16
}

func (l *List) release() {
	for e := l.head; e != nil; {
		next := e.next
		e.prev, e.next, e.value = nil, nil, nil
		e = next
	}
	l.head, l.tail, l.length = nil, nil, 0
	clear(l.members)
}

func (l *List) mutable() error {
	if l.obj.node.Freed() {
		return ErrFreed
	}
	if l.walking > 0 {
		return ErrConcurrentMutation
	}
	return nil
}

func (l *List) take(v *Object, own Ownership) (*element, error) {
	if err := l.mutable(); err != nil {
		return nil, err
	}
	if err := v.live(); err != nil {
		return nil, err
	}
	if v == l.obj {
		return nil, fmt.Errorf("%w: list cannot contain itself", alloc.ErrCycle)
	}
	if _, ok := l.members[v]; ok {
		return nil, ErrDuplicateMember
	}
	if own == Adopt {
		if err := v.Attach(l.obj); err != nil {
			return nil, err
		}
	}
	e := &element{value: v}
	l.members[v] = e
	l.length++
	return e, nil
}

func (l *List) linkAfter(e, at *element) {
	e.prev = at
	if at == nil {
		e.next = l.head
		l.head = e
	} else {
		e.next = at.next
		at.next = e
	}
	if e.next != nil {
		e.next.prev = e
	} else {
		l.tail = e
	}
}

// Append adds v at the end.
func (l *List) Append(v *Object, own Ownership) error {
	e, err := l.take(v, own)
	if err != nil {
		return err
	}
	l.linkAfter(e, l.tail)
	return nil
}

// Prepend adds v at the front.
func (l *List) Prepend(v *Object, own Ownership) error {
	e, err := l.take(v, own)
	if err != nil {
		return err
	}
	l.linkAfter(e, nil)
	return nil
}

// InsertBefore links v directly before existing.
func (l *List) InsertBefore(v, existing *Object, own Ownership) error {
	at, ok := l.members[existing]
	if !ok {
		return fmt.Errorf("%w: insert anchor not in list", ErrKeyNotFound)
	}
	e, err := l.take(v, own)
	if err != nil {
		return err
	}
	l.linkAfter(e, at.prev)
	return nil
}

// InsertAfter links v directly after existing.
func (l *List) InsertAfter(v, existing *Object, own Ownership) error {
	at, ok := l.members[existing]
	if !ok {
		return fmt.Errorf("%w: insert anchor not in list", ErrKeyNotFound)
	}
	e, err := l.take(v, own)
	if err != nil {
		return err
	}
	l.linkAfter(e, at)
	return nil
}

// Delete unlinks v and returns it without freeing it. If the list owned v,
// v becomes a root and the caller is responsible for it.
func (l *List) Delete(v *Object) (*Object, error) {
	if err := l.mutable(); err != nil {
		return nil, err
	}
	e, ok := l.members[v]
	if !ok {
		return nil, ErrKeyNotFound
	}
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	delete(l.members, v)
	l.length--
	if v.Owner() == l.obj {
		_ = v.Attach(nil)
	}
	return v, nil
}

// Element returns the value at index i.
func (l *List) Element(i int) (*Object, error) {
	if i < 0 || i >= l.length {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfBounds, i, l.length)
	}
	e := l.head
	for ; i > 0; i-- {
		e = e.next
	}
	return e.value, nil
}

// Len returns the element count.
func (l *List) Len() int {
	return l.length
}

// Contains reports whether v itself is a member.
func (l *List) Contains(v *Object) bool {
	_, ok := l.members[v]
	return ok
}

// First returns the head value or nil.
func (l *List) First() *Object {
	if l.head == nil {
		return nil
	}
	return l.head.value
}

// Last returns the tail value or nil.
func (l *List) Last() *Object {
	if l.tail == nil {
		return nil
	}
	return l.tail.value
}

// Parse visits values left to right. A non-nil return from visit stops the
// walk and is returned.
func (l *List) Parse(visit func(v *Object) any) any {
	l.walking++
	defer func() { l.walking-- }()
	for e := l.head; e != nil; e = e.next {
		if r := visit(e.value); r != nil {
			return r
		}
	}
	return nil
}

// All iterates index/value pairs left to right.
func (l *List) All() iter.Seq2[int, *Object] {
	return func(yield func(int, *Object) bool) {
		l.walking++
		defer func() { l.walking-- }()
		i := 0
		for e := l.head; e != nil; e = e.next {
			if !yield(i, e.value) {
				return
			}
			i++
		}
	}
}

// Values returns the members in order.
func (l *List) Values() []*Object {
	out := make([]*Object, 0, l.length)
	for e := l.head; e != nil; e = e.next {
		out = append(out, e.value)
	}
	return out
}

// AppendString appends an adopted narrowest str object.
func (l *List) AppendString(s string) error {
	v, err := NewString(s)
	if err != nil {
		return err
	}
	return l.Append(v, Adopt)
}

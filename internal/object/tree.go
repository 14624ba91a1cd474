package object

import (
	"bytes"
	"fmt"
	"iter"

	"github.com/danmuck/meshd/internal/alloc"
)

// tstNode is one split byte of the ternary search tree. A node terminates a
// key when the key's last byte matched split; such nodes hold the value and
// a str copy of the key.
type tstNode struct {
	split byte
	low   *tstNode
	eq    *tstNode
	high  *tstNode
	key   *Object
	value *Object
}

// Tree maps non-empty byte-string keys to objects.
type Tree struct {
	obj     *Object
	root    *tstNode
	count   int
	width   Width
	walking int
}

// NewTree returns an empty tree whose count prefix width is chosen at
// encode time.
func NewTree() *Tree {
	t, _ := NewTreeWidth(WidthAuto)
	return t
}

// NewTreeWidth returns an empty tree pinned to the given prefix width.
func NewTreeWidth(width Width) (*Tree, error) {
	if !width.Valid() {
		return nil, fmt.Errorf("%w: tree width %s", ErrTypeMismatch, width)
	}
	t := &Tree{width: width}
	t.obj = newObject(TagTree16, t)
	return t, nil
}

// Object returns the tree object wrapping t.
func (t *Tree) Object() *Object {
	return t.obj
}

// Width returns the pinned width, WidthAuto if none.
func (t *Tree) Width() Width {
	return t.width
}

// Free releases the tree, its key copies and every value it still owns.
func (t *Tree) Free() {
	t.obj.Free()
}

// Len returns the number of keys present.
func (t *Tree) Len() int {
	return t.count
}

func (t *Tree) tag() Tag {
	switch t.width {
	case Width32:
		return TagTree32
	case Width16:
		return TagTree16
	}
	if t.count > 0xffff {
		return TagTree32
	}
	return TagTree16
}

func (t *Tree) release() {
	t.root = nil
	t.count = 0
}

func (t *Tree) mutable() error {
	if t.obj.node.Freed() {
		return ErrFreed
	}
	if t.walking > 0 {
		return ErrConcurrentMutation
	}
	return nil
}

func checkKey(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	return nil
}

// locate descends to the node terminating key. With create set, missing
// nodes are added along the way.
func (t *Tree) locate(key []byte, create bool) *tstNode {
	p := &t.root
	i := 0
	for {
		n := *p
		if n == nil {
			if !create {
				return nil
			}
			n = &tstNode{split: key[i]}
			*p = n
		}
		c := key[i]
		switch {
		case c < n.split:
			p = &n.low
		case c > n.split:
			p = &n.high
		default:
			i++
			if i == len(key) {
				return n
			}
			p = &n.eq
		}
	}
}

// Insert adds key unless it is already present.
func (t *Tree) Insert(key []byte, v *Object, own Ownership) error {
	return t.insert(key, v, own, false)
}

// InsertForce adds key, replacing any present value. A replaced value the
// tree owned is freed.
func (t *Tree) InsertForce(key []byte, v *Object, own Ownership) error {
	return t.insert(key, v, own, true)
}

func (t *Tree) insert(key []byte, v *Object, own Ownership, force bool) error {
	if err := t.mutable(); err != nil {
		return err
	}
	if err := checkKey(key); err != nil {
		return err
	}
	if err := v.live(); err != nil {
		return err
	}
	if v == t.obj {
		return fmt.Errorf("%w: tree cannot contain itself", alloc.ErrCycle)
	}
	if n := t.locate(key, false); n != nil && n.value != nil {
		if !force {
			return fmt.Errorf("%w: %q", ErrDuplicateKey, key)
		}
		if n.value == v {
			return nil
		}
	}
	keyObj, err := newBytes(narrowTag(len(key), TagStr8, TagStr16, TagStr32), key)
	if err != nil {
		return err
	}
	if own == Adopt {
		if err := v.Attach(t.obj); err != nil {
			return err
		}
	}
	_ = keyObj.Attach(t.obj)

	n := t.locate(key, true)
	if n.value != nil {
		t.drop(n)
	} else {
		t.count++
	}
	n.key = keyObj
	n.value = v
	return nil
}

// drop clears the terminal slot of n, freeing what the tree owns.
func (t *Tree) drop(n *tstNode) {
	if n.value.Owner() == t.obj {
		n.value.Free()
	}
	n.key.Free()
	n.key, n.value = nil, nil
}

// Find returns the value stored under key.
func (t *Tree) Find(key []byte) (*Object, error) {
	if len(key) == 0 {
		return nil, ErrKeyNotFound
	}
	n := t.locate(key, false)
	if n == nil || n.value == nil {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return n.value, nil
}

// FindString is Find for string keys.
func (t *Tree) FindString(key string) (*Object, error) {
	return t.Find([]byte(key))
}

// Contains reports whether key is present.
func (t *Tree) Contains(key []byte) bool {
	_, err := t.Find(key)
	return err == nil
}

// Delete removes key and returns its value without freeing it. If the tree
// owned the value it becomes a root and the caller is responsible for it.
// Branches left empty are pruned.
func (t *Tree) Delete(key []byte) (*Object, error) {
	if err := t.mutable(); err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, ErrKeyNotFound
	}
	var out *Object
	t.root = t.remove(t.root, key, 0, &out)
	if out == nil {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return out, nil
}

func (t *Tree) remove(n *tstNode, key []byte, i int, out **Object) *tstNode {
	if n == nil {
		return nil
	}
	c := key[i]
	switch {
	case c < n.split:
		n.low = t.remove(n.low, key, i, out)
	case c > n.split:
		n.high = t.remove(n.high, key, i, out)
	case i+1 < len(key):
		n.eq = t.remove(n.eq, key, i+1, out)
	case n.value != nil:
		v := n.value
		if v.Owner() == t.obj {
			_ = v.Attach(nil)
		}
		n.key.Free()
		n.key, n.value = nil, nil
		t.count--
		*out = v
	}
	if n.value == nil && n.low == nil && n.eq == nil && n.high == nil {
		return nil
	}
	return n
}

// First returns the smallest key and its value.
func (t *Tree) First() ([]byte, *Object, bool) {
	return t.Next(nil)
}

// Next returns the smallest key strictly greater than prev, in byte order.
// A nil prev starts from the beginning.
func (t *Tree) Next(prev []byte) ([]byte, *Object, bool) {
	var n *tstNode
	if prev == nil {
		n = minNode(t.root)
	} else {
		n = successor(t.root, prev, 0)
	}
	if n == nil {
		return nil, nil, false
	}
	return bytes.Clone(n.key.val.(bytesVal)), n.value, true
}

func minNode(n *tstNode) *tstNode {
	for n != nil {
		if m := minNode(n.low); m != nil {
			return m
		}
		if n.value != nil {
			return n
		}
		if m := minNode(n.eq); m != nil {
			return m
		}
		n = n.high
	}
	return nil
}

// successor finds the smallest terminal key greater than prev below n,
// where every key under n shares prev[:d].
func successor(n *tstNode, prev []byte, d int) *tstNode {
	if n == nil {
		return nil
	}
	if d >= len(prev) {
		return minNode(n)
	}
	c := prev[d]
	switch {
	case c < n.split:
		if m := successor(n.low, prev, d); m != nil {
			return m
		}
		if n.value != nil {
			return n
		}
		if m := minNode(n.eq); m != nil {
			return m
		}
		return minNode(n.high)
	case c == n.split:
		if m := successor(n.eq, prev, d+1); m != nil {
			return m
		}
		return minNode(n.high)
	default:
		return successor(n.high, prev, d)
	}
}

// Keys returns every key in ascending byte order.
func (t *Tree) Keys() [][]byte {
	out := make([][]byte, 0, t.count)
	for k := range t.All() {
		out = append(out, k)
	}
	return out
}

// All iterates keys and values in ascending byte order.
func (t *Tree) All() iter.Seq2[[]byte, *Object] {
	return func(yield func([]byte, *Object) bool) {
		t.walking++
		defer func() { t.walking-- }()
		for n := range terminals(t.root) {
			if !yield(bytes.Clone(n.key.val.(bytesVal)), n.value) {
				return
			}
		}
	}
}

// Put force-inserts an adopted value under a string key.
func (t *Tree) Put(key string, v *Object) error {
	return t.InsertForce([]byte(key), v, Adopt)
}

// PutString stores s under key.
func (t *Tree) PutString(key, s string) error {
	v, err := NewString(s)
	if err != nil {
		return err
	}
	return t.Put(key, v)
}

// PutInt stores the narrowest signed object for v under key.
func (t *Tree) PutInt(key string, v int64) error {
	return t.Put(key, NewInt(v))
}

// PutUint stores the narrowest unsigned object for v under key.
func (t *Tree) PutUint(key string, v uint64) error {
	return t.Put(key, NewUint(v))
}

// PutBool stores v under key.
func (t *Tree) PutBool(key string, v bool) error {
	return t.Put(key, Bool(v))
}

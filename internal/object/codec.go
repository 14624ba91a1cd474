package object

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Limits constrains decode memory use and nesting depth.
type Limits struct {
	MaxDepth    int
	MaxElements int
}

// DefaultLimits mirrors the transport's frame ceiling.
func DefaultLimits() Limits {
	return Limits{
		MaxDepth:    64,
		MaxElements: 1 << 20,
	}
}

// Encode writes the wire form of o to w.
func Encode(w io.Writer, o *Object) error {
	buf, err := o.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// MarshalBinary returns the wire form of o.
func (o *Object) MarshalBinary() ([]byte, error) {
	return AppendEncode(nil, o)
}

// MarshalBinary returns the wire form of the list.
func (l *List) MarshalBinary() ([]byte, error) {
	return l.obj.MarshalBinary()
}

// MarshalBinary returns the wire form of the tree.
func (t *Tree) MarshalBinary() ([]byte, error) {
	return t.obj.MarshalBinary()
}

// AppendEncode appends the wire form of o to dst.
func AppendEncode(dst []byte, o *Object) ([]byte, error) {
	return appendObject(dst, o, DefaultLimits().MaxDepth)
}

func appendObject(dst []byte, o *Object, depth int) ([]byte, error) {
	if err := o.live(); err != nil {
		return dst, err
	}
	if depth <= 0 {
		return dst, fmt.Errorf("%w: nesting too deep", ErrAllocation)
	}
	tag := o.Tag()
	switch v := o.val.(type) {
	case nil:
		return append(dst, byte(tag)), nil
	case uintVal, intVal, float32Val, float64Val:
		dst = append(dst, byte(tag))
		return o.appendScalar(dst), nil
	case bytesVal:
		dst = append(dst, byte(tag))
		dst = appendPrefix(dst, tag.prefixLen(), len(v))
		return append(dst, v...), nil
	case *extVal:
		dst = append(dst, byte(tag))
		dst = appendPrefix(dst, tag.prefixLen(), len(v.data))
		dst = append(dst, v.subtype)
		return append(dst, v.data...), nil
	case *List:
		if tag == TagList16 && v.length > math.MaxUint16 {
			return dst, fmt.Errorf("%w: %d elements in list16", ErrLengthOverflow, v.length)
		}
		if uint64(v.length) > math.MaxUint32 {
			return dst, fmt.Errorf("%w: %d elements in list32", ErrLengthOverflow, v.length)
		}
		dst = append(dst, byte(tag))
		dst = appendPrefix(dst, tag.prefixLen(), v.length)
		var err error
		for e := v.head; e != nil; e = e.next {
			if dst, err = appendObject(dst, e.value, depth-1); err != nil {
				return dst, err
			}
		}
		return dst, nil
	case *Tree:
		if tag == TagTree16 && v.count > math.MaxUint16 {
			return dst, fmt.Errorf("%w: %d keys in tree16", ErrLengthOverflow, v.count)
		}
		if uint64(v.count) > math.MaxUint32 {
			return dst, fmt.Errorf("%w: %d keys in tree32", ErrLengthOverflow, v.count)
		}
		dst = append(dst, byte(tag))
		dst = appendPrefix(dst, tag.prefixLen(), v.count)
		var err error
		for n := range terminals(v.root) {
			if dst, err = appendObject(dst, n.key, depth-1); err != nil {
				return dst, err
			}
			if dst, err = appendObject(dst, n.value, depth-1); err != nil {
				return dst, err
			}
		}
		return dst, nil
	}
	return dst, fmt.Errorf("%w: cannot encode %s", ErrTypeMismatch, tag)
}

func appendPrefix(dst []byte, width, n int) []byte {
	switch width {
	case 1:
		return append(dst, byte(n))
	case 2:
		return binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		return binary.BigEndian.AppendUint32(dst, uint32(n))
	}
}

// terminals yields key-holding nodes in ascending key order.
func terminals(root *tstNode) func(func(*tstNode) bool) {
	return func(yield func(*tstNode) bool) {
		var visit func(n *tstNode) bool
		visit = func(n *tstNode) bool {
			for n != nil {
				if !visit(n.low) {
					return false
				}
				if n.value != nil && !yield(n) {
					return false
				}
				if !visit(n.eq) {
					return false
				}
				n = n.high
			}
			return true
		}
		visit(root)
	}
}

// Decoder turns wire bytes back into objects under fixed limits.
type Decoder struct {
	limits   Limits
	elements int
}

// NewDecoder returns a decoder enforcing limits. Zero fields fall back to
// DefaultLimits.
func NewDecoder(limits Limits) *Decoder {
	def := DefaultLimits()
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = def.MaxDepth
	}
	if limits.MaxElements <= 0 {
		limits.MaxElements = def.MaxElements
	}
	return &Decoder{limits: limits}
}

// Decode reads one object from the front of b and reports how many bytes it
// consumed. Decoded containers own their elements; the returned object is
// a root.
func Decode(b []byte) (*Object, int, error) {
	return NewDecoder(DefaultLimits()).Decode(b)
}

// Unmarshal decodes exactly one object spanning all of b.
func Unmarshal(b []byte) (*Object, error) {
	return NewDecoder(DefaultLimits()).Unmarshal(b)
}

// DecodeList unmarshals b and requires a list.
func DecodeList(b []byte) (*List, error) {
	o, err := Unmarshal(b)
	if err != nil {
		return nil, err
	}
	l, err := o.AsList()
	if err != nil {
		o.Free()
		return nil, err
	}
	return l, nil
}

// DecodeTree unmarshals b and requires a tree.
func DecodeTree(b []byte) (*Tree, error) {
	o, err := Unmarshal(b)
	if err != nil {
		return nil, err
	}
	t, err := o.AsTree()
	if err != nil {
		o.Free()
		return nil, err
	}
	return t, nil
}

// Decode reads one object from the front of b.
func (d *Decoder) Decode(b []byte) (*Object, int, error) {
	d.elements = 0
	return d.decode(b, d.limits.MaxDepth)
}

// Unmarshal decodes exactly one object spanning all of b.
func (d *Decoder) Unmarshal(b []byte) (*Object, error) {
	o, n, err := d.Decode(b)
	if err != nil {
		return nil, err
	}
	if n != len(b) {
		o.Free()
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(b)-n)
	}
	return o, nil
}

func (d *Decoder) count() error {
	d.elements++
	if d.elements > d.limits.MaxElements {
		return fmt.Errorf("%w: more than %d objects", ErrAllocation, d.limits.MaxElements)
	}
	return nil
}

func (d *Decoder) decode(b []byte, depth int) (*Object, int, error) {
	if len(b) == 0 {
		return nil, 0, fmt.Errorf("%w: truncated before tag", ErrMalformed)
	}
	if depth <= 0 {
		return nil, 0, fmt.Errorf("%w: nesting deeper than %d", ErrAllocation, d.limits.MaxDepth)
	}
	if err := d.count(); err != nil {
		return nil, 0, err
	}
	tag := Tag(b[0])
	if !tag.Known() {
		return nil, 0, fmt.Errorf("%w: unknown tag 0x%02x", ErrMalformed, b[0])
	}
	off := 1

	if tag.IsFixint() || tag == TagNil || tag == TagTrue || tag == TagFalse {
		return newObject(tag, nil), off, nil
	}
	if n := tag.scalarLen(); n != 0 {
		if len(b)-off < n {
			return nil, 0, fmt.Errorf("%w: truncated %s", ErrMalformed, tag)
		}
		return newScalar(tag, b[off:off+n]), off + n, nil
	}

	width := tag.prefixLen()
	if len(b)-off < width {
		return nil, 0, fmt.Errorf("%w: truncated %s length", ErrMalformed, tag)
	}
	declared := readPrefix(b[off:], width)
	off += width
	remaining := uint64(len(b) - off)

	switch tag {
	case TagBin8, TagBin16, TagBin32, TagStr8, TagStr16, TagStr32:
		if declared > remaining {
			return nil, 0, fmt.Errorf("%w: %s declares %d bytes, %d remain", ErrMalformed, tag, declared, remaining)
		}
		end := off + int(declared)
		o, err := newBytes(tag, b[off:end])
		return o, end, err
	case TagExt8, TagExt16, TagExt32:
		if declared+1 > remaining {
			return nil, 0, fmt.Errorf("%w: %s declares %d bytes, %d remain", ErrMalformed, tag, declared+1, remaining)
		}
		end := off + 1 + int(declared)
		o, err := newExt(tag, b[off], b[off+1:end], nil)
		return o, end, err
	case TagList16, TagList32:
		if declared > remaining {
			return nil, 0, fmt.Errorf("%w: %s declares %d elements, %d bytes remain", ErrMalformed, tag, declared, remaining)
		}
		return d.decodeList(b, off, tag, int(declared), depth)
	default:
		if declared*2 > remaining {
			return nil, 0, fmt.Errorf("%w: %s declares %d pairs, %d bytes remain", ErrMalformed, tag, declared, remaining)
		}
		return d.decodeTree(b, off, tag, int(declared), depth)
	}
}

func readPrefix(b []byte, width int) uint64 {
	switch width {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.BigEndian.Uint16(b))
	default:
		return uint64(binary.BigEndian.Uint32(b))
	}
}

func (d *Decoder) decodeList(b []byte, off int, tag Tag, n int, depth int) (*Object, int, error) {
	width := Width16
	if tag == TagList32 {
		width = Width32
	}
	l, _ := NewListWidth(width)
	for i := 0; i < n; i++ {
		v, used, err := d.decode(b[off:], depth-1)
		if err != nil {
			l.Free()
			return nil, 0, fmt.Errorf("list element %d: %w", i, err)
		}
		off += used
		if err := l.Append(v, Adopt); err != nil {
			v.Free()
			l.Free()
			return nil, 0, err
		}
	}
	return l.obj, off, nil
}

func (d *Decoder) decodeTree(b []byte, off int, tag Tag, n int, depth int) (*Object, int, error) {
	width := Width16
	if tag == TagTree32 {
		width = Width32
	}
	t, _ := NewTreeWidth(width)
	fail := func(err error) (*Object, int, error) {
		t.Free()
		return nil, 0, err
	}
	for i := 0; i < n; i++ {
		k, used, err := d.decode(b[off:], depth-1)
		if err != nil {
			return fail(fmt.Errorf("tree key %d: %w", i, err))
		}
		off += used
		raw, ok := k.val.(bytesVal)
		k.Free()
		// keys are str on the wire; bin would not survive a round trip
		if !ok || (k.tag != TagStr8 && k.tag != TagStr16 && k.tag != TagStr32) {
			return fail(fmt.Errorf("%w: tree key %d is %s", ErrMalformed, i, k.tag))
		}
		v, used, err := d.decode(b[off:], depth-1)
		if err != nil {
			return fail(fmt.Errorf("tree value %d: %w", i, err))
		}
		off += used
		if err := t.Insert(raw, v, Adopt); err != nil {
			v.Free()
			return fail(fmt.Errorf("%w: tree key %d: %v", ErrMalformed, i, err))
		}
	}
	return t.obj, off, nil
}

// Clone returns a deep copy of o as a new root, produced by a round trip
// through the wire form. Ext runtime references are not carried over.
func Clone(o *Object) (*Object, error) {
	buf, err := o.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return Unmarshal(buf)
}

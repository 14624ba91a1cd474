package object

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/danmuck/meshd/internal/alloc"
)

// Object is one tagged value. Scalars are immutable once built; List and
// Tree objects own their container.
type Object struct {
	tag   Tag
	flags Flags
	val   payload
	node  alloc.Node
}

// payload is the closed set of variant bodies.
type payload interface {
	isPayload()
}

type uintVal uint64
type intVal int64
type float32Val float32
type float64Val float64
type bytesVal []byte

type extVal struct {
	subtype uint8
	data    []byte
	ref     any
}

func (uintVal) isPayload()    {}
func (intVal) isPayload()     {}
func (float32Val) isPayload() {}
func (float64Val) isPayload() {}
func (bytesVal) isPayload()   {}
func (*extVal) isPayload()    {}
func (*List) isPayload()      {}
func (*Tree) isPayload()      {}

func newObject(tag Tag, val payload) *Object {
	o := &Object{tag: tag, val: val}
	o.node.Init(o, o.release)
	return o
}

func (o *Object) release() {
	switch v := o.val.(type) {
	case *List:
		v.release()
	case *Tree:
		v.release()
	}
	o.val = nil
}

// Nil returns a nil object.
func Nil() *Object {
	return newObject(TagNil, nil)
}

// Bool returns a true or false object.
func Bool(b bool) *Object {
	if b {
		return newObject(TagTrue, nil)
	}
	return newObject(TagFalse, nil)
}

// Fixint returns an inline integer. v must be at most 127.
func Fixint(v uint8) (*Object, error) {
	if Tag(v) > TagFixintMax {
		return nil, fmt.Errorf("%w: fixint %d", ErrLengthOverflow, v)
	}
	return newObject(Tag(v), nil), nil
}

func Uint8(v uint8) *Object   { return newObject(TagUint8, uintVal(v)) }
func Uint16(v uint16) *Object { return newObject(TagUint16, uintVal(v)) }
func Uint32(v uint32) *Object { return newObject(TagUint32, uintVal(v)) }
func Uint64(v uint64) *Object { return newObject(TagUint64, uintVal(v)) }

func Int8(v int8) *Object   { return newObject(TagInt8, intVal(v)) }
func Int16(v int16) *Object { return newObject(TagInt16, intVal(v)) }
func Int32(v int32) *Object { return newObject(TagInt32, intVal(v)) }
func Int64(v int64) *Object { return newObject(TagInt64, intVal(v)) }

func Float32(v float32) *Object { return newObject(TagFloat32, float32Val(v)) }
func Float64(v float64) *Object { return newObject(TagFloat64, float64Val(v)) }

func Bin8(b []byte) (*Object, error)  { return newBytes(TagBin8, b) }
func Bin16(b []byte) (*Object, error) { return newBytes(TagBin16, b) }
func Bin32(b []byte) (*Object, error) { return newBytes(TagBin32, b) }

func Str8(b []byte) (*Object, error)  { return newBytes(TagStr8, b) }
func Str16(b []byte) (*Object, error) { return newBytes(TagStr16, b) }
func Str32(b []byte) (*Object, error) { return newBytes(TagStr32, b) }

func Ext8(subtype uint8, data []byte) (*Object, error)  { return newExt(TagExt8, subtype, data, nil) }
func Ext16(subtype uint8, data []byte) (*Object, error) { return newExt(TagExt16, subtype, data, nil) }
func Ext32(subtype uint8, data []byte) (*Object, error) { return newExt(TagExt32, subtype, data, nil) }

// NewString returns the narrowest str variant holding s verbatim.
func NewString(s string) (*Object, error) {
	return newBytes(narrowTag(len(s), TagStr8, TagStr16, TagStr32), []byte(s))
}

// NewBinary returns the narrowest bin variant holding a copy of b.
func NewBinary(b []byte) (*Object, error) {
	return newBytes(narrowTag(len(b), TagBin8, TagBin16, TagBin32), b)
}

// NewExt returns the narrowest ext variant.
func NewExt(subtype uint8, data []byte) (*Object, error) {
	return NewExtRef(subtype, data, nil)
}

// NewExtRef returns an ext object that also carries an in-process reference.
// The reference never reaches the wire.
func NewExtRef(subtype uint8, data []byte, ref any) (*Object, error) {
	return newExt(narrowTag(len(data), TagExt8, TagExt16, TagExt32), subtype, data, ref)
}

// NewInt returns the narrowest object able to hold v. Values in 0..127
// become fixints.
func NewInt(v int64) *Object {
	switch {
	case v >= 0 && v <= int64(TagFixintMax):
		return newObject(Tag(v), nil)
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return Int8(int8(v))
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return Int16(int16(v))
	case v >= math.MinInt32 && v <= math.MaxInt32:
		return Int32(int32(v))
	default:
		return Int64(v)
	}
}

// NewUint returns the narrowest object able to hold v.
func NewUint(v uint64) *Object {
	switch {
	case v <= uint64(TagFixintMax):
		return newObject(Tag(v), nil)
	case v <= math.MaxUint8:
		return Uint8(uint8(v))
	case v <= math.MaxUint16:
		return Uint16(uint16(v))
	case v <= math.MaxUint32:
		return Uint32(uint32(v))
	default:
		return Uint64(v)
	}
}

// New builds an object from its tag and raw wire payload: exact-width
// big-endian bytes for numbers, raw bytes for bin and str, a subtype byte
// followed by data for ext, nothing for nil, bool and fixint.
func New(tag Tag, raw []byte) (*Object, error) {
	if tag.IsFixint() || tag == TagNil || tag == TagTrue || tag == TagFalse {
		if len(raw) != 0 {
			return nil, fmt.Errorf("%w: %s takes no payload", ErrTypeMismatch, tag)
		}
		return newObject(tag, nil), nil
	}
	if n := tag.scalarLen(); n != 0 {
		if len(raw) != n {
			return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrLengthOverflow, tag, n, len(raw))
		}
		return newScalar(tag, raw), nil
	}
	switch tag {
	case TagBin8, TagBin16, TagBin32, TagStr8, TagStr16, TagStr32:
		return newBytes(tag, raw)
	case TagExt8, TagExt16, TagExt32:
		if len(raw) == 0 {
			return nil, fmt.Errorf("%w: %s missing subtype", ErrMalformed, tag)
		}
		return newExt(tag, raw[0], raw[1:], nil)
	}
	return nil, fmt.Errorf("%w: cannot build %s from raw payload", ErrTypeMismatch, tag)
}

func newScalar(tag Tag, raw []byte) *Object {
	switch tag {
	case TagUint8:
		return Uint8(raw[0])
	case TagUint16:
		return Uint16(binary.BigEndian.Uint16(raw))
	case TagUint32:
		return Uint32(binary.BigEndian.Uint32(raw))
	case TagUint64:
		return Uint64(binary.BigEndian.Uint64(raw))
	case TagInt8:
		return Int8(int8(raw[0]))
	case TagInt16:
		return Int16(int16(binary.BigEndian.Uint16(raw)))
	case TagInt32:
		return Int32(int32(binary.BigEndian.Uint32(raw)))
	case TagInt64:
		return Int64(int64(binary.BigEndian.Uint64(raw)))
	case TagFloat32:
		return Float32(math.Float32frombits(binary.BigEndian.Uint32(raw)))
	default:
		return Float64(math.Float64frombits(binary.BigEndian.Uint64(raw)))
	}
}

func newBytes(tag Tag, b []byte) (*Object, error) {
	if !fitsPrefix(len(b), tag.prefixLen()) {
		return nil, fmt.Errorf("%w: %d bytes in %s", ErrLengthOverflow, len(b), tag)
	}
	buf := make([]byte, len(b))
	copy(buf, b)
	return newObject(tag, bytesVal(buf)), nil
}

func newExt(tag Tag, subtype uint8, data []byte, ref any) (*Object, error) {
	if !fitsPrefix(len(data), tag.prefixLen()) {
		return nil, fmt.Errorf("%w: %d bytes in %s", ErrLengthOverflow, len(data), tag)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return newObject(tag, &extVal{subtype: subtype, data: buf, ref: ref}), nil
}

func fitsPrefix(n, width int) bool {
	switch width {
	case 1:
		return n <= math.MaxUint8
	case 2:
		return n <= math.MaxUint16
	default:
		return uint64(n) <= math.MaxUint32
	}
}

func narrowTag(n int, t8, t16, t32 Tag) Tag {
	switch {
	case n <= math.MaxUint8:
		return t8
	case n <= math.MaxUint16:
		return t16
	default:
		return t32
	}
}

// Tag returns the wire tag. Container tags reflect the width the container
// would encode with right now.
func (o *Object) Tag() Tag {
	switch v := o.val.(type) {
	case *List:
		return v.tag()
	case *Tree:
		return v.tag()
	}
	return o.tag
}

func (o *Object) Flags() Flags         { return o.flags }
func (o *Object) SetFlags(flags Flags) { o.flags = flags }

// Data returns the payload bytes as they follow the tag and length prefix on
// the wire. Variants whose value lives in the tag byte and containers return
// nil. The returned slice must not be modified.
func (o *Object) Data() []byte {
	switch v := o.val.(type) {
	case bytesVal:
		return v
	case *extVal:
		return v.data
	case uintVal, intVal, float32Val, float64Val:
		return o.appendScalar(nil)
	}
	return nil
}

// Len returns the byte length of bin, str and ext payloads and the element
// count of containers.
func (o *Object) Len() int {
	switch v := o.val.(type) {
	case bytesVal:
		return len(v)
	case *extVal:
		return len(v.data)
	case *List:
		return v.Len()
	case *Tree:
		return v.Len()
	}
	return 0
}

func (o *Object) appendScalar(dst []byte) []byte {
	switch v := o.val.(type) {
	case uintVal:
		switch o.tag {
		case TagUint8:
			return append(dst, byte(v))
		case TagUint16:
			return binary.BigEndian.AppendUint16(dst, uint16(v))
		case TagUint32:
			return binary.BigEndian.AppendUint32(dst, uint32(v))
		default:
			return binary.BigEndian.AppendUint64(dst, uint64(v))
		}
	case intVal:
		switch o.tag {
		case TagInt8:
			return append(dst, byte(int8(v)))
		case TagInt16:
			return binary.BigEndian.AppendUint16(dst, uint16(int16(v)))
		case TagInt32:
			return binary.BigEndian.AppendUint32(dst, uint32(int32(v)))
		default:
			return binary.BigEndian.AppendUint64(dst, uint64(v))
		}
	case float32Val:
		return binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(v)))
	case float64Val:
		return binary.BigEndian.AppendUint64(dst, math.Float64bits(float64(v)))
	}
	return dst
}

func (o *Object) live() error {
	if o == nil {
		return fmt.Errorf("%w: nil object", ErrTypeMismatch)
	}
	if o.node.Freed() {
		return ErrFreed
	}
	return nil
}

func (o *Object) mismatch(want string) error {
	return fmt.Errorf("%w: want %s, have %s", ErrTypeMismatch, want, o.Tag())
}

// IsNil reports whether o is the nil variant.
func (o *Object) IsNil() bool {
	return o != nil && o.tag == TagNil
}

// AsString returns the bytes of a str variant as a string.
func (o *Object) AsString() (string, error) {
	if err := o.live(); err != nil {
		return "", err
	}
	switch o.tag {
	case TagStr8, TagStr16, TagStr32:
		return string(o.val.(bytesVal)), nil
	}
	return "", o.mismatch("str")
}

// AsBinary returns a copy of the bytes of a bin variant.
func (o *Object) AsBinary() ([]byte, error) {
	if err := o.live(); err != nil {
		return nil, err
	}
	switch o.tag {
	case TagBin8, TagBin16, TagBin32:
		return bytes.Clone(o.val.(bytesVal)), nil
	}
	return nil, o.mismatch("bin")
}

// AsInt returns the value of a signed or fixint variant.
func (o *Object) AsInt() (int64, error) {
	if err := o.live(); err != nil {
		return 0, err
	}
	if o.tag.IsFixint() {
		return int64(o.tag), nil
	}
	if v, ok := o.val.(intVal); ok {
		return int64(v), nil
	}
	return 0, o.mismatch("int")
}

// AsUint returns the value of an unsigned or fixint variant.
func (o *Object) AsUint() (uint64, error) {
	if err := o.live(); err != nil {
		return 0, err
	}
	if o.tag.IsFixint() {
		return uint64(o.tag), nil
	}
	if v, ok := o.val.(uintVal); ok {
		return uint64(v), nil
	}
	return 0, o.mismatch("uint")
}

// AsBool returns the value of a true or false object.
func (o *Object) AsBool() (bool, error) {
	if err := o.live(); err != nil {
		return false, err
	}
	switch o.tag {
	case TagTrue:
		return true, nil
	case TagFalse:
		return false, nil
	}
	return false, o.mismatch("bool")
}

// AsFloat returns the value of a float32 or float64 object.
func (o *Object) AsFloat() (float64, error) {
	if err := o.live(); err != nil {
		return 0, err
	}
	switch v := o.val.(type) {
	case float32Val:
		return float64(v), nil
	case float64Val:
		return float64(v), nil
	}
	return 0, o.mismatch("float")
}

// AsExt returns the subtype and a copy of the data of an ext object.
func (o *Object) AsExt() (uint8, []byte, error) {
	if err := o.live(); err != nil {
		return 0, nil, err
	}
	if v, ok := o.val.(*extVal); ok {
		return v.subtype, bytes.Clone(v.data), nil
	}
	return 0, nil, o.mismatch("ext")
}

// Ref returns the in-process reference of an ext object, nil otherwise.
func (o *Object) Ref() any {
	if v, ok := o.val.(*extVal); ok {
		return v.ref
	}
	return nil
}

// AsList returns the container of a list object.
func (o *Object) AsList() (*List, error) {
	if err := o.live(); err != nil {
		return nil, err
	}
	if v, ok := o.val.(*List); ok {
		return v, nil
	}
	return nil, o.mismatch("list")
}

// AsTree returns the container of a tree object.
func (o *Object) AsTree() (*Tree, error) {
	if err := o.live(); err != nil {
		return nil, err
	}
	if v, ok := o.val.(*Tree); ok {
		return v, nil
	}
	return nil, o.mismatch("tree")
}

// Free releases o and every object still attached beneath it.
func (o *Object) Free() {
	alloc.Free(&o.node)
}

// Freed reports whether o has been released.
func (o *Object) Freed() bool {
	return o.node.Freed()
}

// Attach moves o under owner. A nil owner makes o a root that its holder
// must free.
func (o *Object) Attach(owner *Object) error {
	var on *alloc.Node
	if owner != nil {
		on = &owner.node
	}
	return alloc.Attach(&o.node, on)
}

// Owner returns the object o is attached to, or nil for a root.
func (o *Object) Owner() *Object {
	n := o.node.Owner()
	if n == nil {
		return nil
	}
	owner, _ := n.Ref().(*Object)
	return owner
}

// Equal reports content equality: same tag and payload, recursively for
// containers. It is not used for List membership, which is identity based.
func Equal(a, b *Object) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Tag() != b.Tag() {
		return false
	}
	switch av := a.val.(type) {
	case *List:
		bv := b.val.(*List)
		if av.Len() != bv.Len() {
			return false
		}
		for x, y := av.head, bv.head; x != nil; x, y = x.next, y.next {
			if !Equal(x.value, y.value) {
				return false
			}
		}
		return true
	case *Tree:
		bv := b.val.(*Tree)
		if av.Len() != bv.Len() {
			return false
		}
		ak, bk := av.Keys(), bv.Keys()
		for i := range ak {
			if !bytes.Equal(ak[i], bk[i]) {
				return false
			}
			x, _ := av.Find(ak[i])
			y, _ := bv.Find(bk[i])
			if !Equal(x, y) {
				return false
			}
		}
		return true
	case *extVal:
		bv := b.val.(*extVal)
		return av.subtype == bv.subtype && bytes.Equal(av.data, bv.data)
	}
	return bytes.Equal(a.Data(), b.Data())
}

// String renders o for logs and debugging.
func (o *Object) String() string {
	var sb strings.Builder
	o.render(&sb)
	return sb.String()
}

func (o *Object) render(sb *strings.Builder) {
	if o == nil {
		sb.WriteString("<nil>")
		return
	}
	if o.node.Freed() {
		sb.WriteString("<freed>")
		return
	}
	if o.tag.IsFixint() {
		sb.WriteString(strconv.Itoa(int(o.tag)))
		return
	}
	switch v := o.val.(type) {
	case uintVal:
		sb.WriteString(strconv.FormatUint(uint64(v), 10))
	case intVal:
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case float32Val:
		sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	case float64Val:
		sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 64))
	case bytesVal:
		if o.tag == TagStr8 || o.tag == TagStr16 || o.tag == TagStr32 {
			sb.WriteString(strconv.Quote(string(v)))
		} else {
			sb.WriteString("0x")
			sb.WriteString(hex.EncodeToString(v))
		}
	case *extVal:
		fmt.Fprintf(sb, "ext(%d:0x%s)", v.subtype, hex.EncodeToString(v.data))
	case *List:
		sb.WriteByte('[')
		i := 0
		for e := v.head; e != nil; e = e.next {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.value.render(sb)
			i++
		}
		sb.WriteByte(']')
	case *Tree:
		sb.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.Quote(string(k)))
			sb.WriteString(": ")
			val, _ := v.Find(k)
			val.render(sb)
		}
		sb.WriteByte('}')
	default:
		sb.WriteString(o.tag.String())
	}
}

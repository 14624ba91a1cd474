package object

import "fmt"

// Tag is the leading wire byte selecting an Object variant.
type Tag uint8

const (
	TagFixintMax Tag = 0x7f

	TagNil   Tag = 0xc0
	TagFalse Tag = 0xc2
	TagTrue  Tag = 0xc3

	TagBin8  Tag = 0xc4
	TagBin16 Tag = 0xc5
	TagBin32 Tag = 0xc6

	TagExt8  Tag = 0xc7
	TagExt16 Tag = 0xc8
	TagExt32 Tag = 0xc9

	TagFloat32 Tag = 0xca
	TagFloat64 Tag = 0xcb

	TagUint8  Tag = 0xcc
	TagUint16 Tag = 0xcd
	TagUint32 Tag = 0xce
	TagUint64 Tag = 0xcf

	TagInt8  Tag = 0xd0
	TagInt16 Tag = 0xd1
	TagInt32 Tag = 0xd2
	TagInt64 Tag = 0xd3

	TagStr8  Tag = 0xd9
	TagStr16 Tag = 0xda
	TagStr32 Tag = 0xdb

	TagList16 Tag = 0xdc
	TagList32 Tag = 0xdd

	TagTree16 Tag = 0xde
	TagTree32 Tag = 0xdf
)

// Extension subtypes carried after the length prefix of ext8/16/32.
const (
	ExtCommand uint8 = 1
	ExtSocket  uint8 = 2
	ExtTimer   uint8 = 3
	ExtProcess uint8 = 4
	ExtPlugin  uint8 = 5
)

// Flags is the per-object runtime hint byte. It is carried, never encoded.
type Flags uint8

// Width pins the length prefix of a container. WidthAuto picks the
// narrowest prefix that fits at encode time.
type Width uint8

const (
	WidthAuto Width = iota
	Width16
	Width32
)

// Valid reports whether w is one of the declared widths.
func (w Width) Valid() bool {
	return w == WidthAuto || w == Width16 || w == Width32
}

func (w Width) String() string {
	switch w {
	case WidthAuto:
		return "auto"
	case Width16:
		return "16"
	case Width32:
		return "32"
	default:
		return fmt.Sprintf("width(%d)", uint8(w))
	}
}

// ParseWidth maps the config spelling of a width ("auto", "16", "32").
func ParseWidth(s string) (Width, error) {
	switch s {
	case "", "auto":
		return WidthAuto, nil
	case "16":
		return Width16, nil
	case "32":
		return Width32, nil
	default:
		return 0, fmt.Errorf("%w: unknown width %q", ErrTypeMismatch, s)
	}
}

// IsFixint reports whether t carries an inline 0..127 value.
func (t Tag) IsFixint() bool {
	return t <= TagFixintMax
}

// Known reports whether t is part of the closed tag set.
func (t Tag) Known() bool {
	if t.IsFixint() {
		return true
	}
	switch t {
	case TagNil, TagFalse, TagTrue,
		TagBin8, TagBin16, TagBin32,
		TagExt8, TagExt16, TagExt32,
		TagFloat32, TagFloat64,
		TagUint8, TagUint16, TagUint32, TagUint64,
		TagInt8, TagInt16, TagInt32, TagInt64,
		TagStr8, TagStr16, TagStr32,
		TagList16, TagList32,
		TagTree16, TagTree32:
		return true
	}
	return false
}

// prefixLen is the byte width of the length/count prefix following t, or 0.
func (t Tag) prefixLen() int {
	switch t {
	case TagBin8, TagExt8, TagStr8:
		return 1
	case TagBin16, TagExt16, TagStr16, TagList16, TagTree16:
		return 2
	case TagBin32, TagExt32, TagStr32, TagList32, TagTree32:
		return 4
	}
	return 0
}

// scalarLen is the fixed payload size of numeric variants, or 0.
func (t Tag) scalarLen() int {
	switch t {
	case TagUint8, TagInt8:
		return 1
	case TagUint16, TagInt16:
		return 2
	case TagUint32, TagInt32, TagFloat32:
		return 4
	case TagUint64, TagInt64, TagFloat64:
		return 8
	}
	return 0
}

func (t Tag) String() string {
	if t.IsFixint() {
		return fmt.Sprintf("fixint(%d)", uint8(t))
	}
	switch t {
	case TagNil:
		return "nil"
	case TagFalse:
		return "false"
	case TagTrue:
		return "true"
	case TagBin8:
		return "bin8"
	case TagBin16:
		return "bin16"
	case TagBin32:
		return "bin32"
	case TagExt8:
		return "ext8"
	case TagExt16:
		return "ext16"
	case TagExt32:
		return "ext32"
	case TagFloat32:
		return "float32"
	case TagFloat64:
		return "float64"
	case TagUint8:
		return "uint8"
	case TagUint16:
		return "uint16"
	case TagUint32:
		return "uint32"
	case TagUint64:
		return "uint64"
	case TagInt8:
		return "int8"
	case TagInt16:
		return "int16"
	case TagInt32:
		return "int32"
	case TagInt64:
		return "int64"
	case TagStr8:
		return "str8"
	case TagStr16:
		return "str16"
	case TagStr32:
		return "str32"
	case TagList16:
		return "list16"
	case TagList32:
		return "list32"
	case TagTree16:
		return "tree16"
	case TagTree32:
		return "tree32"
	}
	return fmt.Sprintf("tag(0x%02x)", uint8(t))
}

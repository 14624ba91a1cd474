package object

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func roundTrip(t *testing.T, o *Object) *Object {
	t.Helper()
	buf, err := o.MarshalBinary()
	if err != nil {
		t.Fatalf("encode %s: %v", o, err)
	}
	got, n, err := Decode(buf)
	if err != nil {
		t.Fatalf("decode %s: %v", o, err)
	}
	if n != len(buf) {
		t.Fatalf("decode %s consumed %d of %d bytes", o, n, len(buf))
	}
	if !Equal(o, got) {
		t.Fatalf("round trip mismatch: in=%s out=%s", o, got)
	}
	return got
}

func TestRoundTripScalars(t *testing.T) {
	str8, _ := Str8([]byte("hi"))
	str16, _ := Str16([]byte("wide"))
	str32, _ := Str32([]byte("widest"))
	bin8, _ := Bin8([]byte{0, 1, 2})
	bin16, _ := Bin16([]byte{3})
	bin32, _ := Bin32(nil)
	ext8, _ := Ext8(ExtTimer, []byte("t"))
	ext16, _ := Ext16(ExtSocket, []byte("sock"))
	ext32, _ := Ext32(ExtPlugin, nil)
	fix, _ := Fixint(42)

	for _, o := range []*Object{
		Nil(), Bool(true), Bool(false), fix,
		Uint8(200), Uint16(math.MaxUint16), Uint32(1 << 20), Uint64(math.MaxUint64),
		Int8(-5), Int16(math.MinInt16), Int32(-70000), Int64(math.MinInt64),
		Float32(3.25), Float64(-1e300),
		str8, str16, str32, bin8, bin16, bin32, ext8, ext16, ext32,
	} {
		got := roundTrip(t, o)
		if got.Tag() != o.Tag() {
			t.Fatalf("tag changed: %s -> %s", o.Tag(), got.Tag())
		}
	}
}

func TestRoundTripNestedContainers(t *testing.T) {
	inner := NewTree()
	_ = inner.PutString("name", "echo")
	_ = inner.PutUint("count", 300)
	_ = inner.PutBool("ok", true)

	l := NewList()
	_ = l.AppendString("first")
	_ = l.Append(inner.Object(), Adopt)
	_ = l.Append(NewList().Object(), Adopt)
	_ = l.Append(NewTree().Object(), Adopt)

	outer := NewTree()
	_ = outer.Put("list", l.Object())
	_ = outer.Put("neg", NewInt(-12345))

	got := roundTrip(t, outer.Object())
	tr, err := got.AsTree()
	if err != nil {
		t.Fatalf("as tree: %v", err)
	}
	lv, _ := tr.FindString("list")
	gl, _ := lv.AsList()
	second, _ := gl.Element(1)
	if second.Owner() != lv {
		t.Fatalf("decoded element not owned by decoded list")
	}
	got.Free()
	if !second.Freed() {
		t.Fatalf("free did not cascade through decoded tree")
	}
}

func TestEncodeSingleStringListExactBytes(t *testing.T) {
	l := NewList()
	s, _ := Str8([]byte("echo\x00"))
	_ = l.Append(s, Adopt)

	buf, err := l.MarshalBinary()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{0xdc, 0x00, 0x01, 0xd9, 0x05, 'e', 'c', 'h', 'o', 0x00}
	if !bytes.Equal(buf, want) {
		t.Fatalf("wire mismatch: got=% x want=% x", buf, want)
	}

	got, err := DecodeList(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	first, _ := got.Element(0)
	if first.Len() != 5 {
		t.Fatalf("terminator dropped: len=%d", first.Len())
	}
}

func TestEncodeTreeKeysAscending(t *testing.T) {
	tr := NewTree()
	_ = tr.PutInt("b", 2)
	_ = tr.PutInt("a", 1)
	buf, err := tr.MarshalBinary()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{0xde, 0x00, 0x02, 0xd9, 0x01, 'a', 0x01, 0xd9, 0x01, 'b', 0x02}
	if !bytes.Equal(buf, want) {
		t.Fatalf("wire mismatch: got=% x want=% x", buf, want)
	}
}

func TestWidthPinningAndAuto(t *testing.T) {
	pinned, err := NewListWidth(Width32)
	if err != nil {
		t.Fatalf("new list32: %v", err)
	}
	_ = pinned.Append(Nil(), Adopt)
	buf, _ := pinned.MarshalBinary()
	if !bytes.Equal(buf, []byte{0xdd, 0, 0, 0, 1, 0xc0}) {
		t.Fatalf("list32 wire: % x", buf)
	}
	back, err := DecodeList(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Width() != Width32 || back.Object().Tag() != TagList32 {
		t.Fatalf("decoded width not preserved: %s", back.Width())
	}

	if _, err := NewTreeWidth(Width(9)); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected invalid width rejected, got %v", err)
	}

	narrow, _ := NewListWidth(Width16)
	auto := NewList()
	for i := 0; i <= math.MaxUint16; i++ {
		_ = narrow.Append(Nil(), Adopt)
		_ = auto.Append(Nil(), Adopt)
	}
	if _, err := narrow.MarshalBinary(); !errors.Is(err, ErrLengthOverflow) {
		t.Fatalf("expected ErrLengthOverflow, got %v", err)
	}
	if auto.Object().Tag() != TagList32 {
		t.Fatalf("auto width should widen, got %s", auto.Object().Tag())
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":             {},
		"unknown tag":       {0xc1},
		"reserved tag":      {0xe0},
		"truncated uint32":  {0xce, 0x00, 0x01},
		"truncated prefix":  {0xda, 0x00},
		"str overrun":       {0xd9, 0x05, 'a', 'b'},
		"ext missing body":  {0xc7, 0x02, 0x01},
		"list overrun":      {0xdc, 0x00, 0x03, 0xc0},
		"tree count bogus":  {0xde, 0xff, 0xff, 0xc0},
		"tree int key":      {0xde, 0x00, 0x01, 0x01, 0xc0},
		"tree empty key":    {0xde, 0x00, 0x01, 0xd9, 0x00, 0xc0},
		"tree bin key":      {0xde, 0x00, 0x01, 0xc4, 0x01, 'a', 0xc0},
		"tree dup key":      {0xde, 0x00, 0x02, 0xd9, 0x01, 'a', 0xc0, 0xd9, 0x01, 'a', 0xc0},
		"nested truncation": {0xdc, 0x00, 0x01, 0xdc, 0x00, 0x01},
	}
	for name, in := range cases {
		if _, _, err := Decode(in); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func TestUnmarshalRejectsTrailingBytes(t *testing.T) {
	if _, err := Unmarshal([]byte{0xc0, 0xc0}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	o, n, err := Decode([]byte{0xc3, 0xc0})
	if err != nil || n != 1 {
		t.Fatalf("decode prefix: n=%d err=%v", n, err)
	}
	if v, _ := o.AsBool(); !v {
		t.Fatalf("expected true")
	}
	if _, err := DecodeTree([]byte{0xc0}); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestDecoderLimits(t *testing.T) {
	deep := []byte{}
	for i := 0; i < 8; i++ {
		deep = append(deep, 0xdc, 0x00, 0x01)
	}
	deep = append(deep, 0xc0)

	shallow := NewDecoder(Limits{MaxDepth: 4})
	if _, err := shallow.Unmarshal(deep); !errors.Is(err, ErrAllocation) {
		t.Fatalf("expected ErrAllocation for depth, got %v", err)
	}
	if _, err := NewDecoder(Limits{}).Unmarshal(deep); err != nil {
		t.Fatalf("default limits should accept depth 9: %v", err)
	}

	wide := []byte{0xdc, 0x00, 0x05, 0xc0, 0xc0, 0xc0, 0xc0, 0xc0}
	small := NewDecoder(Limits{MaxElements: 3})
	if _, err := small.Unmarshal(wide); !errors.Is(err, ErrAllocation) {
		t.Fatalf("expected ErrAllocation for elements, got %v", err)
	}
	if _, err := small.Unmarshal([]byte{0xdc, 0x00, 0x01, 0xc0}); err != nil {
		t.Fatalf("element budget should reset per decode: %v", err)
	}
}

func TestEncodeFreedFails(t *testing.T) {
	o := NewInt(1)
	o.Free()
	if _, err := o.MarshalBinary(); !errors.Is(err, ErrFreed) {
		t.Fatalf("expected ErrFreed, got %v", err)
	}
	var buf bytes.Buffer
	if err := Encode(&buf, NewInt(300)); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0xd1, 0x01, 0x2c}) {
		t.Fatalf("int16 wire: % x", buf.Bytes())
	}
}

func TestDecodeTreeStrKeyRoundTrip(t *testing.T) {
	in := []byte{0xde, 0x00, 0x01, 0xd9, 0x01, 'a', 0xc0}
	tr, err := DecodeTree(in)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	defer tr.Free()
	out, err := tr.MarshalBinary()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("round trip changed bytes: % x", out)
	}
}

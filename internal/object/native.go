package object

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Native converts o into plain Go values: map[string]any for trees, []any
// for lists, string, []byte, int64, uint64, float64, bool and nil. Ext
// objects become a map with "ext" and "data" entries.
func Native(o *Object) any {
	if o == nil || o.node.Freed() {
		return nil
	}
	if o.tag.IsFixint() {
		return int64(o.tag)
	}
	switch v := o.val.(type) {
	case nil:
		switch o.tag {
		case TagTrue:
			return true
		case TagFalse:
			return false
		}
		return nil
	case uintVal:
		return uint64(v)
	case intVal:
		return int64(v)
	case float32Val:
		return float64(v)
	case float64Val:
		return float64(v)
	case bytesVal:
		if o.tag == TagStr8 || o.tag == TagStr16 || o.tag == TagStr32 {
			return string(v)
		}
		out := make([]byte, len(v))
		copy(out, v)
		return out
	case *extVal:
		return map[string]any{"ext": uint64(v.subtype), "data": append([]byte(nil), v.data...)}
	case *List:
		out := make([]any, 0, v.Len())
		for e := v.head; e != nil; e = e.next {
			out = append(out, Native(e.value))
		}
		return out
	case *Tree:
		out := make(map[string]any, v.Len())
		for n := range terminals(v.root) {
			out[string(n.key.val.(bytesVal))] = Native(n.value)
		}
		return out
	}
	return nil
}

// FromNative builds an object tree from plain Go values, picking the
// narrowest variant for each. Whole float64 values, as produced by JSON
// decoding, become integers.
func FromNative(v any) (*Object, error) {
	switch x := v.(type) {
	case nil:
		return Nil(), nil
	case *Object:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return NewString(x)
	case []byte:
		return NewBinary(x)
	case int:
		return NewInt(int64(x)), nil
	case int8:
		return NewInt(int64(x)), nil
	case int16:
		return NewInt(int64(x)), nil
	case int32:
		return NewInt(int64(x)), nil
	case int64:
		return NewInt(x), nil
	case uint:
		return NewUint(uint64(x)), nil
	case uint8:
		return NewUint(uint64(x)), nil
	case uint16:
		return NewUint(uint64(x)), nil
	case uint32:
		return NewUint(uint64(x)), nil
	case uint64:
		return NewUint(x), nil
	case float32:
		return Float32(x), nil
	case float64:
		if x == math.Trunc(x) && x >= math.MinInt64 && x < math.MaxInt64 {
			return NewInt(int64(x)), nil
		}
		return Float64(x), nil
	case time.Time:
		return NewString(x.Format(time.RFC3339Nano))
	case []any:
		l := NewList()
		for i, item := range x {
			o, err := FromNative(item)
			if err != nil {
				l.Free()
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			if err := l.Append(o, Adopt); err != nil {
				l.Free()
				return nil, err
			}
		}
		return l.obj, nil
	case []string:
		l := NewList()
		for _, s := range x {
			if err := l.AppendString(s); err != nil {
				l.Free()
				return nil, err
			}
		}
		return l.obj, nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		t := NewTree()
		for _, k := range keys {
			o, err := FromNative(x[k])
			if err != nil {
				t.Free()
				return nil, fmt.Errorf("key %q: %w", k, err)
			}
			if err := t.Insert([]byte(k), o, Adopt); err != nil {
				o.Free()
				t.Free()
				return nil, err
			}
		}
		return t.obj, nil
	}
	return nil, fmt.Errorf("%w: no object form for %T", ErrTypeMismatch, v)
}

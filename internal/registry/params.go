package registry

import (
	"fmt"

	"github.com/danmuck/meshd/internal/object"
)

// Arity fails unless params holds between lo and hi elements. A negative hi
// means no upper bound.
func Arity(params *object.List, lo, hi int) error {
	n := params.Len()
	switch {
	case n >= lo && (hi < 0 || n <= hi):
		return nil
	case lo == hi:
		return fmt.Errorf("expected %d params, got %d", lo, n)
	case hi < 0:
		return fmt.Errorf("expected at least %d params, got %d", lo, n)
	default:
		return fmt.Errorf("expected %d to %d params, got %d", lo, hi, n)
	}
}

// StringParam returns params[i] as a string.
func StringParam(params *object.List, i int) (string, error) {
	v, err := params.Element(i)
	if err != nil {
		return "", err
	}
	s, err := v.AsString()
	if err != nil {
		return "", fmt.Errorf("param %d: %w", i, err)
	}
	return s, nil
}

// OptionalString returns params[i] as a string, or def when absent.
func OptionalString(params *object.List, i int, def string) (string, error) {
	if i >= params.Len() {
		return def, nil
	}
	return StringParam(params, i)
}

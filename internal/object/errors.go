package object

import "errors"

var (
	ErrAllocation         = errors.New("object: allocation limit exceeded")
	ErrTypeMismatch       = errors.New("object: type mismatch")
	ErrLengthOverflow     = errors.New("object: length overflows width")
	ErrKeyNotFound        = errors.New("object: key not found")
	ErrDuplicateKey       = errors.New("object: duplicate key")
	ErrDuplicateMember    = errors.New("object: value already a member")
	ErrIndexOutOfBounds   = errors.New("object: index out of bounds")
	ErrMalformed          = errors.New("object: malformed wire data")
	ErrInvalidKey         = errors.New("object: invalid key")
	ErrFreed              = errors.New("object: use of freed object")
	ErrConcurrentMutation = errors.New("object: container mutated during iteration")
)

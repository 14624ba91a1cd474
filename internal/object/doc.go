// Package object owns the tagged binary value format and the containers
// built on it.
//
// Ownership boundary:
// - Object variants, constructors and accessors
// - List (ordered sequence) and Tree (ternary search tree map)
// - wire codec for all of the above
// - conversion to and from plain Go values
//
// Strings are stored exactly as given. Nothing in this package appends or
// strips a trailing NUL; producers that want C-style strings add "\x00"
// themselves and consumers must not assume it is there.
//
// Containers are not safe for concurrent use. Mutating a List or Tree while
// a Parse, All or Next walk over it is running fails with
// ErrConcurrentMutation.
package object

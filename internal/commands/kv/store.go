// Package kv keeps a process-wide key/value tree behind the db_* commands
// and snapshots it to disk in the object wire format.
package kv

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danmuck/meshd/internal/object"
	"github.com/rs/zerolog/log"
)

var ErrNoPath = errors.New("kv: no snapshot path configured")

// Store is not safe for concurrent use; the daemon serializes command
// dispatch.
type Store struct {
	path string
	data *object.Tree
}

func NewStore(path string) *Store {
	return &Store{path: path, data: object.NewTree()}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Len() int {
	return s.data.Len()
}

// Set stores a deep copy of v under key.
func (s *Store) Set(key string, v *object.Object) error {
	cp, err := object.Clone(v)
	if err != nil {
		return err
	}
	if err := s.data.InsertForce([]byte(key), cp, object.Adopt); err != nil {
		cp.Free()
		return err
	}
	return nil
}

// Get returns a deep copy of the value under key.
func (s *Store) Get(key string) (*object.Object, error) {
	v, err := s.data.FindString(key)
	if err != nil {
		return nil, err
	}
	return object.Clone(v)
}

func (s *Store) Delete(key string) error {
	v, err := s.data.Delete([]byte(key))
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

// Keys returns keys starting with prefix in ascending order.
func (s *Store) Keys(prefix string) []string {
	var out []string
	p := []byte(prefix)
	for k := range s.data.All() {
		if bytes.HasPrefix(k, p) {
			out = append(out, string(k))
		}
	}
	return out
}

// Save writes the snapshot atomically and returns its size.
func (s *Store) Save() (int, error) {
	if s.path == "" {
		return 0, ErrNoPath
	}
	buf, err := s.data.MarshalBinary()
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return 0, fmt.Errorf("kv: create snapshot dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o600); err != nil {
		return 0, fmt.Errorf("kv: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return 0, fmt.Errorf("kv: replace snapshot: %w", err)
	}
	log.Debug().Str("path", s.path).Int("keys", s.data.Len()).Int("bytes", len(buf)).Msg("kv.Store.Save")
	return len(buf), nil
}

// Load replaces the contents with the snapshot on disk. A missing file
// leaves the store unchanged and reports os.ErrNotExist.
func (s *Store) Load() error {
	if s.path == "" {
		return ErrNoPath
	}
	buf, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("kv: read snapshot: %w", err)
	}
	t, err := object.DecodeTree(buf)
	if err != nil {
		return fmt.Errorf("kv: decode snapshot %s: %w", s.path, err)
	}
	s.data.Free()
	s.data = t
	log.Debug().Str("path", s.path).Int("keys", t.Len()).Msg("kv.Store.Load")
	return nil
}

// Close frees the in-memory tree.
func (s *Store) Close() {
	s.data.Free()
}

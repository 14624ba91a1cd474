// Package profile loads named TOML profiles into object trees and serves
// them through the profiles/profile_get commands.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danmuck/meshd/internal/object"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownProfile = errors.New("profile: unknown profile")
	ErrNoDir          = errors.New("profile: no profile directory configured")
)

const Ext = ".toml"

// Set holds every loaded profile keyed by file base name.
type Set struct {
	dir      string
	profiles map[string]*object.Tree
}

func NewSet(dir string) *Set {
	return &Set{dir: dir, profiles: make(map[string]*object.Tree)}
}

func (s *Set) Dir() string {
	return s.dir
}

// Load reads every *.toml file in the directory, replacing what was
// loaded before. A file that fails to parse aborts the load and leaves
// the previous profiles in place.
func (s *Set) Load() error {
	if s.dir == "" {
		return ErrNoDir
	}
	paths, err := filepath.Glob(filepath.Join(s.dir, "*"+Ext))
	if err != nil {
		return fmt.Errorf("profile: scan %s: %w", s.dir, err)
	}
	next := make(map[string]*object.Tree, len(paths))
	for _, p := range paths {
		t, err := LoadFile(p)
		if err != nil {
			for _, loaded := range next {
				loaded.Free()
			}
			return err
		}
		next[strings.TrimSuffix(filepath.Base(p), Ext)] = t
	}
	s.Close()
	s.profiles = next
	log.Info().Str("dir", s.dir).Int("profiles", len(next)).Msg("profile.Set.Load")
	return nil
}

// Add installs t under name, taking ownership and freeing any profile it
// replaces.
func (s *Set) Add(name string, t *object.Tree) {
	if old, ok := s.profiles[name]; ok {
		old.Free()
	}
	s.profiles[name] = t
}

func (s *Set) Names() []string {
	names := make([]string, 0, len(s.profiles))
	for n := range s.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get returns the profile tree. The set keeps ownership.
func (s *Set) Get(name string) (*object.Tree, error) {
	t, ok := s.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	return t, nil
}

// Lookup resolves a dotted key path such as "server.port" inside a profile.
func (s *Set) Lookup(name, path string) (*object.Object, error) {
	t, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	cur := t.Object()
	for _, part := range strings.Split(path, ".") {
		tree, err := cur.AsTree()
		if err != nil {
			return nil, fmt.Errorf("profile: %s.%s: %w", name, path, err)
		}
		if cur, err = tree.FindString(part); err != nil {
			return nil, fmt.Errorf("profile: %s.%s: %w", name, path, err)
		}
	}
	return cur, nil
}

func (s *Set) Close() {
	for n, t := range s.profiles {
		t.Free()
		delete(s.profiles, n)
	}
}

// LoadFile parses one TOML document into a tree.
func LoadFile(path string) (*object.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile load failed (%s): %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("profile parse failed (%s): %w", path, err)
	}
	return t, nil
}

// Parse decodes a TOML document into a tree. Dates and times become their
// TOML text form.
func Parse(data []byte) (*object.Tree, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	o, err := object.FromNative(normalize(doc))
	if err != nil {
		return nil, err
	}
	return o.AsTree()
}

func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, item := range x {
			x[k] = normalize(item)
		}
		return x
	case []any:
		for i, item := range x {
			x[i] = normalize(item)
		}
		return x
	case toml.LocalDate, toml.LocalTime, toml.LocalDateTime:
		return fmt.Sprint(x)
	default:
		return v
	}
}

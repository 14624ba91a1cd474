package plugins

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/meshd/internal/registry"
	"github.com/rs/zerolog/log"
)

var (
	ErrPluginNil    = errors.New("plugins: plugin is nil")
	ErrPluginExists = errors.New("plugins: plugin already added")
	ErrUnknown      = errors.New("plugins: unknown plugin")
)

// Plugin contributes a group of commands to a registry.
type Plugin interface {
	Name() string
	Register(r *registry.Registry) error
}

// Set holds plugins by name and registers them in name order.
type Set struct {
	mu    sync.RWMutex
	items map[string]Plugin
}

func NewSet(ps ...Plugin) (*Set, error) {
	s := &Set{items: make(map[string]Plugin)}
	for _, p := range ps {
		if err := s.Add(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Set) Add(p Plugin) error {
	if p == nil {
		return ErrPluginNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[p.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrPluginExists, p.Name())
	}
	s.items[p.Name()] = p
	return nil
}

func (s *Set) Get(name string) (Plugin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[name]
	return p, ok
}

// Names returns plugin names in ascending order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.items))
	for name := range s.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns a set holding only the named plugins.
func (s *Set) Select(names []string) (*Set, error) {
	out := &Set{items: make(map[string]Plugin)}
	for _, name := range names {
		p, ok := s.Get(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknown, name)
		}
		if err := out.Add(p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RegisterAll registers every plugin into r, stopping at the first failure.
func (s *Set) RegisterAll(r *registry.Registry) error {
	for _, name := range s.Names() {
		p, _ := s.Get(name)
		before := r.Len()
		if err := p.Register(r); err != nil {
			return fmt.Errorf("plugins: register %s: %w", name, err)
		}
		log.Info().Str("plugin", name).Int("commands", r.Len()-before).Msg("plugins.Set.RegisterAll registered")
	}
	return nil
}

// Func adapts a registration function into a Plugin.
type Func struct {
	PluginName string
	Fn         func(r *registry.Registry) error
}

func (f Func) Name() string                        { return f.PluginName }
func (f Func) Register(r *registry.Registry) error { return f.Fn(r) }

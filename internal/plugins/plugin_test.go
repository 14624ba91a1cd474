package plugins

import (
	"errors"
	"testing"

	"github.com/danmuck/meshd/internal/object"
	"github.com/danmuck/meshd/internal/registry"
	"github.com/danmuck/meshd/internal/testutil/testlog"
)

func noop(*registry.Command, *object.Tree, *object.List) error { return nil }

func plugin(name string, cmds ...string) Plugin {
	return Func{PluginName: name, Fn: func(r *registry.Registry) error {
		for _, c := range cmds {
			if err := r.Register(c, "", "", noop); err != nil {
				return err
			}
		}
		return nil
	}}
}

func TestSetRegistersInNameOrder(t *testing.T) {
	testlog.Start(t)
	s, err := NewSet(plugin("kv", "db_get", "db_set"), plugin("core", "help"))
	if err != nil {
		t.Fatalf("new set: %v", err)
	}
	if names := s.Names(); len(names) != 2 || names[0] != "core" {
		t.Fatalf("names=%v", names)
	}
	if err := s.Add(plugin("core")); !errors.Is(err, ErrPluginExists) {
		t.Fatalf("expected ErrPluginExists, got %v", err)
	}
	if err := s.Add(nil); !errors.Is(err, ErrPluginNil) {
		t.Fatalf("expected ErrPluginNil, got %v", err)
	}

	r := registry.New()
	_ = r.Init(object.WidthAuto)
	defer r.Shutdown()
	if err := s.RegisterAll(r); err != nil {
		t.Fatalf("register all: %v", err)
	}
	if r.Len() != 3 {
		t.Fatalf("registered %d commands", r.Len())
	}
}

func TestSelectAndFailure(t *testing.T) {
	s, _ := NewSet(plugin("core", "help"), plugin("kv", "db_get"))
	sub, err := s.Select([]string{"kv"})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, ok := sub.Get("core"); ok {
		t.Fatalf("select kept unselected plugin")
	}
	if _, err := s.Select([]string{"nope"}); !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got %v", err)
	}

	r := registry.New()
	if err := sub.RegisterAll(r); !errors.Is(err, registry.ErrNotInitialized) {
		t.Fatalf("expected wrapped ErrNotInitialized, got %v", err)
	}
}

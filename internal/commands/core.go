// Package commands holds the daemon's built-in command plugins.
package commands

import (
	"runtime"

	"github.com/danmuck/meshd/internal/object"
	"github.com/danmuck/meshd/internal/registry"
)

// Core provides help, echo and version.
type Core struct {
	Version string
}

func (Core) Name() string { return "core" }

func (c Core) Register(r *registry.Registry) error {
	if err := r.Register("help", "help [command]", "list commands, or describe one", helpHandler(r)); err != nil {
		return err
	}
	if err := r.Register("echo", "echo <string>", "return the argument as result", echo); err != nil {
		return err
	}
	return r.Register("version", "version", "report daemon and runtime versions", c.version)
}

func helpHandler(r *registry.Registry) registry.Handler {
	return func(_ *registry.Command, out *object.Tree, params *object.List) error {
		if err := registry.Arity(params, 0, 1); err != nil {
			return err
		}
		if params.Len() == 1 {
			name, err := registry.StringParam(params, 0)
			if err != nil {
				return err
			}
			cmd, err := r.Lookup(name)
			if err != nil {
				return err
			}
			return registry.SetResult(out, describe(cmd).Object())
		}
		all := object.NewTree()
		for _, cmd := range r.Commands() {
			if err := all.Put(cmd.Name(), describe(cmd).Object()); err != nil {
				all.Free()
				return err
			}
		}
		return registry.SetResult(out, all.Object())
	}
}

func describe(cmd *registry.Command) *object.Tree {
	t := object.NewTree()
	_ = t.PutString("name", cmd.Name())
	_ = t.PutString("usage", cmd.Usage())
	_ = t.PutString("desc", cmd.Desc())
	return t
}

func echo(_ *registry.Command, out *object.Tree, params *object.List) error {
	if err := registry.Arity(params, 1, 1); err != nil {
		return err
	}
	v, _ := params.Element(0)
	raw, err := v.AsString()
	if err != nil {
		return err
	}
	return out.PutString(registry.KeyResult, raw)
}

func (c Core) version(_ *registry.Command, out *object.Tree, _ *object.List) error {
	res := object.NewTree()
	_ = res.PutString("version", c.Version)
	_ = res.PutString("go", runtime.Version())
	_ = res.PutString("platform", runtime.GOOS+"/"+runtime.GOARCH)
	return registry.SetResult(out, res.Object())
}

package profile

import (
	"github.com/danmuck/meshd/internal/object"
	"github.com/danmuck/meshd/internal/registry"
)

type Plugin struct {
	Set *Set
}

func (Plugin) Name() string { return "profile" }

func (p Plugin) Register(r *registry.Registry) error {
	if err := r.Register("profiles", "profiles", "list loaded profile names", p.list); err != nil {
		return err
	}
	if err := r.Register("profile_get", "profile_get <name> [key.path]", "fetch a profile or one of its keys", p.get); err != nil {
		return err
	}
	return r.Register("profile_reload", "profile_reload", "reload profiles from disk", p.reload)
}

func (p Plugin) list(_ *registry.Command, out *object.Tree, params *object.List) error {
	if err := registry.Arity(params, 0, 0); err != nil {
		return err
	}
	names := object.NewList()
	for _, n := range p.Set.Names() {
		if err := names.AppendString(n); err != nil {
			names.Free()
			return err
		}
	}
	return registry.SetResult(out, names.Object())
}

func (p Plugin) get(_ *registry.Command, out *object.Tree, params *object.List) error {
	if err := registry.Arity(params, 1, 2); err != nil {
		return err
	}
	name, err := registry.StringParam(params, 0)
	if err != nil {
		return err
	}
	path, err := registry.OptionalString(params, 1, "")
	if err != nil {
		return err
	}
	var v *object.Object
	if path == "" {
		t, err := p.Set.Get(name)
		if err != nil {
			return err
		}
		v = t.Object()
	} else if v, err = p.Set.Lookup(name, path); err != nil {
		return err
	}
	cp, err := object.Clone(v)
	if err != nil {
		return err
	}
	return registry.SetResult(out, cp)
}

func (p Plugin) reload(_ *registry.Command, out *object.Tree, params *object.List) error {
	if err := registry.Arity(params, 0, 0); err != nil {
		return err
	}
	if err := p.Set.Load(); err != nil {
		return err
	}
	return out.PutInt(registry.KeyResult, int64(len(p.Set.Names())))
}

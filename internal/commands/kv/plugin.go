package kv

import (
	"github.com/danmuck/meshd/internal/object"
	"github.com/danmuck/meshd/internal/registry"
)

// Plugin exposes a Store as db_* commands.
type Plugin struct {
	Store *Store
}

func (Plugin) Name() string { return "kv" }

func (p Plugin) Register(r *registry.Registry) error {
	cmds := []struct {
		name, usage, desc string
		h                 registry.Handler
	}{
		{"db_set", "db_set <key> <value>", "store a value under key", p.set},
		{"db_get", "db_get <key>", "fetch the value under key", p.get},
		{"db_delete", "db_delete <key>", "remove key", p.delete},
		{"db_list", "db_list [prefix]", "list keys, optionally by prefix", p.list},
		{"db_save", "db_save", "write the store snapshot to disk", p.save},
		{"db_load", "db_load", "replace the store with the snapshot on disk", p.load},
	}
	for _, c := range cmds {
		if err := r.Register(c.name, c.usage, c.desc, c.h); err != nil {
			return err
		}
	}
	return nil
}

func (p Plugin) set(_ *registry.Command, out *object.Tree, params *object.List) error {
	if err := registry.Arity(params, 2, 2); err != nil {
		return err
	}
	key, err := registry.StringParam(params, 0)
	if err != nil {
		return err
	}
	v, _ := params.Element(1)
	if err := p.Store.Set(key, v); err != nil {
		return err
	}
	return out.PutString(registry.KeyResult, "ok")
}

func (p Plugin) get(_ *registry.Command, out *object.Tree, params *object.List) error {
	if err := registry.Arity(params, 1, 1); err != nil {
		return err
	}
	key, err := registry.StringParam(params, 0)
	if err != nil {
		return err
	}
	v, err := p.Store.Get(key)
	if err != nil {
		return err
	}
	return registry.SetResult(out, v)
}

func (p Plugin) delete(_ *registry.Command, out *object.Tree, params *object.List) error {
	if err := registry.Arity(params, 1, 1); err != nil {
		return err
	}
	key, err := registry.StringParam(params, 0)
	if err != nil {
		return err
	}
	if err := p.Store.Delete(key); err != nil {
		return err
	}
	return out.PutString(registry.KeyResult, "ok")
}

func (p Plugin) list(_ *registry.Command, out *object.Tree, params *object.List) error {
	if err := registry.Arity(params, 0, 1); err != nil {
		return err
	}
	prefix, err := registry.OptionalString(params, 0, "")
	if err != nil {
		return err
	}
	keys := object.NewList()
	for _, k := range p.Store.Keys(prefix) {
		if err := keys.AppendString(k); err != nil {
			keys.Free()
			return err
		}
	}
	return registry.SetResult(out, keys.Object())
}

func (p Plugin) save(_ *registry.Command, out *object.Tree, params *object.List) error {
	if err := registry.Arity(params, 0, 0); err != nil {
		return err
	}
	n, err := p.Store.Save()
	if err != nil {
		return err
	}
	res := object.NewTree()
	_ = res.PutString("path", p.Store.Path())
	_ = res.PutInt("keys", int64(p.Store.Len()))
	_ = res.PutInt("bytes", int64(n))
	return registry.SetResult(out, res.Object())
}

func (p Plugin) load(_ *registry.Command, out *object.Tree, params *object.List) error {
	if err := registry.Arity(params, 0, 0); err != nil {
		return err
	}
	if err := p.Store.Load(); err != nil {
		return err
	}
	return out.PutInt(registry.KeyResult, int64(p.Store.Len()))
}

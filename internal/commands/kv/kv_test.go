package kv

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/meshd/internal/object"
	"github.com/danmuck/meshd/internal/registry"
	"github.com/danmuck/meshd/internal/testutil/testlog"
)

func kvRegistry(t *testing.T, path string) (*registry.Registry, *Store) {
	t.Helper()
	r := registry.New()
	if err := r.Init(object.WidthAuto); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(r.Shutdown)
	s := NewStore(path)
	t.Cleanup(s.Close)
	if err := (Plugin{Store: s}).Register(r); err != nil {
		t.Fatalf("register: %v", err)
	}
	return r, s
}

func run(t *testing.T, r *registry.Registry, name string, args ...*object.Object) (*object.Tree, error) {
	t.Helper()
	params := object.NewList()
	t.Cleanup(params.Free)
	for _, a := range args {
		if err := params.Append(a, object.Adopt); err != nil {
			t.Fatalf("append param: %v", err)
		}
	}
	out, err := r.Exec(name, params)
	if out != nil {
		t.Cleanup(out.Free)
	}
	return out, err
}

func str(t *testing.T, s string) *object.Object {
	t.Helper()
	o, err := object.NewString(s)
	if err != nil {
		t.Fatalf("string: %v", err)
	}
	return o
}

func TestSetGetDelete(t *testing.T) {
	testlog.Start(t)
	r, s := kvRegistry(t, "")

	if _, err := run(t, r, "db_set", str(t, "alpha"), object.NewInt(7)); err != nil {
		t.Fatalf("set: %v", err)
	}
	out, err := run(t, r, "db_get", str(t, "alpha"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	v, _ := out.FindString(registry.KeyResult)
	if n, _ := v.AsInt(); n != 7 {
		t.Fatalf("get returned %s", v)
	}

	// the result is a copy; freeing it must not touch the store
	out.Free()
	if _, err := s.Get("alpha"); err != nil {
		t.Fatalf("store value lost after result free: %v", err)
	}

	if _, err := run(t, r, "db_delete", str(t, "alpha")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	out, err = run(t, r, "db_get", str(t, "alpha"))
	if err == nil {
		t.Fatalf("expected missing key failure")
	}
	if len(registry.Errors(out)) == 0 {
		t.Fatalf("failure not reported in output")
	}
	if _, err := run(t, r, "db_delete", str(t, "alpha")); !errors.Is(err, object.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestSetReplacesValue(t *testing.T) {
	r, s := kvRegistry(t, "")
	_, _ = run(t, r, "db_set", str(t, "k"), str(t, "one"))
	_, _ = run(t, r, "db_set", str(t, "k"), str(t, "two"))
	if s.Len() != 1 {
		t.Fatalf("len=%d want=1", s.Len())
	}
	v, _ := s.Get("k")
	defer v.Free()
	if got, _ := v.AsString(); got != "two" {
		t.Fatalf("value=%q want two", got)
	}
}

func TestListPrefix(t *testing.T) {
	r, _ := kvRegistry(t, "")
	for _, k := range []string{"node/b", "node/a", "peer/x", "nodes"} {
		if _, err := run(t, r, "db_set", str(t, k), object.Bool(true)); err != nil {
			t.Fatalf("set %q: %v", k, err)
		}
	}
	out, err := run(t, r, "db_list", str(t, "node/"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	v, _ := out.FindString(registry.KeyResult)
	got, ok := object.Native(v).([]any)
	if !ok || len(got) != 2 || got[0] != "node/a" || got[1] != "node/b" {
		t.Fatalf("unexpected list %v", object.Native(v))
	}

	out, _ = run(t, r, "db_list")
	v, _ = out.FindString(registry.KeyResult)
	if l, _ := v.AsList(); l.Len() != 4 {
		t.Fatalf("full list len=%d want=4", l.Len())
	}
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "state", "kv.bin")
	r, s := kvRegistry(t, path)

	nested, err := object.FromNative(map[string]any{"port": int64(9000), "tags": []any{"a"}})
	if err != nil {
		t.Fatalf("native: %v", err)
	}
	_, _ = run(t, r, "db_set", str(t, "cfg"), nested)
	_, _ = run(t, r, "db_set", str(t, "name"), str(t, "mesh"))

	out, err := run(t, r, "db_save")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	res, _ := out.FindString(registry.KeyResult)
	info, _ := res.AsTree()
	keys, _ := info.FindString("keys")
	if n, _ := keys.AsInt(); n != 2 {
		t.Fatalf("saved keys=%d want=2", n)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}

	_, _ = run(t, r, "db_delete", str(t, "name"))
	_, _ = run(t, r, "db_set", str(t, "extra"), object.NewInt(1))

	if _, err := run(t, r, "db_load"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("len after load=%d want=2", s.Len())
	}
	if _, err := s.Get("extra"); !errors.Is(err, object.ErrKeyNotFound) {
		t.Fatalf("load did not replace contents")
	}
	v, err := s.Get("cfg")
	if err != nil {
		t.Fatalf("get cfg: %v", err)
	}
	defer v.Free()
	if !object.Equal(v, nested) {
		t.Fatalf("snapshot value mismatch: %s vs %s", v, nested)
	}
}

func TestSnapshotWithoutPath(t *testing.T) {
	r, _ := kvRegistry(t, "")
	if _, err := run(t, r, "db_save"); !errors.Is(err, ErrNoPath) {
		t.Fatalf("expected ErrNoPath, got %v", err)
	}
	if _, err := run(t, r, "db_load"); !errors.Is(err, ErrNoPath) {
		t.Fatalf("expected ErrNoPath, got %v", err)
	}
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.bin")
	s := NewStore(path)
	defer s.Close()
	if err := s.Load(); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	if err := os.WriteFile(path, []byte{0xdc, 0x00, 0x01}, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Load(); err == nil {
		t.Fatalf("expected decode failure")
	}
	if err := os.WriteFile(path, []byte{0xc3}, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Load(); !errors.Is(err, object.ErrTypeMismatch) {
		t.Fatalf("expected type mismatch for non-tree snapshot, got %v", err)
	}
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/meshd/internal/object"
	"github.com/danmuck/meshd/internal/profile"
	"github.com/danmuck/meshd/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meshd.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `socket = "tcp://127.0.0.1:7100"
registry_width = "32"
read_timeout = "2s"
plugins = ["core"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := DefaultDaemonConfig()
	if cfg.Socket != "tcp://127.0.0.1:7100" || cfg.RegistryWidth != object.Width32 {
		t.Fatalf("explicit keys not applied: %+v", cfg)
	}
	if cfg.ReadTimeout != 2*time.Second || cfg.WriteTimeout != def.WriteTimeout {
		t.Fatalf("timeouts: read=%s write=%s", cfg.ReadTimeout, cfg.WriteTimeout)
	}
	if cfg.MaxPayloadBytes != def.MaxPayloadBytes {
		t.Fatalf("default payload limit lost: %d", cfg.MaxPayloadBytes)
	}
	if len(cfg.Plugins) != 1 || cfg.Plugins[0] != "core" {
		t.Fatalf("plugins=%v", cfg.Plugins)
	}
	tc := cfg.Transport()
	if tc.ReadTimeout != 2*time.Second || tc.Limits.MaxPayloadBytes != def.MaxPayloadBytes {
		t.Fatalf("transport config mismatch: %+v", tc)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"width":    `registry_width = "64"`,
		"socket":   `socket = "ftp://x"`,
		"timeout":  `read_timeout = "soon"`,
		"negative": `write_timeout = "-1s"`,
		"payload":  `max_payload_bytes = 0`,
		"dup":      `plugins = ["core", "core"]`,
		"unknown":  `sockett = "x"`,
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestTemplatesLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meshd.toml")
	if err := WriteTemplate(path, "meshd", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, "meshd", false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("template does not load: %v", err)
	}
	if cfg.HTTPAddr == "" || cfg.DBPath == "" || cfg.ProfileDir == "" {
		t.Fatalf("template left fields empty: %+v", cfg)
	}

	prof := filepath.Join(dir, "default.toml")
	if err := WriteTemplate(prof, "profile", false); err != nil {
		t.Fatalf("write profile template: %v", err)
	}
	tr, err := profile.LoadFile(prof)
	if err != nil {
		t.Fatalf("profile template does not parse: %v", err)
	}
	defer tr.Free()
	if _, err := Template("cluster"); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}

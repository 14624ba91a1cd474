package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/meshd/internal/object"
	"github.com/danmuck/meshd/internal/transport"
	"github.com/danmuck/meshd/internal/transport/frame"
)

var ErrInvalid = errors.New("config: invalid")

// DaemonConfig is the resolved meshd runtime configuration.
type DaemonConfig struct {
	Socket          string
	HTTPAddr        string
	CorsOrigins     []string
	AdminToken      string
	RegistryWidth   object.Width
	ProfileDir      string
	DBPath          string
	MaxPayloadBytes uint32
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	Plugins         []string
}

// meshd config.toml keys.
type fileConfig struct {
	Socket          string   `toml:"socket"`
	HTTPAddr        string   `toml:"http_addr"`
	CorsOrigins     []string `toml:"cors_origins"`
	AdminToken      string   `toml:"admin_token"`
	RegistryWidth   string   `toml:"registry_width"`
	ProfileDir      string   `toml:"profile_dir"`
	DBPath          string   `toml:"db_path"`
	MaxPayloadBytes int64    `toml:"max_payload_bytes"`
	ReadTimeout     string   `toml:"read_timeout"`
	WriteTimeout    string   `toml:"write_timeout"`
	Plugins         []string `toml:"plugins"`
}

func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		Socket:          "unix:///tmp/meshd.sock",
		RegistryWidth:   object.WidthAuto,
		MaxPayloadBytes: frame.DefaultMaxPayloadBytes,
		WriteTimeout:    15 * time.Second,
		Plugins:         []string{"core", "kv", "profile"},
	}
}

// Load overlays the keys present in path onto DefaultDaemonConfig and
// validates the result.
func Load(path string) (DaemonConfig, error) {
	cfg := DefaultDaemonConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return DaemonConfig{}, fmt.Errorf("load meshd config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return DaemonConfig{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalid, undecoded[0].String(), path)
	}

	if meta.IsDefined("socket") {
		cfg.Socket = strings.TrimSpace(raw.Socket)
	}
	if meta.IsDefined("http_addr") {
		cfg.HTTPAddr = strings.TrimSpace(raw.HTTPAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = raw.CorsOrigins
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("registry_width") {
		w, err := object.ParseWidth(strings.TrimSpace(raw.RegistryWidth))
		if err != nil {
			return DaemonConfig{}, fmt.Errorf("%w: registry_width: %v", ErrInvalid, err)
		}
		cfg.RegistryWidth = w
	}
	if meta.IsDefined("profile_dir") {
		cfg.ProfileDir = strings.TrimSpace(raw.ProfileDir)
	}
	if meta.IsDefined("db_path") {
		cfg.DBPath = strings.TrimSpace(raw.DBPath)
	}
	if meta.IsDefined("max_payload_bytes") {
		if raw.MaxPayloadBytes <= 0 || raw.MaxPayloadBytes > int64(^uint32(0)) {
			return DaemonConfig{}, fmt.Errorf("%w: max_payload_bytes %d out of range", ErrInvalid, raw.MaxPayloadBytes)
		}
		cfg.MaxPayloadBytes = uint32(raw.MaxPayloadBytes)
	}
	if meta.IsDefined("read_timeout") {
		if cfg.ReadTimeout, err = parseDuration("read_timeout", raw.ReadTimeout); err != nil {
			return DaemonConfig{}, err
		}
	}
	if meta.IsDefined("write_timeout") {
		if cfg.WriteTimeout, err = parseDuration("write_timeout", raw.WriteTimeout); err != nil {
			return DaemonConfig{}, err
		}
	}
	if meta.IsDefined("plugins") {
		cfg.Plugins = raw.Plugins
	}

	if err := Validate(cfg); err != nil {
		return DaemonConfig{}, err
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalid, key)
	}
	return d, nil
}

func Validate(cfg DaemonConfig) error {
	if _, err := transport.ParseURI(cfg.Socket); err != nil {
		return fmt.Errorf("%w: socket: %v", ErrInvalid, err)
	}
	if !cfg.RegistryWidth.Valid() {
		return fmt.Errorf("%w: registry_width %s", ErrInvalid, cfg.RegistryWidth)
	}
	if cfg.MaxPayloadBytes == 0 {
		return fmt.Errorf("%w: max_payload_bytes must be positive", ErrInvalid)
	}
	seen := make(map[string]bool, len(cfg.Plugins))
	for i, p := range cfg.Plugins {
		name := strings.TrimSpace(p)
		if name == "" {
			return fmt.Errorf("%w: plugins[%d] is empty", ErrInvalid, i)
		}
		if seen[name] {
			return fmt.Errorf("%w: plugin %q listed twice", ErrInvalid, name)
		}
		seen[name] = true
	}
	return nil
}

// Transport derives socket settings for the server from cfg.
func (cfg DaemonConfig) Transport() transport.Config {
	tc := transport.DefaultConfig()
	tc.ReadTimeout = cfg.ReadTimeout
	tc.WriteTimeout = cfg.WriteTimeout
	tc.Limits = frame.Limits{MaxPayloadBytes: cfg.MaxPayloadBytes}
	return tc
}

package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "meshd", "daemon":
		return daemonTemplate, nil
	case "profile":
		return profileTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const daemonTemplate = `socket = "unix:///tmp/meshd.sock"
http_addr = "127.0.0.1:9400"
cors_origins = ["http://localhost:3000"]
admin_token = ""
registry_width = "auto"
profile_dir = "profiles"
db_path = "state/kv.bin"
max_payload_bytes = 8388608
read_timeout = "0s"
write_timeout = "15s"
plugins = ["core", "kv", "profile"]
`

const profileTemplate = `name = "default"

[server]
port = 9000
tags = ["edge"]
`

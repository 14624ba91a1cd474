package main

import (
	"fmt"
	"os"

	"github.com/danmuck/meshd/internal/config"
	"github.com/danmuck/meshd/internal/daemon"
	"github.com/danmuck/meshd/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	logging.ConfigureRuntime()

	flags := pflag.NewFlagSet("meshd", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "", "path to meshd config.toml")
	socket := flags.String("socket", "", "socket uri override (unix:///path or tcp://host:port)")
	httpAddr := flags.String("http", "", "admin HTTP listen address override")
	level := flags.String("log-level", "", "log level (trace|debug|info|warn|error|off)")
	_ = flags.Parse(os.Args[1:])

	if *level != "" && !logging.SetLevel(*level) {
		fmt.Fprintf(os.Stderr, "meshd: unknown log level %q\n", *level)
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("meshd config")
	}
	if flags.Changed("socket") {
		cfg.Socket = *socket
	}
	if flags.Changed("http") {
		cfg.HTTPAddr = *httpAddr
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("meshd config")
	}

	if err := daemon.NewService(cfg).Run(); err != nil {
		log.Fatal().Err(err).Msg("meshd stopped")
	}
}

func loadConfig(path string) (config.DaemonConfig, error) {
	if path == "" {
		return config.DefaultDaemonConfig(), nil
	}
	return config.Load(path)
}

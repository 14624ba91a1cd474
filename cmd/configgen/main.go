package main

import (
	"os"

	"github.com/danmuck/meshd/internal/config"
	"github.com/danmuck/meshd/internal/logging"
	"github.com/danmuck/meshd/internal/profile"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	logging.ConfigureRuntime()

	flags := pflag.NewFlagSet("configgen", pflag.ExitOnError)
	kind := flags.String("kind", "meshd", "config kind: meshd|profile")
	output := flags.StringP("output", "o", "", "output path for config template")
	validate := flags.Bool("validate", false, "validate an existing config file")
	input := flags.StringP("input", "i", "", "config path for validation (defaults to the per-kind path)")
	force := flags.BoolP("force", "f", false, "overwrite existing config file")
	_ = flags.Parse(os.Args[1:])

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		switch *kind {
		case "meshd":
			if _, err := config.Load(path); err != nil {
				log.Fatal().Err(err).Msg("configgen validate")
			}
		case "profile":
			t, err := profile.LoadFile(path)
			if err != nil {
				log.Fatal().Err(err).Msg("configgen validate")
			}
			t.Free()
		default:
			log.Fatal().Str("kind", *kind).Msg("configgen unknown kind")
		}
		log.Info().Str("kind", *kind).Str("path", path).Msg("configgen validated")
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal().Err(err).Msg("configgen write")
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("configgen wrote template")
}

func defaultPath(kind string) string {
	switch kind {
	case "meshd":
		return "cmd/meshd/config.toml"
	case "profile":
		return "profiles/default.toml"
	default:
		log.Fatal().Str("kind", kind).Msg("configgen unknown kind")
		return ""
	}
}

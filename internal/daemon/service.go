// Package daemon wires the configured plugins, the socket server and the
// optional HTTP admin surface into one meshd process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/danmuck/meshd/internal/admin"
	"github.com/danmuck/meshd/internal/auth"
	"github.com/danmuck/meshd/internal/commands"
	"github.com/danmuck/meshd/internal/commands/kv"
	"github.com/danmuck/meshd/internal/config"
	"github.com/danmuck/meshd/internal/plugins"
	"github.com/danmuck/meshd/internal/profile"
	"github.com/danmuck/meshd/internal/registry"
	"github.com/danmuck/meshd/internal/server"
	"github.com/danmuck/meshd/internal/transport"
	"github.com/rs/zerolog/log"
)

const ID = "meshd"

var Version = "0.1.0"

type Service struct {
	cfg      config.DaemonConfig
	reg      *registry.Registry
	store    *kv.Store
	profiles *profile.Set
	srv      *server.Server

	readyOnce sync.Once
	ready     chan struct{}
}

func NewService(cfg config.DaemonConfig) *Service {
	return &Service{
		cfg:   cfg,
		reg:   registry.New(),
		ready: make(chan struct{}),
	}
}

// Ready is closed once the socket is listening.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

func (s *Service) Registry() *registry.Registry {
	return s.reg
}

// Run blocks until SIGINT or SIGTERM.
func (s *Service) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.RunContext(ctx)
}

// RunContext boots the registry and serves until ctx is done.
func (s *Service) RunContext(ctx context.Context) error {
	if err := s.bootstrap(); err != nil {
		s.shutdown()
		return err
	}
	defer s.shutdown()
	return s.serve(ctx)
}

func (s *Service) bootstrap() error {
	if err := s.reg.Init(s.cfg.RegistryWidth); err != nil {
		return fmt.Errorf("daemon: registry init: %w", err)
	}

	s.store = kv.NewStore(s.cfg.DBPath)
	if s.cfg.DBPath != "" {
		if err := s.store.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	s.profiles = profile.NewSet(s.cfg.ProfileDir)
	if s.cfg.ProfileDir != "" {
		if err := s.profiles.Load(); err != nil {
			log.Warn().Err(err).Str("dir", s.cfg.ProfileDir).Msg("daemon.Service.bootstrap profiles skipped")
		}
	}

	all, err := plugins.NewSet(
		commands.Core{Version: Version},
		kv.Plugin{Store: s.store},
		profile.Plugin{Set: s.profiles},
	)
	if err != nil {
		return err
	}
	selected, err := all.Select(s.cfg.Plugins)
	if err != nil {
		return err
	}
	if err := selected.RegisterAll(s.reg); err != nil {
		return err
	}
	s.srv = server.New(s.reg, s.cfg.Transport())

	log.Info().
		Str("socket", s.cfg.Socket).
		Str("width", s.cfg.RegistryWidth.String()).
		Strs("plugins", selected.Names()).
		Int("commands", s.reg.Len()).
		Msg("daemon.Service.bootstrap ready")
	return nil
}

func (s *Service) serve(ctx context.Context) error {
	ln, err := transport.Listen(s.cfg.Socket)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- s.srv.Serve(ctx, ln)
	}()
	running := 1
	if strings.TrimSpace(s.cfg.HTTPAddr) != "" {
		a := admin.New(ID, s.cfg.HTTPAddr, s.cfg.CorsOrigins, s.srv)
		a.Version = Version
		if s.cfg.AdminToken != "" {
			a.RequireToken(auth.StaticToken{Token: s.cfg.AdminToken})
		}
		go func() {
			errCh <- a.Serve(ctx)
		}()
		running++
	}
	s.readyOnce.Do(func() { close(s.ready) })

	var first error
	for i := 0; i < running; i++ {
		err := <-errCh
		if err != nil && first == nil {
			first = err
		}
		// either surface stopping takes the other down
		cancel()
	}
	return first
}

func (s *Service) shutdown() {
	if s.srv != nil && s.store != nil && s.cfg.DBPath != "" {
		err := s.srv.Do(func(*registry.Registry) error {
			_, err := s.store.Save()
			return err
		})
		if err != nil {
			log.Error().Err(err).Str("path", s.cfg.DBPath).Msg("daemon.Service.shutdown snapshot failed")
		}
	}
	s.reg.Shutdown()
	if s.store != nil {
		s.store.Close()
	}
	if s.profiles != nil {
		s.profiles.Close()
	}
	log.Info().Msg("daemon.Service.shutdown complete")
}

// Package server accepts framed socket connections and dispatches decoded
// requests into a command registry.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/danmuck/meshd/internal/object"
	"github.com/danmuck/meshd/internal/registry"
	"github.com/danmuck/meshd/internal/rpc"
	"github.com/danmuck/meshd/internal/transport"
	"github.com/danmuck/meshd/internal/transport/frame"
	"github.com/rs/zerolog/log"
)

// Server serializes every registry access behind one mutex, so the socket
// loop and the HTTP admin surface may share it.
type Server struct {
	reg    *registry.Registry
	cfg    transport.Config
	limits object.Limits

	mu sync.Mutex

	connMu sync.Mutex
	conns  map[*transport.Conn]struct{}
	wg     sync.WaitGroup
	active atomic.Int64
}

func New(reg *registry.Registry, cfg transport.Config) *Server {
	if cfg.Limits.MaxPayloadBytes == 0 {
		cfg.Limits = frame.DefaultLimits()
	}
	return &Server{
		reg:    reg,
		cfg:    cfg,
		limits: object.DefaultLimits(),
		conns:  make(map[*transport.Conn]struct{}),
	}
}

// Exec runs one command under the dispatch lock. A panicking handler is
// reported as a *registry.HandlerError.
func (s *Server) Exec(name string, params *object.List) (out *object.Tree, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("command", name).Interface("panic", r).Msg("server.Server.Exec handler panic")
			out = object.NewTree()
			msg := fmt.Sprintf("%s: handler panic: %v", name, r)
			_ = registry.AppendError(out, msg)
			err = &registry.HandlerError{Command: name, Messages: []string{msg}}
		}
	}()
	return s.reg.Exec(name, params)
}

// Commands lists registered commands under the dispatch lock.
func (s *Server) Commands() []registry.CommandInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmds := s.reg.Commands()
	out := make([]registry.CommandInfo, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.Info())
	}
	return out
}

// Do runs fn with the registry under the dispatch lock.
func (s *Server) Do(fn func(*registry.Registry) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.reg)
}

// ActiveConns reports connections currently being served.
func (s *Server) ActiveConns() int64 {
	return s.active.Load()
}

// Serve accepts on ln until ctx is done, then closes ln and every open
// connection and waits for their goroutines.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	log.Info().Str("addr", ln.Addr().String()).Msg("server.Server.Serve listening")
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	defer s.closeAll()

	for {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		conn := transport.NewConn(raw, ln.Addr().String(), s.cfg)
		s.track(conn)
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) track(c *transport.Conn) {
	s.connMu.Lock()
	s.conns[c] = struct{}{}
	s.connMu.Unlock()
}

func (s *Server) untrack(c *transport.Conn) {
	s.connMu.Lock()
	delete(s.conns, c)
	s.connMu.Unlock()
}

func (s *Server) closeAll() {
	s.connMu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.connMu.Unlock()
	s.wg.Wait()
}

// handleConn reads one request frame at a time and answers each in order.
func (s *Server) handleConn(conn *transport.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	active := s.active.Add(1)
	log.Debug().Str("remote", remote).Int64("active_clients", active).Msg("server.Server client connected")
	defer func() {
		remaining := s.active.Add(-1)
		log.Debug().Str("remote", remote).Int64("active_clients", remaining).Msg("server.Server client disconnected")
	}()

	// Idle clients stay connected until they hang up or Serve stops.
	conn.SetReadTimeout(0)
	for {
		f, err := conn.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn().Str("remote", remote).Err(err).Msg("server.Server read")
			}
			return
		}
		if f.IsResponse() {
			log.Warn().Str("remote", remote).Uint64("message_id", f.Header.MessageID).Msg("server.Server unexpected response frame")
			continue
		}
		reply := s.Handle(f.Payload)
		if err := conn.WriteFrame(frame.New(f.Header.MessageID, frame.FlagIsResponse, reply)); err != nil {
			log.Warn().Str("remote", remote).Err(err).Msg("server.Server write")
			return
		}
	}
}

// Handle turns one encoded request into one encoded response. Every
// failure is reported inside the response as status false with "errors".
func (s *Server) Handle(payload []byte) []byte {
	method, params, err := rpc.DecodeRequest(payload, s.limits)
	if err != nil {
		return s.failure(fmt.Sprintf("bad request: %v", err))
	}
	defer params.Free()

	out, err := s.Exec(method, params)
	if err != nil && out == nil {
		return s.failure(err.Error())
	}
	defer out.Free()

	reply, encErr := rpc.EncodeResponse(err == nil, out)
	if encErr != nil {
		return s.failure(fmt.Sprintf("%s: encode response: %v", method, encErr))
	}
	if uint64(len(reply)) > uint64(s.cfg.Limits.MaxPayloadBytes) {
		return s.failure(fmt.Sprintf("%s: response of %d bytes exceeds frame limit", method, len(reply)))
	}
	return reply
}

func (s *Server) failure(msg string) []byte {
	out := object.NewTree()
	defer out.Free()
	_ = registry.AppendError(out, msg)
	reply, err := rpc.EncodeResponse(false, out)
	if err != nil {
		log.Error().Err(err).Msg("server.Server.failure encode")
		return nil
	}
	return reply
}

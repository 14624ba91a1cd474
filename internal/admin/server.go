// Package admin is the HTTP side door into a running daemon: health,
// metrics, command listing and JSON-bridged command execution.
package admin

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/danmuck/meshd/internal/auth"
	"github.com/danmuck/meshd/internal/object"
	"github.com/danmuck/meshd/internal/observability"
	"github.com/danmuck/meshd/internal/registry"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Dispatcher runs commands on behalf of HTTP callers. Implementations
// serialize access to the registry.
type Dispatcher interface {
	Exec(name string, params *object.List) (*object.Tree, error)
	Commands() []registry.CommandInfo
}

type Server struct {
	ID       string
	Addr     string
	Version  string
	Appeared time.Time

	dispatch Dispatcher
	router   *gin.Engine
	auth     auth.Validator
}

type execRequest struct {
	Params []any `json:"params"`
}

func New(id, addr string, corsOrigins []string, d Dispatcher) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(observability.Logger("admin")))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", auth.HeaderToken},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		ID:       id,
		Addr:     addr,
		Version:  "0.0.1",
		Appeared: time.Now(),
		dispatch: d,
		router:   r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"uptime":   time.Since(s.Appeared).String(),
			"service":  s.ID,
			"version":  s.Version,
			"commands": len(s.dispatch.Commands()),
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/commands", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"commands": s.dispatch.Commands()})
	})

	s.router.POST("/commands/:name", s.authorize, s.execCommand)
}

// RequireToken gates command execution behind v. Read-only routes stay
// open.
func (s *Server) RequireToken(v auth.Validator) {
	s.auth = v
}

func (s *Server) authorize(c *gin.Context) {
	auth.Middleware(s.auth)(c)
}

func (s *Server) execCommand(c *gin.Context) {
	name := c.Param("name")

	var body execRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.Params == nil {
		body.Params = []any{}
	}
	po, err := object.FromNative(body.Params)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer po.Free()
	params, _ := po.AsList()

	out, err := s.dispatch.Exec(name, params)
	if out != nil {
		defer out.Free()
	}
	var herr *registry.HandlerError
	switch {
	case err == nil:
		log.Info().Str("command", name).Int("params", params.Len()).Msg("admin.Server command executed")
		c.JSON(http.StatusOK, gin.H{"status": "ok", "output": object.Native(out.Object())})
	case errors.As(err, &herr):
		log.Warn().Str("command", name).Strs("errors", herr.Messages).Msg("admin.Server command failed")
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"status": "failed",
			"errors": herr.Messages,
			"output": object.Native(out.Object()),
		})
	case errors.Is(err, object.ErrKeyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// Serve listens on Addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.Addr).Msg("admin.Server.Serve listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

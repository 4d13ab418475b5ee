// Package server exposes the HTTP API: streaming and synchronous
// chat, model listing and session management.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ragdesk/ragdesk/pkg/api"
	"github.com/ragdesk/ragdesk/pkg/config"
	"github.com/ragdesk/ragdesk/pkg/environment"
	"github.com/ragdesk/ragdesk/pkg/model/provider"
	"github.com/ragdesk/ragdesk/pkg/session"
	"github.com/ragdesk/ragdesk/pkg/tools"
)

type Server struct {
	echo     *echo.Echo
	cfg      *config.Config
	store    session.Store
	registry *tools.Registry
	env      environment.Provider

	// newProvider is swappable in tests.
	newProvider func(ctx context.Context, mc config.ModelConfig, env environment.Provider) (provider.Provider, error)
}

func New(cfg *config.Config, store session.Store, registry *tools.Registry, env environment.Provider) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
	}))

	s := &Server{
		echo:        e,
		cfg:         cfg,
		store:       store,
		registry:    registry,
		env:         env,
		newProvider: provider.New,
	}

	g := e.Group("/api")
	g.GET("/ping", s.ping)
	g.GET("/models", s.listModels)
	g.POST("/chat", s.chat)
	g.POST("/chat/stream", s.chatStream)
	g.GET("/sessions", s.listSessions)
	g.POST("/sessions", s.createSession)
	g.GET("/sessions/:id", s.getSession)
	g.DELETE("/sessions/:id", s.deleteSession)

	return s
}

// Serve blocks until ctx is cancelled, then shuts the listener down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()

	slog.Info("Server listening", "addr", addr)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

// Handler exposes the underlying mux. Used in tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listModels(c echo.Context) error {
	models := make([]api.ModelInfo, 0, len(s.cfg.Models))
	for alias, mc := range s.cfg.Models {
		models = append(models, api.ModelInfo{
			Alias:             alias,
			Name:              mc.Name,
			Description:       mc.Description,
			SupportsTools:     mc.SupportsTools,
			SupportsReasoning: mc.SupportsReasoning,
			Default:           alias == s.cfg.DefaultModel,
		})
	}
	sort.Slice(models, func(i, j int) bool {
		return models[i].Alias < models[j].Alias
	})
	return c.JSON(http.StatusOK, api.ModelsResponse{Models: models})
}

// Package server assembles the HTTP router and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cryptex/internal/api"
	"cryptex/internal/metrics"
	"cryptex/internal/web"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps are the handlers and collectors served by the router.
type Deps struct {
	API      *api.Handler
	Web      *web.Handler
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// Server runs the router on an http.Server.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// New creates a server listening on port.
func New(port int, deps Deps, logger *zap.Logger) (*Server, error) {
	router, err := NewRouter(deps, logger)
	if err != nil {
		return nil, err
	}
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.Named("http-server"),
	}, nil
}

// NewRouter wires the REST layer under /api/v1, the pages, /metrics and /health.
func NewRouter(deps Deps, logger *zap.Logger) (*gin.Engine, error) {
	tmpl, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	router := gin.New()
	router.Use(gin.Recovery(), loggingMiddleware(logger.Named("http")), metricsMiddleware(deps.Metrics))
	router.SetHTMLTemplate(tmpl)

	router.GET("/health", healthHandler)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	deps.API.Register(router.Group("/api/v1"))
	deps.Web.Register(router)
	return router, nil
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting HTTP server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server...")
	return s.server.Shutdown(ctx)
}

func healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

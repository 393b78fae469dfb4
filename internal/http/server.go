// Package http exposes the ingestion and retrieval pipelines over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/pipeline"
)

// Service is the pipeline surface the server needs.
type Service interface {
	Ingest(ctx context.Context, files []string, datasetID string) (*pipeline.IngestResult, error)
	Retrieve(ctx context.Context, query, datasetID string) ([]string, error)
	Delete(ctx context.Context, datasetID string) error
	ListDatasets(ctx context.Context) ([]string, error)
	ListChunks(ctx context.Context, datasetID string) ([]pipeline.ChunkRecord, error)
	Health(ctx context.Context) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// BodyLimit caps request bodies, in echo's size syntax ("2M").
	BodyLimit string
}

// Server provides the ragd HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	svc      Service
	logger   *logging.Logger
	config   *Config
	gatherer prometheus.Gatherer
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	registry *prometheus.Registry
}

// WithRegistry serves /metrics from reg and registers HTTP metrics on it.
// Without it the server uses a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *serverOptions) { o.registry = reg }
}

// NewServer creates the HTTP server.
func NewServer(svc Service, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "0.0.0.0",
			Port: 8000,
		}
	}

	o := serverOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		svc:      svc,
		logger:   logger,
		config:   cfg,
		gatherer: o.registry,
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	e.Use(NewHTTPMetrics(o.registry).MetricsMiddleware())
	e.Use(s.requestLogger)

	s.registerRoutes()
	return s, nil
}

// requestLogger attaches the request id to the context and logs each
// request when it completes.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
		c.SetRequest(req.WithContext(ctx))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.logger.Info(ctx, "http request",
			zap.String("method", req.Method),
			zap.String("uri", req.URL.Path),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	s.echo.POST("/ingest", s.handleIngest)
	s.echo.POST("/retrieve", s.handleRetrieve)
	s.echo.GET("/datasets", s.handleListDatasets)
	s.echo.DELETE("/datasets/:datasetId", s.handleDelete)
	s.echo.GET("/datasets/:datasetId/chunks", s.handleListChunks)
}

// Echo exposes the underlying router for extra routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

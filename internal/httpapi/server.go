// Package httpapi exposes the services over a thin REST surface.
package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/covelabs/docdex/internal/collections"
	"github.com/covelabs/docdex/internal/config"
	"github.com/covelabs/docdex/internal/ingest"
	"github.com/covelabs/docdex/internal/logging"
	"github.com/covelabs/docdex/internal/metrics"
	"github.com/covelabs/docdex/internal/retrieval"
	"github.com/covelabs/docdex/internal/store"
)

// Server is the HTTP front of the services.
type Server struct {
	echo        *echo.Echo
	cfg         config.ServerConfig
	logger      *logging.Logger
	store       *store.Store
	collections *collections.Service
	ingest      *ingest.Service
	retrieval   *retrieval.Service
	adminEmails map[string]struct{}
}

// NewServer wires the services into routes.
func NewServer(cfg config.ServerConfig, st *store.Store, cols *collections.Service, ing *ingest.Service, ret *retrieval.Service, adminEmails []string, logger *logging.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:        e,
		cfg:         cfg,
		logger:      logger,
		store:       st,
		collections: cols,
		ingest:      ing,
		retrieval:   ret,
		adminEmails: adminEmailSet(adminEmails),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(s.requestLogger)
	e.HTTPErrorHandler = s.errorHandler

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1", s.identity)

	v1.GET("/collections", s.handleListCollections)
	v1.POST("/collections", s.handleCreateCollection)
	v1.GET("/collections/:collection_id", s.handleGetCollection)
	v1.PATCH("/collections/:collection_id", s.handleUpdateCollection)
	v1.DELETE("/collections/:collection_id", s.handleDeleteCollection)

	v1.GET("/collections/:collection_id/roles", s.handleListRoles)
	v1.PUT("/collections/:collection_id/roles", s.handleGrantRole)
	v1.DELETE("/collections/:collection_id/roles/:user_id", s.handleRevokeRole)

	v1.GET("/collections/:collection_id/resources", s.handleListResources)
	v1.POST("/collections/:collection_id/resources", s.handleUploadResource)
	v1.POST("/collections/:collection_id/resources/url", s.handleIngestURL)
	v1.GET("/resources/:resource_id", s.handleGetResource)
	v1.DELETE("/resources/:resource_id", s.handleDeleteResource)
	v1.GET("/resources/:resource_id/chunks", s.handleListChunks)

	v1.POST("/collections/:collection_id/search", s.handleSearch)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info(context.Background(), "http server listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the root handler for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := logging.WithRequestID(c.Request().Context(), requestID)
		c.SetRequest(c.Request().WithContext(ctx))

		err := next(c)

		s.logger.Info(ctx, "http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
		)
		return err
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

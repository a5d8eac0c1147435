// Package httpapi exposes the hub over HTTP: channel webhooks, webhook URL
// issuance, usage reporting and the health/metrics probes.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/franchise-integration-hub/internal/ingestion"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
)

// MessageReceiver is the receipt side of the hub.
type MessageReceiver interface {
	ProcessIncomingMessage(ctx context.Context, ch model.Channel, payload []byte, integrationID string) (string, error)
	GenerateWebhookURL(ctx context.Context, integrationID string, ch model.Channel) (string, error)
}

// UsageReader reads per-day usage counters.
type UsageReader interface {
	FindRange(ctx context.Context, integrationID string, from, to time.Time) ([]model.UsageCounter, error)
}

// Checker is one readiness dependency.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Options configures the server.
type Options struct {
	Port           int
	CompanyID      string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	Metrics        http.Handler
	Checks         []Checker
}

// Server represents the hub HTTP server
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	hub        MessageReceiver
	usage      UsageReader
	publisher  ingestion.EventPublisher
	opts       Options
	logger     *zap.Logger
}

// NewServer builds the router. publisher may be nil, in which case stored
// messages are left for the reprocess sweep.
func NewServer(hub MessageReceiver, usage UsageReader, publisher ingestion.EventPublisher, opts Options, logger *zap.Logger) *Server {
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		engine:    engine,
		hub:       hub,
		usage:     usage,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	engine.Use(recovery(logger), requestContext(logger, opts.CompanyID))
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/ready", s.handleReady)
	if s.opts.Metrics != nil {
		s.logger.Info("Registering /metrics endpoint")
		s.engine.GET("/metrics", gin.WrapH(s.opts.Metrics))
	}

	api := s.engine.Group("/api", requestTimeout(s.opts.RequestTimeout))
	api.POST("/webhooks/:channel/:integrationId", bodyLimit(s.opts.MaxBodyBytes), s.handleWebhook)
	api.POST("/integrations/:integrationId/webhook-url", s.handleWebhookURL)
	api.GET("/integrations/:integrationId/usage", s.handleUsage)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins the HTTP server
func (s *Server) Start() {
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

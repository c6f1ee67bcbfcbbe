// Package server provides the HTTP API for the analyst service.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/geoint/internal/config"
	"github.com/hyperjump/geoint/internal/metrics"
	"github.com/hyperjump/geoint/internal/models"
	"github.com/hyperjump/geoint/pkg/utils"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "geoint"

// Analyst is the set of operations served over HTTP.
type Analyst interface {
	Detect(ctx context.Context, img models.Image, confidence float64) (models.DetectResponse, error)
	Analyze(ctx context.Context, img models.Image, prompt string) (json.RawMessage, error)
	Pipeline(ctx context.Context, img models.Image, confidence float64) (models.PipelineResponse, error)
	Chat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error)
	Summarize(ctx context.Context) (models.SummaryResponse, error)
	Latest() models.FeatureCollection
	PublishDetections(payload json.RawMessage) (models.DetectResponse, error)
	Status(ctx context.Context) models.StatusResponse
	IngestReport(ctx context.Context, in models.ReportInput) (models.IngestResult, error)
	DeleteReport(ctx context.Context, reportID string) error
}

// Server is the HTTP server for the analyst API.
type Server struct {
	analyst           Analyst
	config            *config.ServerConfig
	defaultConfidence float64
	hub               http.Handler
	metrics           *metrics.Metrics
	logger            *zap.Logger
	server            *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithHub serves the websocket detection feed at /ws.
func WithHub(h http.Handler) Option {
	return func(s *Server) { s.hub = h }
}

// WithMetrics records request metrics and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithDefaultConfidence sets the detection threshold used when a request omits one.
func WithDefaultConfidence(c float64) Option {
	return func(s *Server) { s.defaultConfidence = c }
}

// NewServer creates a server with the given dependencies.
func NewServer(a Analyst, cfg *config.ServerConfig, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		analyst:           a,
		config:            cfg,
		defaultConfidence: 0.25,
		logger:            utils.NopIfNil(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP handler. Every API route is served both at the root and
// under /api.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(s.cors().Handler)

	if s.hub != nil {
		r.Get("/ws", s.hub.ServeHTTP)
		r.Get("/api/ws", s.hub.ServeHTTP)
	}
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.requestTimeout()))
		r.Use(middleware.Compress(5, "application/json"))
		s.routes(r)
		r.Route("/api", s.routes)
	})
	return r
}

func (s *Server) routes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/detect", s.handleDetect)
	r.Post("/analyze", s.handleAnalyze)
	r.Post("/pipeline", s.handlePipeline)
	r.Post("/chat", s.handleChat)
	r.Post("/detections", s.handlePublishDetections)
	r.Get("/detections/latest", s.handleLatestDetections)
	r.Post("/detections/summary", s.handleSummary)
	r.Post("/reports", s.handleIngestReport)
	r.Delete("/reports/{id}", s.handleDeleteReport)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) cors() *cors.Cors {
	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	})
}

func (s *Server) requestTimeout() time.Duration {
	if s.config.RequestTimeout > 0 {
		return s.config.RequestTimeout
	}
	return 180 * time.Second
}

func (s *Server) maxUploadBytes() int64 {
	if s.config.MaxUploadBytes > 0 {
		return s.config.MaxUploadBytes
	}
	return 32 << 20
}

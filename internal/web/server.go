package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"meshping/internal/exposition"
	"meshping/internal/models"
	"meshping/internal/reconcile"
)

// Config for the web server
type Config struct {
	Listen   string
	Hostname string
}

// Server handles web requests
type Server struct {
	cfg        Config
	reconciler *reconcile.Reconciler
	encoder    *exposition.Encoder
	charts     models.ChartRenderer
	ui         fs.FS
	index      *template.Template
	logger     *slog.Logger

	mux        *http.ServeMux
	httpServer *http.Server

	registry        *prometheus.Registry
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates a new web server. static must hold index.html and a ui/
// directory; charts may be nil when no Prometheus server is configured.
func New(cfg Config, reconciler *reconcile.Reconciler, encoder *exposition.Encoder, charts models.ChartRenderer, static fs.FS, logger *slog.Logger) (*Server, error) {
	index, err := template.ParseFS(static, "index.html")
	if err != nil {
		return nil, fmt.Errorf("parse index template: %w", err)
	}
	ui, err := fs.Sub(static, "ui")
	if err != nil {
		return nil, fmt.Errorf("ui files: %w", err)
	}

	s := &Server{
		cfg:        cfg,
		reconciler: reconciler,
		encoder:    encoder,
		charts:     charts,
		ui:         ui,
		index:      index,
		logger:     logger,
		mux:        http.NewServeMux(),
	}
	s.initMetrics()
	s.routes()

	s.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.instrument("/", s.handleIndex))
	s.mux.HandleFunc("GET /ui/{path...}", s.instrument("/ui", s.handleUI))
	s.mux.HandleFunc("GET /metrics", s.instrument("/metrics", s.handleMetrics))
	s.mux.HandleFunc("POST /peer", s.instrument("/peer", s.handlePeer))

	s.mux.HandleFunc("GET /api/resolve/{name}", s.instrument("/api/resolve", s.handleResolve))
	s.mux.HandleFunc("GET /api/targets", s.instrument("/api/targets", s.handleListTargets))
	s.mux.HandleFunc("POST /api/targets", s.instrument("/api/targets", s.handleAddTarget))
	s.mux.HandleFunc("DELETE /api/targets/{target}", s.instrument("/api/targets/:target", s.handleDeleteTarget))
	s.mux.HandleFunc("PATCH /api/targets/{target}", s.instrument("/api/targets/:target", s.handleEditTarget))
	s.mux.HandleFunc("PUT /api/targets/{target}", s.instrument("/api/targets/:target", s.handleEditTarget))
	s.mux.HandleFunc("DELETE /api/stats", s.instrument("/api/stats", s.handleClearStats))

	s.mux.HandleFunc("GET /histogram/{node}/{file}", s.instrument("/histogram", s.handleHistogram))

	s.mux.Handle("GET /internal/metrics", s.metricsHandler())
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("web server starting", "listen", s.cfg.Listen)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/docsentry/docsentry/internal/audit"
	"github.com/docsentry/docsentry/internal/config"
	"github.com/docsentry/docsentry/internal/logger"
	"github.com/docsentry/docsentry/internal/pipeline"
	"github.com/docsentry/docsentry/internal/redact"
	"github.com/docsentry/docsentry/internal/web"
	"github.com/docsentry/docsentry/internal/websocket"
)

// Server exposes the redaction pipeline over HTTP. Every request path is
// fail-closed: a pipeline or engine error never produces partially redacted
// output, only an error response.
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	engine    *redact.Engine
	pipeline  *pipeline.Pipeline
	audit     *audit.Store
	router    *mux.Router
	server    *http.Server
	wsHub     *websocket.Hub
	limiter   *clientLimiter
	startTime time.Time
}

// New creates a server around an already-assembled pipeline. The audit store
// may be nil; the stats endpoint degrades accordingly.
func New(cfg *config.Config, log *logger.Logger, engine *redact.Engine, pipe *pipeline.Pipeline, auditStore *audit.Store) (*Server, error) {
	wsHub := websocket.NewHub(&websocket.HubConfig{
		BroadcastRedactions:  cfg.WebSocket.Events.BroadcastRedactions,
		BroadcastRequests:    cfg.WebSocket.Events.BroadcastRequests,
		BroadcastSystem:      cfg.WebSocket.Events.BroadcastSystem,
		BroadcastConnections: cfg.WebSocket.Events.BroadcastConnections,
		Username:             cfg.WebSocket.Username,
		Password:             cfg.WebSocket.Password,
	}, log.WithComponent("websocket").Logger)

	server := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		engine:    engine,
		pipeline:  pipe,
		audit:     auditStore,
		router:    mux.NewRouter(),
		wsHub:     wsHub,
		limiter:   newClientLimiter(cfg.RateLimit),
		startTime: time.Now(),
	}

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Info endpoint
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	// Dashboard endpoint - embedded HTML
	s.router.HandleFunc("/", web.ServeDashboard).Methods("GET")
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods("GET")

	// WebSocket endpoint for dashboard
	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.handleWebSocket).Methods("GET")
	}

	// Redaction API endpoints
	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/redact", s.handleRedact).Methods("POST")
	api.HandleFunc("/documents", s.handleDocument).Methods("POST")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting DocSentry server",
		zap.Int("port", s.config.Server.Port),
		zap.Strings("excluded_kinds", s.engine.ExcludedKinds()),
		zap.String("overlap_policy", string(s.engine.Policy())),
	)

	// Start WebSocket hub in a separate goroutine
	go s.wsHub.Run()

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping DocSentry server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":           "docsentry",
		"version":        "0.1.0",
		"excluded_kinds": s.engine.ExcludedKinds(),
		"overlap_policy": s.engine.Policy(),
		"offset_unit":    s.config.Redaction.OffsetUnit,
		"audit_enabled":  s.audit != nil,
		"uptime":         time.Since(s.startTime).Round(time.Second).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(info); err != nil {
		s.logger.Error("Failed to encode info response", zap.Error(err))
	}
}

// handleStats reports audit totals and hub statistics
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	hubStats := s.wsHub.GetStats()
	stats := map[string]interface{}{
		"uptime":            time.Since(s.startTime).Round(time.Second).String(),
		"connected_clients": hubStats.ActiveConnections,
		"total_broadcasts":  hubStats.TotalBroadcasts,
	}

	if s.audit != nil {
		totals, err := s.audit.GetTotals(r.Context())
		if err != nil {
			s.logger.Error("Failed to load audit totals", zap.Error(err))
			http.Error(w, "Failed to load statistics", http.StatusInternalServerError)
			return
		}
		stats["audit"] = totals
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.logger.Error("Failed to encode stats response", zap.Error(err))
	}
}

// handleWebSocket handles WebSocket connections for the dashboard
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}

// GetWebSocketHub returns the WebSocket hub for broadcasting events
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}

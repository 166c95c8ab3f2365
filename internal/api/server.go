// Package api serves completed simulation runs over HTTP and streams run
// progress to WebSocket and SSE clients.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"tycho/internal/store"
	"tycho/internal/strategy"
)

// Server serves the run-report HTTP API.
type Server struct {
	runs     store.RunStore
	registry *strategy.Registry
	hub      *Hub
	broker   *Broker
	log      *slog.Logger
}

// NewServer creates a new API server over the given run store and strategy
// registry.
func NewServer(runs store.RunStore, registry *strategy.Registry, hub *Hub, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		runs:     runs,
		registry: registry,
		hub:      hub,
		broker:   NewBroker(),
		log:      log.With("component", "api"),
	}
}

// PublishProgress broadcasts a progress payload to all WebSocket and SSE
// clients. The payload is marshalled once and shared.
func (s *Server) PublishProgress(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Warn("marshalling progress", "error", err)
		return
	}
	if s.hub != nil {
		s.hub.Broadcast(data)
	}
	s.broker.Publish(data)
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/strategies", s.handleStrategies)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/runs/{id}/equity", s.handleEquity)
	mux.HandleFunc("DELETE /api/runs/{id}", s.handleDeleteRun)
	mux.HandleFunc("GET /api/progress", s.broker.ServeSSE)
	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.ServeWS)
	}
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

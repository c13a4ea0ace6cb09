// Package api exposes the read-only operational surface: health and a
// stats snapshot computed from the live core structures. The chat product's
// REST CRUD routes live elsewhere; nothing here mutates state.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"chatcore/internal/presence"
	"chatcore/internal/rooms"
	"chatcore/internal/websocket"
	"chatcore/pkg/types"
)

// FrameCounters is the dispatcher's counter surface, kept as an interface
// so the server never couples to routing internals.
type FrameCounters interface {
	Counters() map[string]int64
	Errors() int64
}

// Server serves /health and /stats.
type Server struct {
	registry  *websocket.Registry
	rooms     *rooms.Index
	presence  *presence.Tracker
	counters  FrameCounters
	startedAt time.Time
	router    *http.ServeMux
}

// NewServer creates the API server over the live core structures.
func NewServer(registry *websocket.Registry, index *rooms.Index, tracker *presence.Tracker, counters FrameCounters) *Server {
	s := &Server{
		registry:  registry,
		rooms:     index,
		presence:  tracker,
		counters:  counters,
		startedAt: time.Now(),
		router:    http.NewServeMux(),
	}

	s.router.Handle("/health", s.corsMiddleware(http.HandlerFunc(s.handleHealth)))
	s.router.Handle("/stats", s.corsMiddleware(http.HandlerFunc(s.handleStats)))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.sendJSON(w, map[string]any{
		"status":  "healthy",
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
		"version": "1.0",
	}, http.StatusOK)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.sendJSON(w, s.Snapshot(), http.StatusOK)
}

// Snapshot recomputes the stats aggregate from the live structures.
func (s *Server) Snapshot() *types.Stats {
	return &types.Stats{
		ActiveConnections:  s.registry.Len(),
		PeakConnections:    s.registry.Peak(),
		AuthenticatedUsers: s.presence.Len(),
		Rooms:              s.rooms.Count(),
		MessagesByType:     s.counters.Counters(),
		Errors:             s.counters.Errors(),
		Connections:        s.registry.ActivitySnapshot(),
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode API response: %v", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, msg string, status int) {
	s.sendJSON(w, map[string]string{"error": msg}, status)
}

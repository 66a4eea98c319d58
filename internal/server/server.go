package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"dashmirror/internal/catalog"
	"dashmirror/internal/dashboard"
	"dashmirror/internal/events"
	"dashmirror/internal/health"
	"dashmirror/internal/history"
	"dashmirror/internal/metrics"
	"dashmirror/internal/models"
	"dashmirror/internal/reconcile"
	"dashmirror/internal/secrets"
	"dashmirror/internal/syncer"
	"dashmirror/internal/trust"
)

const maxRequestBytes = 1 << 20

// Server wraps HTTP serving of the catalog and monitoring API.
type Server struct {
	httpServer   *http.Server
	store        *catalog.Store
	syncer       *syncer.Service
	engine       *health.Engine
	secretStore  *secrets.Store
	registry     *trust.Registry
	bus          *events.Bus
	historyLimit int
}

// New creates a configured HTTP server for the mirror daemon.
func New(addr string, store *catalog.Store, sync *syncer.Service, engine *health.Engine, secretStore *secrets.Store, registry *trust.Registry, bus *events.Bus) *Server {
	mux := http.NewServeMux()
	s := &Server{
		httpServer:   &http.Server{Addr: addr, Handler: mux},
		store:        store,
		syncer:       sync,
		engine:       engine,
		secretStore:  secretStore,
		registry:     registry,
		bus:          bus,
		historyLimit: 120,
	}
	s.registerRoutes(mux)
	return s
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/services", s.handleListServices)
	mux.HandleFunc("POST /api/services", s.handleCreateService)
	mux.HandleFunc("PUT /api/services/{id}", s.handleUpdateService)
	mux.HandleFunc("DELETE /api/services/{id}", s.handleDeleteService)
	mux.HandleFunc("POST /api/services/{id}/check", s.handleCheckService)

	mux.HandleFunc("GET /api/bookmarks", s.handleListBookmarks)
	mux.HandleFunc("POST /api/bookmarks", s.handleCreateBookmark)
	mux.HandleFunc("PUT /api/bookmarks/{id}", s.handleUpdateBookmark)
	mux.HandleFunc("DELETE /api/bookmarks/{id}", s.handleDeleteBookmark)

	mux.HandleFunc("GET /api/connections", s.handleListConnections)
	mux.HandleFunc("POST /api/connections", s.handleCreateConnection)
	mux.HandleFunc("PUT /api/connections/{id}", s.handleUpdateConnection)
	mux.HandleFunc("DELETE /api/connections/{id}", s.handleDeleteConnection)
	mux.HandleFunc("POST /api/connections/{id}/sync", s.handleSyncConnection)
	mux.HandleFunc("POST /api/sync", s.handleSyncAll)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("PUT /api/categories/{category}", s.handleSetCategory)
	mux.HandleFunc("DELETE /api/categories/{category}", s.handleDeleteCategory)

	mux.HandleFunc("GET /api/trust", s.handleListTrust)
	mux.HandleFunc("POST /api/trust", s.handleAddTrust)
	mux.HandleFunc("DELETE /api/trust/{host}", s.handleRemoveTrust)

	mux.HandleFunc("GET /api/health", s.handleHealthLatest)
	mux.HandleFunc("GET /api/health/history", s.handleHealthHistory)
	mux.HandleFunc("POST /api/health/check", s.handleHealthCheck)
	mux.HandleFunc("GET /api/uptime", s.handleUptime)
	mux.HandleFunc("GET /api/timeline", s.handleTimeline)

	mux.HandleFunc("GET /api/events/ws", s.handleEventsWS)
}

func (s *Server) handleHealthLatest(w http.ResponseWriter, _ *http.Request) {
	cycle, ok := s.engine.Latest()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"started_at": nil,
			"samples":    []models.HealthSample{},
		})
		return
	}
	writeJSON(w, http.StatusOK, cycle)
}

func (s *Server) handleHealthHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, s.historyLimit)
	cycles := s.engine.History()
	if len(cycles) > limit {
		cycles = cycles[len(cycles)-limit:]
	}
	writeJSON(w, http.StatusOK, cycles)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	s.engine.CheckAll(r.Context())
	cycle, _ := s.engine.Latest()
	writeJSON(w, http.StatusOK, cycle)
}

func (s *Server) handleUptime(w http.ResponseWriter, _ *http.Request) {
	summary := metrics.ComputeServiceUptime(s.engine.History())
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	hours := parseQueryInt(r, "hours", 24, 24*30)
	points := parseQueryInt(r, "points", 48, 360)
	end := time.Now().UTC()
	start := end.Add(-time.Duration(hours) * time.Hour)
	timelines := history.BuildServiceTimelines(s.engine.History(), start, end, points)
	writeJSON(w, http.StatusOK, map[string]any{
		"range_start": start,
		"range_end":   end,
		"services":    timelines,
	})
}

func (s *Server) handleSyncConnection(w http.ResponseWriter, r *http.Request) {
	delta, err := s.syncer.SyncNow(r.Context(), r.PathValue("id"))
	if err != nil {
		if catalog.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "connection not found")
			return
		}
		status := http.StatusBadGateway
		if dashboard.IsAuthError(err) {
			status = http.StatusUnauthorized
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, delta)
}

type syncResult struct {
	ConnectionID string           `json:"connection_id"`
	Delta        *reconcile.Delta `json:"delta,omitempty"`
	Error        string           `json:"error,omitempty"`
}

func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	connections, err := s.store.ListConnections(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	results := make([]syncResult, 0, len(connections))
	for _, conn := range connections {
		if !conn.SyncEnabled {
			continue
		}
		res := syncResult{ConnectionID: conn.ID}
		delta, err := s.syncer.SyncConnection(r.Context(), conn)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Delta = &delta
		}
		results = append(results, res)
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleListTrust(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"hosts": s.registry.Hosts()})
}

func (s *Server) handleAddTrust(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Host string `json:"host"`
	}
	if err := decodeInto(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Host == "" {
		writeError(w, http.StatusBadRequest, "host is required")
		return
	}
	s.registry.Trust(payload.Host)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveTrust(w http.ResponseWriter, r *http.Request) {
	s.registry.Untrust(r.PathValue("host"))
	w.WriteHeader(http.StatusNoContent)
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > fallback {
		return fallback
	}
	return value
}

func parseQueryInt(r *http.Request, key string, fallback, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func decodeInto(r *http.Request, target any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return errors.New("invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

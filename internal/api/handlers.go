// Package api provides the Fleetwatch HTTP and websocket surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"fleetwatch/internal/alerting"
	"fleetwatch/internal/cache"
	"fleetwatch/internal/model"
	"fleetwatch/internal/notify"
	"fleetwatch/internal/store"
)

// Server is the Fleetwatch HTTP server.
type Server struct {
	store  *store.Store
	cache  cache.Cache
	alerts *alerting.Manager
	hub    *notify.Hub
	mux    *http.ServeMux
	server *http.Server
}

// NewServer creates the HTTP server. hub may be nil when no websocket
// surface is wanted.
func NewServer(addr string, s *store.Store, c cache.Cache, a *alerting.Manager, hub *notify.Hub) *Server {
	srv := &Server{
		store:  s,
		cache:  c,
		alerts: a,
		hub:    hub,
		mux:    http.NewServeMux(),
	}

	srv.registerRoutes()

	srv.server = &http.Server{
		Addr:         addr,
		Handler:      SecurityHeadersMiddleware(RecoveryMiddleware(LoggingMiddleware(srv.mux))),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return srv
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	slog.Info("HTTP server starting", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Handler exposes the middleware-wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/servers", s.handleServers)
	s.mux.HandleFunc("GET /api/servers/{id}/latest", s.handleLatestMetrics)

	s.mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	s.mux.HandleFunc("POST /api/alerts/{id}/acknowledge", s.handleAcknowledgeAlert)
	s.mux.HandleFunc("POST /api/alerts/{id}/resolve", s.handleResolveAlert)
	s.mux.HandleFunc("POST /api/alerts/archive", s.handleArchiveAlerts)

	if s.hub != nil {
		s.mux.HandleFunc("GET /ws", s.hub.ServeWS)
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

// writeJSON marshals v to JSON into a buffer first, then writes it to the
// response. This ensures marshalling errors can be returned as a proper 500.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("encoding JSON response", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Debug("writing JSON response", "path", r.URL.Path, "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, r, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, alerting.ErrInvalidTransition):
		writeJSON(w, r, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, r, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.store.ActiveServers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if servers == nil {
		servers = []model.Server{}
	}
	writeJSON(w, r, http.StatusOK, servers)
}

// handleLatestMetrics serves a server's most recent snapshot, from the cache
// when it is fresh and from the store otherwise.
func (s *Server) handleLatestMetrics(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, r, http.StatusBadRequest, map[string]string{"error": "invalid server id"})
		return
	}

	var latest model.LatestMetrics
	if s.cache != nil {
		if err := s.cache.Get(r.Context(), cache.LatestKey(id), &latest); err == nil {
			writeJSON(w, r, http.StatusOK, latest)
			return
		} else if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("cache read failed", "server_id", id, "error", err)
		}
	}

	srv, err := s.store.Server(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.store.LatestMetricSnapshot(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, model.LatestMetrics{
		MetricSnapshot: snap,
		Status:         srv.Status.String(),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	var filter store.AlertFilter

	if v := r.URL.Query().Get("server_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeJSON(w, r, http.StatusBadRequest, map[string]string{"error": "invalid server_id"})
			return
		}
		filter.ServerID = &id
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status, ok := parseAlertStatus(v)
		if !ok {
			writeJSON(w, r, http.StatusBadRequest, map[string]string{"error": "invalid status"})
			return
		}
		filter.Status = &status
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeJSON(w, r, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	alerts, err := s.store.Alerts(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []model.Alert{}
	}
	writeJSON(w, r, http.StatusOK, alerts)
}

func parseAlertStatus(v string) (model.AlertStatus, bool) {
	switch v {
	case "active":
		return model.AlertActive, true
	case "acknowledged":
		return model.AlertAcknowledged, true
	case "resolved":
		return model.AlertResolved, true
	case "expired":
		return model.AlertExpired, true
	}
	return 0, false
}

type lifecycleRequest struct {
	By         string `json:"by"`
	Resolution string `json:"resolution"`
}

func decodeLifecycleRequest(r *http.Request) lifecycleRequest {
	req := lifecycleRequest{By: "api"}
	// Body is optional; a bare POST uses the defaults.
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.By == "" {
		req.By = "api"
	}
	return req
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, r, http.StatusBadRequest, map[string]string{"error": "invalid alert id"})
		return
	}
	req := decodeLifecycleRequest(r)

	alert, err := s.alerts.Acknowledge(r.Context(), id, req.By)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, alert)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSON(w, r, http.StatusBadRequest, map[string]string{"error": "invalid alert id"})
		return
	}
	req := decodeLifecycleRequest(r)

	alert, err := s.alerts.Resolve(r.Context(), id, req.By, req.Resolution)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, alert)
}

func (s *Server) handleArchiveAlerts(w http.ResponseWriter, r *http.Request) {
	n, err := s.alerts.ArchiveResolved(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int64{"archived": n})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.CountServers(r.Context()); err != nil {
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

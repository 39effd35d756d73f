// Package api exposes the dashboard HTTP surface: current zone state,
// episode history and aggregate statistics. All endpoints are read-only;
// mutation happens only through the tick pipeline.
package api

import (
	"encoding/json"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/example/hearthwatch/internal/ports/primary"
)

// Server bundles the HTTP handlers over the primary ports.
type Server struct {
	monitor   primary.MonitorService
	forensics primary.ForensicsService
	logger    *zap.Logger
}

// NewServer creates the API server.
func NewServer(monitor primary.MonitorService, forensics primary.ForensicsService, logger *zap.Logger) *Server {
	return &Server{
		monitor:   monitor,
		forensics: forensics,
		logger:    logger,
	}
}

// Router builds the route table with recovery and CORS middleware.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/zones", s.handleZones).Methods(http.MethodGet)
	api.HandleFunc("/zones/{id}/history", s.handleZoneHistory).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	return handlers.RecoveryHandler()(
		handlers.LoggingHandler(os.Stdout,
			handlers.CORS(handlers.AllowedMethods([]string{http.MethodGet}))(r)))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth reports poll-loop health. Degraded polling returns 503 so a
// liveness probe notices a silent monitor, not just a dead process.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.monitor.Health()
	status := http.StatusOK
	if health.ConsecutiveErrors >= 3 {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

type statusResponse struct {
	Health primary.HealthStatus `json:"health"`
	Zones  []primary.ZoneStatus `json:"zones"`
	Time   time.Time            `json:"time"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	zones := s.monitor.CurrentZones()
	sort.Slice(zones, func(i, j int) bool { return zones[i].ZoneID < zones[j].ZoneID })
	s.writeJSON(w, http.StatusOK, statusResponse{
		Health: s.monitor.Health(),
		Zones:  zones,
		Time:   time.Now().UTC(),
	})
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	zones := s.monitor.CurrentZones()
	sort.Slice(zones, func(i, j int) bool { return zones[i].ZoneID < zones[j].ZoneID })
	s.writeJSON(w, http.StatusOK, zones)
}

func (s *Server) handleZoneHistory(w http.ResponseWriter, r *http.Request) {
	zoneID := mux.Vars(r)["id"]
	hours := intQuery(r, "hours", 24)
	if hours <= 0 {
		s.writeError(w, http.StatusBadRequest, "hours out of range")
		return
	}

	// no upper bound: a window past retention comes back flagged incomplete
	resp, err := s.forensics.History(r.Context(), zoneID, hours)
	if err != nil {
		s.logger.Error("history query failed", zap.String("zone", zoneID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	req := primary.EventsRequest{
		ZoneID:         r.URL.Query().Get("zone"),
		Cause:          r.URL.Query().Get("cause"),
		Days:           intQuery(r, "days", 30),
		SuspiciousOnly: r.URL.Query().Get("suspicious") == "true",
		Limit:          intQuery(r, "limit", 100),
	}
	if req.Days <= 0 {
		s.writeError(w, http.StatusBadRequest, "days out of range")
		return
	}

	resp, err := s.forensics.Events(r.Context(), req)
	if err != nil {
		s.logger.Error("events query failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "events query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	days := intQuery(r, "days", 30)
	if days <= 0 {
		s.writeError(w, http.StatusBadRequest, "days out of range")
		return
	}

	summary, err := s.forensics.Summary(r.Context(), days)
	if err != nil {
		s.logger.Error("stats query failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func intQuery(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}

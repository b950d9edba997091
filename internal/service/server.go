package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/saasguard/o365-monitor/internal/database"
	"github.com/saasguard/o365-monitor/pkg/logger"
	"github.com/saasguard/o365-monitor/pkg/monitor"
)

// Server exposes the monitor's HTTP surface: health probes, sweep status
// and the synchronous deletion endpoint.
type Server struct {
	conn       *database.Connection
	sweep      *monitor.Sweep
	propagator *monitor.Propagator
	workspaces *database.WorkspaceStore
	log        *logger.Logger

	mu        sync.RWMutex
	lastSweep map[uuid.UUID]sweepStatus
}

type sweepStatus struct {
	CompletedAt     time.Time `json:"completed_at"`
	UsersProcessed  int       `json:"users_processed"`
	UsersFailed     int       `json:"users_failed"`
	EventsPublished int       `json:"events_published"`
	EventsSkipped   int       `json:"events_skipped"`
	Error           string    `json:"error,omitempty"`
}

// NewServer creates the HTTP server over the wired monitor components
func NewServer(conn *database.Connection, sweep *monitor.Sweep, propagator *monitor.Propagator, workspaces *database.WorkspaceStore, log *logger.Logger) *Server {
	return &Server{
		conn:       conn,
		sweep:      sweep,
		propagator: propagator,
		workspaces: workspaces,
		log:        log,
		lastSweep:  make(map[uuid.UUID]sweepStatus),
	}
}

// Router builds the HTTP route table
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/readyz", s.handleReady).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/workspaces/{workspace_id}/sweep", s.handleSweep).Methods("POST")
	api.HandleFunc("/workspaces/{workspace_id}/drive-snapshot", s.handleDriveSnapshot).Methods("GET")
	api.HandleFunc("/workspaces/{workspace_id}/site-snapshot", s.handleSiteSnapshot).Methods("GET")
	api.HandleFunc("/workspaces/{workspace_id}/files/{file_id}", s.handleDeleteFile).Methods("DELETE")
	return r
}

// RecordSweep stores the outcome of a scheduled sweep for the status endpoint
func (s *Server) RecordSweep(workspaceID uuid.UUID, result *monitor.SweepResult, err error) {
	status := sweepStatus{CompletedAt: time.Now().UTC()}
	if err != nil {
		status.Error = err.Error()
	}
	if result != nil {
		status.UsersProcessed = result.UsersProcessed
		status.UsersFailed = result.UsersFailed
		status.EventsPublished = result.EventsPublished
		status.EventsSkipped = result.EventsSkipped
	}

	s.mu.Lock()
	s.lastSweep[workspaceID] = status
	s.mu.Unlock()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.conn.Ping(ctx); err != nil {
		s.log.WithError(err).Error("readiness probe failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  "database unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	statuses := make(map[string]sweepStatus, len(s.lastSweep))
	for id, status := range s.lastSweep {
		statuses[id.String()] = status
	}
	s.mu.RUnlock()

	body := map[string]interface{}{
		"workspaces": statuses,
	}
	if ids, err := s.workspaces.ListActiveIDs(r.Context()); err != nil {
		s.log.WithError(err).Warn("listing workspaces for status failed")
	} else {
		body["active_workspaces"] = len(ids)
	}

	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := parseWorkspaceID(w, r)
	if !ok {
		return
	}

	result, err := s.sweep.Run(r.Context(), workspaceID)
	s.RecordSweep(workspaceID, result, err)
	if err != nil {
		s.log.WithError(err).Error("manual sweep failed for workspace %s", workspaceID)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users_processed":  result.UsersProcessed,
		"users_failed":     result.UsersFailed,
		"events_published": result.EventsPublished,
		"events_skipped":   result.EventsSkipped,
	})
}

func (s *Server) handleDriveSnapshot(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := parseWorkspaceID(w, r)
	if !ok {
		return
	}

	items, err := s.sweep.ListDriveSnapshot(r.Context(), workspaceID)
	if err != nil {
		s.log.WithError(err).Error("drive snapshot failed for workspace %s", workspaceID)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(items),
		"items": items,
	})
}

func (s *Server) handleSiteSnapshot(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := parseWorkspaceID(w, r)
	if !ok {
		return
	}

	items, err := s.sweep.ListSiteSnapshot(r.Context(), workspaceID)
	if err != nil {
		s.log.WithError(err).Error("site snapshot failed for workspace %s", workspaceID)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(items),
		"items": items,
	})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	workspaceID, ok := parseWorkspaceID(w, r)
	if !ok {
		return
	}
	fileID := mux.Vars(r)["file_id"]
	if fileID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file_id is required"})
		return
	}

	if deleted := s.propagator.PropagateDelete(r.Context(), workspaceID, fileID); !deleted {
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{"deleted": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": true})
}

func parseWorkspaceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["workspace_id"])
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid workspace id"})
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

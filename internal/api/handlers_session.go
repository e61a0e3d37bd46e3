package api

import (
	"net/http"

	apperrors "github.com/uptime-rewards/internal/errors"
	"github.com/uptime-rewards/internal/session"
	"github.com/uptime-rewards/internal/types"
)

// openSession returns the caller's controller, loading it on first use.
func (s *Server) openSession(w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	ctrl, err := s.services.Sessions.Open(r.Context(), walletFrom(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return nil, false
	}
	return ctrl, true
}

// handleGetSession handles GET /api/session. Each poll runs a heartbeat so
// the returned counters are current.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.openSession(w, r)
	if !ok {
		return
	}
	ctrl.Tick(r.Context())
	respondJSON(w, http.StatusOK, ctrl.Snapshot())
}

// handleStartSession handles POST /api/session/start
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.openSession(w, r)
	if !ok {
		return
	}
	if err := ctrl.Start(r.Context()); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ctrl.Snapshot())
}

// handleStopSession handles POST /api/session/stop
func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.openSession(w, r)
	if !ok {
		return
	}
	if err := ctrl.Stop(r.Context()); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ctrl.Snapshot())
}

// handleVisibility handles POST /api/session/visibility
func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visibility types.Visibility `json:"visibility"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if req.Visibility != types.VisibilityVisible && req.Visibility != types.VisibilityHidden {
		respondServiceError(w, r, apperrors.NewInvalidParameterError("visibility", "must be visible or hidden"))
		return
	}

	ctrl, ok := s.openSession(w, r)
	if !ok {
		return
	}
	ctrl.SetVisibility(r.Context(), req.Visibility)
	respondJSON(w, http.StatusOK, ctrl.Snapshot())
}

// handleUnload handles POST /api/session/unload: the client is going away,
// so the controller is flushed and disposed. A running session stays
// running in the store and is replayed on the next load.
func (s *Server) handleUnload(w http.ResponseWriter, r *http.Request) {
	s.services.Sessions.Close(r.Context(), walletFrom(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

package api

import (
	"net/http"

	"github.com/uptime-rewards/internal/profile"
)

// handleGetProfile handles GET /api/profile
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	view, err := s.services.Profile.Get(r.Context(), walletFrom(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// handleUpdateProfile handles PATCH /api/profile
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profile.Update
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	view, err := s.services.Profile.Update(r.Context(), walletFrom(r.Context()), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

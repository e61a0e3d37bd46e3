package api

import (
	"net/http"

	"github.com/uptime-rewards/internal/admin"
	apperrors "github.com/uptime-rewards/internal/errors"
)

// handleAdminMe handles GET /api/admin/me
func (s *Server) handleAdminMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"wallet": claims.Wallet,
		"role":   claims.Role,
	})
}

// handleListUsers handles GET /api/admin/users
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := s.services.Admin.ListUsers(r.Context(), admin.FilterFromQuery(r.URL.Query()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// handleAdminAction handles PATCH /api/admin/users
func (s *Server) handleAdminAction(w http.ResponseWriter, r *http.Request) {
	var req admin.ActionRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if err := s.services.Admin.ApplyAction(r.Context(), walletFrom(r.Context()), req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"wallet": req.Wallet,
		"action": req.Action,
	})
}

// handleAdminReferrals handles GET /api/admin/referrals?wallet=
func (s *Server) handleAdminReferrals(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		respondServiceError(w, r, apperrors.NewInvalidParameterError("wallet", "required"))
		return
	}
	items, err := s.services.Admin.ListReferrals(r.Context(), wallet)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":    wallet,
		"referrals": items,
	})
}

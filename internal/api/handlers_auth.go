package api

import (
	"net/http"

	"github.com/uptime-rewards/internal/auth"
	apperrors "github.com/uptime-rewards/internal/errors"
)

type nonceRequest struct {
	Wallet string `json:"wallet"`
	Admin  bool   `json:"admin,omitempty"`
}

type loginRequest struct {
	auth.LoginRequest
	Admin bool `json:"admin,omitempty"`
}

// handleNonce handles POST /api/auth/nonce
func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	var req nonceRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if req.Wallet == "" {
		respondServiceError(w, r, apperrors.NewInvalidParameterError("wallet", "required"))
		return
	}

	issue := s.services.Auth.IssueNonce
	if req.Admin {
		issue = s.services.Auth.IssueAdminNonce
	}
	challenge, err := issue(r.Context(), req.Wallet)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, challenge)
}

// handleLogin handles POST /api/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}
	if req.Wallet == "" || req.Signature == "" {
		respondServiceError(w, r, apperrors.NewInvalidParameterError("signature", "wallet and signature are required"))
		return
	}

	var (
		result *auth.LoginResult
		err    error
	)
	if req.Admin {
		result, err = s.services.Auth.AdminLogin(r.Context(), req.Wallet, req.Signature)
	} else {
		result, err = s.services.Auth.Login(r.Context(), req.LoginRequest)
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	respondJSON(w, status, result)
}

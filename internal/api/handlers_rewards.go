package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/uptime-rewards/internal/models"
	"github.com/uptime-rewards/internal/rewards"
)

// RewardsView is the caller's points and claim state.
type RewardsView struct {
	TotalPoints    int64                  `json:"totalPoints"`
	DailyPoints    int64                  `json:"dailyPoints"`
	TierPoints     int64                  `json:"tierPoints"`
	ReferralPoints int64                  `json:"referralPoints"`
	TaskPoints     int64                  `json:"taskPoints"`
	Tier           rewards.TierProgress   `json:"tier"`
	Referral       rewards.ReferralStatus `json:"referral"`
}

// liveTotal returns the hosted controller's total when it is ahead of the
// stored one.
func (s *Server) liveTotal(wallet string, stored int64) (int64, int64, bool) {
	ctrl, ok := s.services.Sessions.Get(wallet)
	if !ok {
		return stored, 0, false
	}
	snap := ctrl.Snapshot()
	if snap.TotalPoints > stored {
		return snap.TotalPoints, snap.DailyPoints, true
	}
	return stored, snap.DailyPoints, true
}

// handleGetRewards handles GET /api/rewards
func (s *Server) handleGetRewards(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wallet := walletFrom(ctx)

	acct, err := s.services.Accounts.Get(ctx, wallet)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	referral, err := s.services.Referrals.Status(ctx, wallet)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	total, daily, live := s.liveTotal(wallet, acct.TotalPoints)
	if !live {
		daily = acct.DailyPoints
	}
	respondJSON(w, http.StatusOK, RewardsView{
		TotalPoints:    total,
		DailyPoints:    daily,
		TierPoints:     acct.TierPoints,
		ReferralPoints: acct.ReferralPoints,
		TaskPoints:     acct.TaskPoints,
		Tier:           rewards.TierLadder.Progress(total, acct.TierLevelClaimed, acct.TierPoints),
		Referral:       referral,
	})
}

// handleSyncTiers handles POST /api/rewards/tiers/sync. Tier rewards are
// also awarded automatically; this lets a client force the check.
func (s *Server) handleSyncTiers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wallet := walletFrom(ctx)

	var observed int64
	if ctrl, ok := s.services.Sessions.Get(wallet); ok {
		observed = ctrl.Snapshot().TotalPoints
	}
	grant, err := s.services.Tiers.Award(ctx, wallet, observed)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, grant)
}

// handleClaimReferrals handles POST /api/rewards/referrals/claim
func (s *Server) handleClaimReferrals(w http.ResponseWriter, r *http.Request) {
	grant, err := s.services.Referrals.Claim(r.Context(), walletFrom(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, grant)
}

// handleGetReferrals handles GET /api/referrals
func (s *Server) handleGetReferrals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := s.services.Referrals.Status(ctx, walletFrom(ctx))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	referred := []models.ReferredAccount{}
	if status.Code != "" {
		_, referred, err = s.services.Referrals.Stats(ctx, status.Code)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"referrals": referred,
	})
}

// handleReferralCode handles POST /api/referrals/code
func (s *Server) handleReferralCode(w http.ResponseWriter, r *http.Request) {
	code, err := s.services.Accounts.EnsureReferralCode(r.Context(), walletFrom(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"code": code})
}

// handleListTasks handles GET /api/tasks
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.services.Tasks.List(r.Context(), walletFrom(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

// handleCompleteTask handles POST /api/tasks/{id}/complete
func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	result, err := s.services.Tasks.Complete(r.Context(), walletFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

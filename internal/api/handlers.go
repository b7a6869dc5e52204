package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/letsbehealthy/stepcoin/internal/app/anomaly"
	"github.com/letsbehealthy/stepcoin/internal/domain"
)

// ─── Auth Handlers ──────────────────────────────────────────────────────────

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email     string `json:"email"`
		Username  string `json:"username"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Password  string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := s.auth.Signup(r.Context(), req.Email, req.Username, req.FirstName, req.LastName, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.auth.Verify(r.Context(), req.Token); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Current string `json:"current_password"`
		New     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.auth.ChangePassword(r.Context(), sessionUser(r), req.Current, req.New); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.DeleteAccount(r.Context(), sessionUser(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "account deleted"})
}

// ─── Profile Handlers ───────────────────────────────────────────────────────

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.auth.Profile(r.Context(), sessionUser(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		DailyGoal int64  `json:"daily_goal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.auth.UpdateProfile(r.Context(), sessionUser(r), req.FirstName, req.LastName, req.DailyGoal); err != nil {
		writeDomainError(w, err)
		return
	}
	p, err := s.auth.Profile(r.Context(), sessionUser(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ─── Step Handlers ──────────────────────────────────────────────────────────

func (s *Server) handleStepObservation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CumulativeSteps int64 `json:"cumulative_steps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	userID := sessionUser(r)

	// Screen the delta before crediting; a flag never blocks accrual.
	var flagged bool
	if s.detector != nil {
		if state, err := s.ledger.State(r.Context(), userID); err == nil {
			if delta := req.CumulativeSteps - state.LastObservedSteps; delta > 0 {
				result := s.detector.Analyze(anomaly.Observation{
					UserID:    userID,
					Delta:     delta,
					Timestamp: time.Now(),
				})
				flagged = result.Flagged
			}
		}
	}

	res, err := s.ledger.RecordStepObservation(r.Context(), userID, req.CumulativeSteps)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Keep today's step count current for profile and friend views. A failed
	// write is non-fatal; the next observation refreshes it.
	_ = s.auth.RecordDailySteps(r.Context(), userID, req.CumulativeSteps)

	if s.hub != nil && res.Earned > 0 {
		s.hub.Broadcast(LedgerEvent{
			Type:      "coins_earned",
			UserID:    userID,
			Amount:    res.Earned,
			Source:    string(domain.SourceWalking),
			Timestamp: nowUnix(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"earned":          res.Earned,
		"walking_balance": res.NewWalkingBalance,
		"flagged":         flagged,
	})
}

func (s *Server) handleResetBaseline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CumulativeSteps int64 `json:"cumulative_steps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.ledger.ResetBaseline(r.Context(), sessionUser(r), req.CumulativeSteps); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "baseline reset"})
}

// ─── Meditation Handlers ────────────────────────────────────────────────────

func (s *Server) handleBonusClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	userID := sessionUser(r)
	res, err := s.ledger.ClaimDailyBonus(r.Context(), userID, req.Minutes)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if s.hub != nil {
		s.hub.Broadcast(LedgerEvent{
			Type:      "bonus_claimed",
			UserID:    userID,
			Amount:    res.Earned,
			Source:    string(domain.SourceMeditation),
			Timestamp: nowUnix(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"earned":             res.Earned,
		"meditation_balance": res.NewBonusBalance,
	})
}

// ─── Reward Handlers ────────────────────────────────────────────────────────

func (s *Server) handleListRewards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": s.catalog.ListItems(),
	})
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Item string `json:"item"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := s.ledger.Redeem(r.Context(), sessionUser(r), req.Item)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"remaining_balance": res.RemainingBalance,
		"receipt_issued":    res.ReceiptIssued,
	})
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.ledger.Receipts(r.Context(), sessionUser(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if receipts == nil {
		receipts = []domain.RedemptionReceipt{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"receipts": receipts,
	})
}

// ─── Ledger Handlers ────────────────────────────────────────────────────────

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	state, err := s.ledger.State(r.Context(), sessionUser(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"walking_balance":      state.WalkingBalance,
		"meditation_balance":   state.MeditationBalance,
		"combined_balance":     state.CombinedBalance(),
		"total_lifetime_steps": state.TotalLifetimeSteps,
		"display":              domain.FormatCoins(state.CombinedBalance()),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	reversed := r.URL.Query().Get("reversed") == "true"
	entries, err := s.ledger.History(r.Context(), sessionUser(r), reversed)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
	})
}

// ─── Social Handlers ────────────────────────────────────────────────────────

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	results, err := s.social.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if results == nil {
		results = []domain.Friend{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": results,
	})
}

func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := s.social.Friends(r.Context(), sessionUser(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if friends == nil {
		friends = []domain.Friend{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"friends": friends,
	})
}

func (s *Server) handlePendingRequests(w http.ResponseWriter, r *http.Request) {
	pending, err := s.social.Pending(r.Context(), sessionUser(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if pending == nil {
		pending = []domain.FriendRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": pending,
	})
}

func (s *Server) handleSendRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ToUserID string `json:"to_user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	created, err := s.social.SendRequest(r.Context(), sessionUser(r), req.ToUserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	s.respondToRequest(w, r, true)
}

func (s *Server) handleDeclineRequest(w http.ResponseWriter, r *http.Request) {
	s.respondToRequest(w, r, false)
}

func (s *Server) respondToRequest(w http.ResponseWriter, r *http.Request, accept bool) {
	id := chi.URLParam(r, "id")
	if err := s.social.Respond(r.Context(), sessionUser(r), id, accept); err != nil {
		writeDomainError(w, err)
		return
	}
	status := "declined"
	if accept {
		status = "accepted"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

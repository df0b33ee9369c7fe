package api

import (
	"net/http"
	"strconv"
)

// ─── Credit API ─────────────────────────────────────────────────────────────
//
// GET /api/credits/balance         — the caller's current balance
// GET /api/credits/history?limit=  — the caller's ledger, newest first

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// handleBalance returns the caller's time-credit balance.
// GET /api/credits/balance
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.credits.Balance(r.Context(), userID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":      userID(r),
		"time_credits": balance,
	})
}

// handleHistory returns the caller's ledger rows, newest first.
// GET /api/credits/history?limit=20
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n > maxHistoryLimit {
			n = maxHistoryLimit
		}
		limit = n
	}

	history, err := s.credits.History(r.Context(), userID(r), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": history,
	})
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/skillforge-network/skillforge/internal/app/exchange"
	"github.com/skillforge-network/skillforge/internal/domain"
)

// ─── Exchange API ───────────────────────────────────────────────────────────
// REST endpoints for the exchange lifecycle. The caller is always identified
// by X-User-ID; the service layer decides what that user may do.
//
// POST  /api/exchanges               — request a new exchange (caller = learner)
// GET   /api/exchanges?status=       — list the caller's exchanges
// GET   /api/exchanges/{id}          — fetch one exchange (parties only)
// PATCH /api/exchanges/{id}          — reschedule / edit details
// POST  /api/exchanges/{id}/accept   — offerer accepts
// POST  /api/exchanges/{id}/reject   — offerer rejects
// POST  /api/exchanges/{id}/cancel   — either party cancels
// POST  /api/exchanges/{id}/complete — settle and pay the offerer
// POST  /api/exchanges/{id}/no-show  — record a no-show, no payment

// exchangeResponse decorates an exchange with what the caller may still do
// with it.
type exchangeResponse struct {
	*domain.Exchange
	CanModify bool `json:"can_modify"`
}

func (s *Server) exchangeJSON(ex *domain.Exchange, callerID int64) exchangeResponse {
	return exchangeResponse{Exchange: ex, CanModify: s.exchanges.CanUserModify(ex, callerID)}
}

// HandleCreateExchange creates a Pending exchange with the caller as learner.
// POST /api/exchanges
func (s *Server) handleCreateExchange(w http.ResponseWriter, r *http.Request) {
	var req exchange.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ex, err := s.exchanges.Create(r.Context(), userID(r), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.exchangeJSON(ex, userID(r)))
}

// handleListExchanges lists the caller's exchanges, optionally filtered.
// GET /api/exchanges?status=Pending
func (s *Server) handleListExchanges(w http.ResponseWriter, r *http.Request) {
	var status *domain.ExchangeStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := domain.ExchangeStatus(raw)
		if !st.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status "+raw)
			return
		}
		status = &st
	}

	list, err := s.exchanges.List(r.Context(), userID(r), status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := make([]exchangeResponse, 0, len(list))
	for _, ex := range list {
		resp = append(resp, s.exchangeJSON(ex, userID(r)))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"exchanges": resp})
}

// handleGetExchange fetches one exchange for one of its parties.
// GET /api/exchanges/{id}
func (s *Server) handleGetExchange(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ex, err := s.exchanges.Get(r.Context(), id, userID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.exchangeJSON(ex, userID(r)))
}

// handleUpdateExchange edits scheduling fields.
// PATCH /api/exchanges/{id}
func (s *Server) handleUpdateExchange(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req exchange.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ex, err := s.exchanges.Update(r.Context(), id, userID(r), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.exchangeJSON(ex, userID(r)))
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.exchanges.Accept)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.exchanges.Reject)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.exchanges.Cancel)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.exchanges.Complete)
}

func (s *Server) handleNoShow(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.exchanges.MarkNoShow)
}

// transition is the shared handler for the five status-change endpoints.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, exchangeID, actorID int64) (*domain.Exchange, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ex, err := fn(r.Context(), id, userID(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.exchangeJSON(ex, userID(r)))
}

// pathID parses the {id} route parameter.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid exchange id")
		return 0, false
	}
	return id, true
}

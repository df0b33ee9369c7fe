// Package api provides the HTTP server for SkillForge. It exposes the
// exchange lifecycle and credit endpoints as JSON over REST, a WebSocket
// feed for live notifications, and the health/metrics endpoints.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skillforge-network/skillforge/internal/app/credit"
	"github.com/skillforge-network/skillforge/internal/app/exchange"
	"github.com/skillforge-network/skillforge/internal/domain"
	"github.com/skillforge-network/skillforge/internal/infra/health"
	"github.com/skillforge-network/skillforge/internal/infra/notify"
)

// Server is the SkillForge HTTP API server.
type Server struct {
	exchanges      *exchange.Service
	credits        *credit.Engine
	sweeperHealth  *health.Tracker
	hub            *notify.Hub
	presence       domain.PresenceTracker
	metricsEnabled bool
}

// NewServer creates a new API server.
func NewServer(exchanges *exchange.Service, credits *credit.Engine) *Server {
	return &Server{exchanges: exchanges, credits: credits}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetSweeperHealth wires the sweeper liveness tracker into /health.
func (s *Server) SetSweeperHealth(t *health.Tracker) { s.sweeperHealth = t }

// SetHub wires the WebSocket notification hub and its presence tracker.
func (s *Server) SetHub(h *notify.Hub, p domain.PresenceTracker) {
	s.hub = h
	s.presence = p
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": "0.1.0",
		})
	})

	// Authenticated API
	r.Route("/api", func(r chi.Router) {
		r.Use(requireUser)

		r.Route("/exchanges", func(r chi.Router) {
			r.Post("/", s.handleCreateExchange)
			r.Get("/", s.handleListExchanges)
			r.Get("/{id}", s.handleGetExchange)
			r.Patch("/{id}", s.handleUpdateExchange)
			r.Post("/{id}/accept", s.handleAccept)
			r.Post("/{id}/reject", s.handleReject)
			r.Post("/{id}/cancel", s.handleCancel)
			r.Post("/{id}/complete", s.handleComplete)
			r.Post("/{id}/no-show", s.handleNoShow)
		})

		r.Route("/credits", func(r chi.Router) {
			r.Get("/balance", s.handleBalance)
			r.Get("/history", s.handleHistory)
		})

		r.Get("/presence/online", s.handleOnlineUsers)
	})

	// Live notification feed
	if s.hub != nil {
		r.With(requireUser).Get("/ws", func(w http.ResponseWriter, r *http.Request) {
			s.hub.HandleWS(w, r, userID(r))
		})
	}

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// handleHealth reports overall health. A stale or failing sweeper makes the
// whole node report 503 so orchestrators restart it.
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	code := http.StatusOK

	if s.sweeperHealth != nil {
		st := s.sweeperHealth.Check()
		resp["sweeper"] = map[string]interface{}{
			"healthy": st.Healthy,
			"detail":  st.Detail,
		}
		if !st.Healthy {
			resp["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, resp)
}

// handleOnlineUsers returns the ids of currently connected users.
// GET /api/presence/online
func (s *Server) handleOnlineUsers(w http.ResponseWriter, r *http.Request) {
	if s.presence == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"online": []int64{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"online": s.presence.OnlineUsers()})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// writeDomainError maps domain errors onto HTTP status codes. Illegal
// transitions are conflicts, an uncovered charge is payment-required, and
// validation failures are bad requests.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrExchangeNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrSkillNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrSelfTransfer),
		errors.Is(err, domain.ErrSelfExchange),
		errors.Is(err, domain.ErrOffererDoesNotOfferSkill),
		errors.Is(err, domain.ErrScheduledInPast),
		errors.Is(err, domain.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

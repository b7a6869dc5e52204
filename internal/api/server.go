// Package api provides the StepCoin HTTP server: account and session
// endpoints, ledger operations, the reward catalog, the friend graph, and
// a live SSE feed of ledger events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/letsbehealthy/stepcoin/internal/app/anomaly"
	"github.com/letsbehealthy/stepcoin/internal/app/auth"
	"github.com/letsbehealthy/stepcoin/internal/app/ledger"
	"github.com/letsbehealthy/stepcoin/internal/app/social"
	"github.com/letsbehealthy/stepcoin/internal/domain"
)

// Version is reported by /api/version.
const Version = "0.1.0"

// Server is the StepCoin HTTP API server.
type Server struct {
	ledger   *ledger.Service
	auth     *auth.Service
	social   *social.Service
	catalog  domain.RewardCatalog
	detector *anomaly.Detector

	hub            *LedgerHub
	metricsEnabled bool
}

// NewServer creates an API server over the application services.
func NewServer(ledgerSvc *ledger.Service, authSvc *auth.Service, socialSvc *social.Service, catalog domain.RewardCatalog) *Server {
	return &Server{
		ledger:  ledgerSvc,
		auth:    authSvc,
		social:  socialSvc,
		catalog: catalog,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetDetector attaches the step-delta anomaly screen.
func (s *Server) SetDetector(d *anomaly.Detector) { s.detector = d }

// SetHub sets the live ledger-event SSE hub.
func (s *Server) SetHub(h *LedgerHub) { s.hub = h }

// Hub returns the live event hub (for broadcasting from the daemon).
func (s *Server) Hub() *LedgerHub { return s.hub }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsMiddleware)

	// Health check for deploy platforms
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	})

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": Version,
		})
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", s.handleSignup)
		r.Post("/login", s.handleLogin)
		r.Post("/verify", s.handleVerify)
		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Post("/password", s.handleChangePassword)
			r.Delete("/account", s.handleDeleteAccount)
		})
	})

	// Catalog is public: the reward screen renders before login.
	r.Get("/api/rewards", s.handleListRewards)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Get("/api/profile", s.handleGetProfile)
		r.Put("/api/profile", s.handleUpdateProfile)

		r.Post("/api/steps/observations", s.handleStepObservation)
		r.Post("/api/steps/reset", s.handleResetBaseline)

		r.Post("/api/meditation/claims", s.handleBonusClaim)

		r.Post("/api/rewards/redemptions", s.handleRedeem)
		r.Get("/api/rewards/receipts", s.handleListReceipts)

		r.Get("/api/ledger/balance", s.handleBalance)
		r.Get("/api/ledger/history", s.handleHistory)

		r.Get("/api/users/search", s.handleSearchUsers)
		r.Route("/api/friends", func(r chi.Router) {
			r.Get("/", s.handleListFriends)
			r.Get("/requests", s.handlePendingRequests)
			r.Post("/requests", s.handleSendRequest)
			r.Post("/requests/{id}/accept", s.handleAcceptRequest)
			r.Post("/requests/{id}/decline", s.handleDeclineRequest)
		})
	})

	// Live ledger event SSE feed
	if s.hub != nil {
		r.Get("/api/ledger/live", s.hub.HandleSSE)
	}

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Session Middleware ─────────────────────────────────────────────────────

type ctxKey int

const userIDKey ctxKey = 0

// requireSession validates the Bearer token and stores the user ID on the
// request context.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, err := s.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid session")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

// sessionUser returns the authenticated user ID set by requireSession.
func sessionUser(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

// ─── Responses ──────────────────────────────────────────────────────────────

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

// writeDomainError maps domain sentinel errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrBadCredentials),
		errors.Is(err, domain.ErrNotVerified),
		errors.Is(err, domain.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrUnknownItem),
		errors.Is(err, domain.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyClaimedToday),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrEmailTaken),
		errors.Is(err, domain.ErrUsernameTaken),
		errors.Is(err, domain.ErrAlreadyFriends),
		errors.Is(err, domain.ErrSelfFriendship):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// corsMiddleware adds CORS headers for the mobile app's web build.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

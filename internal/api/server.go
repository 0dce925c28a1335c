// Package api provides the HTTP server for the Vibe gamification engine.
// Every learner route operates on the user's engine session, which is
// opened on first use and kept until DELETE /session or shutdown.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vibe-dev/academy/internal/app/engagement"
	"github.com/vibe-dev/academy/internal/domain"
	"github.com/vibe-dev/academy/internal/health"
	"github.com/vibe-dev/academy/internal/infra/logging"
)

// Server is the Vibe HTTP API server.
type Server struct {
	engine         *engagement.Engine
	health         *health.Checker
	log            *zap.Logger
	metricsEnabled bool
	corsOrigin     string
}

// NewServer creates a new API server. h may be nil.
func NewServer(e *engagement.Engine, h *health.Checker, log *zap.Logger) *Server {
	return &Server{engine: e, health: h, log: logging.OrNop(log), corsOrigin: "*"}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetCORSOrigins sets the allowed origins. Only the first entry is sent.
func (s *Server) SetCORSOrigins(origins []string) {
	if len(origins) > 0 {
		s.corsOrigin = origins[0]
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/catalog", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/levels", s.handleCatalogLevels)
		r.Get("/achievements", s.handleCatalogAchievements)
		r.Get("/challenges", s.handleCatalogChallenges)
	})

	r.Route("/api/gamification/users/{uid}", func(r chi.Router) {
		// The event stream is long-lived and must not sit behind Timeout.
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/", s.handleSnapshot)
			r.Delete("/session", s.handleCloseSession)
			r.Post("/login", s.handleLogin)
			r.Post("/xp", s.handleAwardXP)
			r.Post("/lessons", s.handleCompleteLesson)
			r.Post("/courses/{courseID}/complete", s.handleCompleteCourse)
			r.Post("/projects", s.handleUploadProject)
			r.Post("/projects/{projectID}/like", s.handleLikeProject)
			r.Get("/achievements", s.handleAchievements)
			r.Post("/achievements/check", s.handleCheckAchievements)
			r.Get("/challenges", s.handleChallenges)
			r.Post("/challenges/{challengeID}/complete", s.handleCompleteChallenge)
			r.Post("/sync", s.handleSync)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": s.health.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errorType(status),
		},
	})
}

// writeEngineError maps engine errors onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.log.Warn("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUnknownAchievement),
		errors.Is(err, domain.ErrUnknownChallenge):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrProfileNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func errorType(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return "invalid_request"
	case status == http.StatusNotFound:
		return "not_found"
	case status >= 500:
		return "server_error"
	}
	return "error"
}

// corsMiddleware adds CORS headers for browser clients.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

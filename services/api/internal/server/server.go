package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"studyhub/internal/ratelimit"
	"studyhub/internal/util"
	"studyhub/pkg/domain"
	"studyhub/services/api/internal/app"
	"studyhub/services/api/internal/quota"
	"studyhub/services/api/internal/security"
)

// multipartSlack covers multipart boundaries and headers around the file part.
const multipartSlack = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	Redis          *redis.Client
	TrustedProxies *util.TrustedProxies
	AllowedOrigins []string
	Alerter        *security.AuditAlerter // optional; without it security events are only logged
}

// Server exposes the study-hub HTTP API.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	api            *http.ServeMux
	trusted        *util.TrustedProxies
	allowedOrigins []string
	maxUploadBytes int64
	generalLimiter *ratelimit.FixedWindowLimiter
	uploadLimiter  *ratelimit.FixedWindowLimiter
	alerter        *security.AuditAlerter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app is required")
	}
	if cfg.Redis == nil {
		return nil, errors.New("redis client is required for rate limiting")
	}
	l := cfg.App.Limits()
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		limiter, err := ratelimit.NewFixedWindowLimiter(cfg.Redis, "studyhub:api:ratelimit", name, limit, l.RateLimitWindow)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	general, err := newLimiter("general", l.GeneralRequestsPerWindow)
	if err != nil {
		return nil, err
	}
	upload, err := newLimiter("upload", l.UploadRequestsPerWindow)
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		api:            http.NewServeMux(),
		trusted:        cfg.TrustedProxies,
		allowedOrigins: cfg.AllowedOrigins,
		maxUploadBytes: l.MaxFileSizeBytes,
		generalLimiter: general,
		uploadLimiter:  upload,
		alerter:        cfg.Alerter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(
		util.WithRequestLog("api",
			util.WithSecurityHeaders(
				util.WithCORS(s.allowedOrigins, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("/api/", s.rateLimited(s.generalLimiter, s.api))

	// auth
	s.api.HandleFunc("POST /api/auth/signup", s.handleSignup)
	s.api.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.api.HandleFunc("POST /api/auth/idp", s.handleIdPLogin)
	s.api.Handle("GET /api/users/me", s.authenticated(s.handleMe))

	// subjects
	s.api.Handle("GET /api/subjects", s.authenticated(s.handleListSubjects))
	s.api.Handle("POST /api/subjects", s.authenticated(s.handleCreateSubject))
	s.api.Handle("GET /api/subjects/{id}", s.authenticated(s.handleGetSubject))
	s.api.Handle("PATCH /api/subjects/{id}", s.authenticated(s.handleRenameSubject))
	s.api.Handle("DELETE /api/subjects/{id}", s.authenticated(s.handleDeleteSubject))

	// notes
	s.api.Handle("GET /api/subjects/{id}/notes", s.authenticated(s.handleListNotes))
	s.api.Handle("POST /api/subjects/{id}/notes", s.rateLimited(s.uploadLimiter, s.authenticated(s.handleUploadNote)))
	s.api.Handle("DELETE /api/notes/{id}", s.authenticated(s.handleDeleteNote))
	s.api.Handle("GET /api/notes/{id}/download", s.authenticated(s.handleDownloadNote))

	// flashcard sets
	s.api.Handle("GET /api/subjects/{id}/flashcard-sets", s.authenticated(s.handleListFlashcardSets))
	s.api.Handle("POST /api/subjects/{id}/flashcard-sets", s.authenticated(s.handleCreateFlashcardSet))
	s.api.Handle("DELETE /api/flashcard-sets/{id}", s.authenticated(s.handleDeleteFlashcardSet))

	// public metadata
	s.api.HandleFunc("GET /api/limits", s.handleLimits)
	s.api.HandleFunc("GET /api/version-updates", s.handleVersionUpdates)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "api.authorize", "fail", "reason", "missing_token")
			writeAppError(w, r, app.ErrUnauthorized)
			return
		}
		user, err := s.app.Authenticate(r.Context(), token)
		if err != nil {
			s.audit(r, "api.authorize", "fail", "reason", "verify_failed")
			s.fail(w, r, err)
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("user_id", user.ID))
		next(w, r.WithContext(ctx), user)
	})
}

// rateLimited charges one hit per request against limiter, keyed by client IP.
func (s *Server) rateLimited(limiter *ratelimit.FixedWindowLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := limiter.Allow(r.Context(), util.ClientIP(r, s.trusted))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			retry := int((decision.RetryAfter + time.Second - 1) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
			s.audit(r, "api.ratelimit", "rate_limited", "limit", decision.Limit)
			writeErrorBody(w, r, http.StatusTooManyRequests, errorBody{
				Error: "too many requests, try again later",
				Code:  codeRateLimited,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)

	res, err := s.alerter.Observe(r.Context(), event, outcome, util.ClientIP(r, s.trusted))
	if err != nil {
		logger.Warn("security alert evaluation failed", "event", event, "err", err)
		return
	}
	if res.Triggered {
		logger.Error("security_alert", append(logAttrs, "count", res.Count, "threshold", res.Threshold, "window", res.Window.String())...)
	}
}

// fail writes err and records quota rejections as security events.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, quota.ErrQuotaExceeded) {
		s.audit(r, "api.quota", "quota_exceeded")
	}
	writeAppError(w, r, err)
}

// Shutdown drains srv within timeout.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

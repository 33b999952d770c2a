package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"llmgateway/internal/metrics"
	"llmgateway/internal/ratelimit"
	"llmgateway/internal/security"
	"llmgateway/internal/util"
	"llmgateway/pkg/domain"
	"llmgateway/services/gateway/internal/app"
)

const maxJSONBodyBytes = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App     *app.App
	Metrics *metrics.Metrics
	// LoginLimiter is keyed by path and client IP.
	LoginLimiter ratelimit.Limiter
	// LLMLimiter is keyed by principal and guards every upstream call.
	LLMLimiter      ratelimit.Limiter
	Alerter         *security.AuditAlerter
	TrustedProxies  *util.TrustedProxies
	CORSAllowOrigin string
	MaxUploadBytes  int64
}

// Server exposes HTTP endpoints for the gateway.
type Server struct {
	app            *app.App
	metrics        *metrics.Metrics
	mux            *http.ServeMux
	loginLimiter   ratelimit.Limiter
	llmLimiter     ratelimit.Limiter
	alerter        *security.AuditAlerter
	trustedProxies *util.TrustedProxies
	corsOrigin     string
	maxUploadBytes int64
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires app")
	}
	s := &Server{
		app:            cfg.App,
		metrics:        cfg.Metrics,
		mux:            http.NewServeMux(),
		loginLimiter:   cfg.LoginLimiter,
		llmLimiter:     cfg.LLMLimiter,
		alerter:        cfg.Alerter,
		trustedProxies: cfg.TrustedProxies,
		corsOrigin:     cfg.CORSAllowOrigin,
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(
		util.WithRequestLog("gateway",
			util.WithSecurityHeaders(util.WithCORS(s.corsOrigin, s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", s.metrics.Handler())

	// auth
	s.mux.HandleFunc("/api/auth/login", s.handleLogin)
	s.mux.HandleFunc("/api/auth/logout", s.handleLogout)
	s.mux.Handle("/api/auth/me", s.authenticated(s.handleMe))

	// chat
	s.mux.Handle("/api/chat", s.authenticated(s.handleChat))
	s.mux.Handle("/api/chat/history", s.authenticated(s.handleChatHistory))

	// documents
	s.mux.Handle("/api/files/upload", s.authenticated(s.handleUpload))
	s.mux.Handle("/api/files/list", s.authenticated(s.handleListFiles))
	s.mux.Handle("/api/files/summary-history", s.authenticated(s.handleSummaryHistory))
	s.mux.Handle("/api/files/process", s.authenticated(s.handleProcess))
	s.mux.Handle("/api/files/summarize", s.authenticated(s.handleSummarize))
	s.mux.Handle("/api/files/translate", s.authenticated(s.handleTranslate))
	s.mux.Handle("/api/files/detect-intent", s.authenticated(s.handleDetectIntent))
	s.mux.Handle("/api/blog/scrape", s.authenticated(s.handleBlogScrape))

	// dashboard
	s.mux.Handle("/api/dashboard", s.authenticated(s.handleDashboard))
	s.mux.Handle("/api/dashboard/", s.authenticated(s.handleDashboardEntry))

	// admin management
	s.mux.Handle("/api/admins/create", s.superadminOnly(s.handleCreateAdmin))
	s.mux.Handle("/api/admins/list", s.superadminOnly(s.handleListAdmins))
	s.mux.Handle("/api/admins/delete", s.superadminOnly(s.handleDeleteAdmin))
	s.mux.Handle("/api/admins/update-password", s.superadminOnly(s.handleUpdateAdminPassword))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.Identity)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _ := bearerToken(r)
		identity, err := s.app.Authenticate(token)
		if err != nil {
			s.audit(r, security.EventAuthorize, security.OutcomeFail, "reason", authReason(err))
			s.writeAppError(w, r, err)
			return
		}
		s.audit(r, security.EventAuthorize, security.OutcomeSuccess, "principal", identity.Principal)
		logger := util.LoggerFromContext(r.Context()).With("principal", identity.Principal)
		next(w, r.WithContext(util.ContextWithLogger(r.Context(), logger)), identity)
	})
}

func (s *Server) superadminOnly(next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, identity domain.Identity) {
		if err := app.RequireSuperAdmin(identity); err != nil {
			s.audit(r, security.EventSuperAdmin, security.OutcomeFail, "principal", identity.Principal, "reason", "forbidden")
			s.writeAppError(w, r, err)
			return
		}
		s.audit(r, security.EventSuperAdmin, security.OutcomeSuccess, "principal", identity.Principal)
		next(w, r, identity)
	})
}

func authReason(err error) string {
	var authErr *app.AuthError
	if errors.As(err, &authErr) {
		return authErr.Reason
	}
	return "error"
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

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes)).Decode(dst)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 50 << 20
	}
	return value
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := util.ClientIP(r, s.trustedProxies)
	logger := util.LoggerFromContext(r.Context())
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == security.OutcomeSuccess {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)

	result, err := s.alerter.Observe(r.Context(), event, outcome, ip)
	if err != nil {
		logger.Warn("security alert counter failed", "event", event, "err", err)
		return
	}
	if result.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", result.Count,
			"threshold", result.Threshold,
			"window", result.Window.String(),
		)
	}
}

// allowRate reports whether key is within quota and answers 429 otherwise.
// A nil limiter allows everything.
func (s *Server) allowRate(w http.ResponseWriter, limiter ratelimit.Limiter, key, msg string) bool {
	if limiter == nil {
		return true
	}
	decision := limiter.Check(key)
	if decision.Allowed {
		return true
	}
	w.Header().Set("Retry-After", retryAfterSeconds(decision.RetryAfter))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

// retryAfterSeconds rounds up to whole seconds, never below one.
func retryAfterSeconds(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func (s *Server) loginKey(r *http.Request) string {
	return r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
}

func logger(r *http.Request) *slog.Logger {
	return util.LoggerFromContext(r.Context())
}

// Package httpapi exposes an Engine over JSON HTTP.
//
// Access and Refresh tokens travel in the access and refresh cookies. Routes
// live under /api/auth and /api/user.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/giall/hecate"
)

// Cookie names.
const (
	AccessCookie  = "access"
	RefreshCookie = "refresh"
)

// Engine is the subset of *hecate.Engine the handlers call.
type Engine interface {
	Register(ctx context.Context, username, email, secret string) (hecate.Profile, error)
	Login(ctx context.Context, email, secret string) (*hecate.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*hecate.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	InvalidateAll(ctx context.Context, refreshToken string) error
	Authenticate(accessToken string) (string, error)
	RequestMagicLogin(ctx context.Context, email string) error
	ConsumeMagicLogin(ctx context.Context, token string) (*hecate.TokenPair, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newSecret string) error
	RequestEmailVerification(ctx context.Context, email string) error
	VerifyEmail(ctx context.Context, token string) error
	ChangeEmail(ctx context.Context, accountID, newEmail, secret string) error
	ChangePassword(ctx context.Context, accountID, oldSecret, newSecret string) error
	DeleteAccount(ctx context.Context, accountID, secret string) error
	Profile(ctx context.Context, accountID string) (hecate.Profile, error)
}

// Config controls cookies and cross-origin access.
type Config struct {
	SecureCookies bool
	CookieDomain  string
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// AllowedOrigin is the web client origin allowed to send credentials.
	AllowedOrigin string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
}

type handler struct {
	engine Engine
	config Config
	log    zerolog.Logger
}

// NewRouter returns the HTTP handler for engine.
func NewRouter(engine Engine, cfg Config, log zerolog.Logger) http.Handler {
	h := &handler{engine: engine, config: cfg, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors(cfg.AllowedOrigin))
	r.Use(clientIP)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.Post("/logout", h.logout)
		r.Post("/invalidate", h.invalidate)
		r.Post("/magic/login/request", h.magicLoginRequest)
		r.Put("/magic/login", h.magicLogin)
	})

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Put("/email/verify", h.verifyEmail)
		r.Post("/email/verify/request", h.verifyEmailRequest)
		r.Post("/password/reset/request", h.resetPasswordRequest)
		r.Put("/password/reset", h.resetPassword)

		r.Group(func(r chi.Router) {
			r.Use(RequireAccess(engine, log))
			r.Get("/me", h.me)
			r.Put("/email/change", h.changeEmail)
			r.Put("/password/change", h.changePassword)
			r.Delete("/delete", h.deleteAccount)
		})
	})

	return r
}

func (h *handler) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *handler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *handler) setAuthCookies(w http.ResponseWriter, p hecate.TokenPair) {
	h.setCookie(w, AccessCookie, p.AccessToken, h.config.AccessTTL)
	h.setCookie(w, RefreshCookie, p.RefreshToken, h.config.RefreshTTL)
}

func (h *handler) clearAuthCookies(w http.ResponseWriter) {
	h.clearCookie(w, AccessCookie)
	h.clearCookie(w, RefreshCookie)
}

// refreshToken reads the refresh cookie. A missing cookie writes a 401.
func (h *handler) refreshToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	c, err := r.Cookie(RefreshCookie)
	if err != nil || c.Value == "" {
		h.log.Debug().Str("path", r.URL.Path).Msg("no refresh token included in request")
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token.")
		return "", false
	}
	return c.Value, true
}

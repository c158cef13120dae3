package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"horizon-web/internal/auth"
	"horizon-web/internal/auth/provider"
	"horizon-web/internal/auth/resolver"
	"horizon-web/internal/logger"
	"horizon-web/internal/middleware"
	"horizon-web/internal/session"

	"github.com/gin-gonic/gin"
)

// DefaultSessionTTL is the absolute lifetime of a session.
const DefaultSessionTTL = 24 * time.Hour

// Error codes passed back to the sign-in page.
const (
	ErrCodeProvider           = "provider_error"
	ErrCodeInvalidState       = "invalid_state"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeAlreadyRegistered  = "already_registered"
	ErrCodeInvalidInput       = "invalid_input"
	ErrCodeServer             = "server_error"
)

// CredentialService verifies and registers email + password accounts.
type CredentialService interface {
	Register(ctx context.Context, email, password, name string) (auth.Identity, error)
	Authenticate(ctx context.Context, email, password string) (auth.Identity, error)
}

type Options struct {
	Cookie     session.CookieOptions
	SessionTTL time.Duration
	// SignInPath receives failed sign-in attempts; LandingPath successful ones.
	SignInPath  string
	LandingPath string
	Logger      *slog.Logger
}

type Handler struct {
	providers    *provider.Registry
	sessionStore session.Store
	resolver     resolver.Resolver
	credentials  CredentialService
	opts         Options
	logger       *slog.Logger
	now          func() time.Time
}

func NewHandler(
	registry *provider.Registry,
	sessionStore session.Store,
	resolver resolver.Resolver,
	credentials CredentialService,
	opts Options,
) *Handler {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.SignInPath == "" {
		opts.SignInPath = "/login"
	}
	if opts.LandingPath == "" {
		opts.LandingPath = "/"
	}
	l := opts.Logger
	if l == nil {
		l = logger.L()
	}
	return &Handler{
		providers:    registry,
		sessionStore: sessionStore,
		resolver:     resolver,
		credentials:  credentials,
		opts:         opts,
		logger:       l,
		now:          time.Now,
	}
}

// RegisterRoutes mounts the sign-in endpoints. limit guards the endpoints
// that accept credentials.
func (h *Handler) RegisterRoutes(r gin.IRouter, limit gin.HandlerFunc) {
	r.GET("/oauth/login/:provider", limit, h.login)
	r.GET("/oauth/callback/:provider", h.callback)
	r.POST("/auth/login", limit, h.Login)
	r.POST("/auth/register", limit, h.Register)
}

func (h *Handler) login(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	state, err := generateState(c, h.opts.Cookie.Secure)
	if err != nil {
		h.failSignIn(c, ErrCodeServer)
		return
	}
	_, codeChallenge, err := generatePKCE(c, h.opts.Cookie.Secure)
	if err != nil {
		h.failSignIn(c, ErrCodeServer)
		return
	}

	c.Redirect(http.StatusFound, p.AuthCodeURL(state, codeChallenge))
}

func (h *Handler) callback(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	if !validateState(c) {
		h.failSignIn(c, ErrCodeInvalidState)
		return
	}
	codeVerifier := getPKCEVerifier(c)
	clearFlowCookies(c, h.opts.Cookie.Secure)

	// OAuth error (very common during registration)
	if errParam := c.Query("error"); errParam != "" {
		h.logger.Warn("oidc callback returned error",
			"provider", providerName,
			"error", errParam,
			"desc", c.Query("error_description"),
		)
		h.failSignIn(c, ErrCodeProvider)
		return
	}

	code := c.Query("code")
	if code == "" || codeVerifier == "" {
		h.logger.Warn("oidc callback missing code or pkce verifier", "provider", providerName)
		h.failSignIn(c, ErrCodeInvalidState)
		return
	}

	external, err := p.ExchangeCode(c.Request.Context(), code, codeVerifier)
	if err != nil {
		h.logger.Warn("oidc code exchange failed", "provider", providerName, "error", err)
		h.failSignIn(c, ErrCodeProvider)
		return
	}

	identity, err := h.resolver.Resolve(c.Request.Context(), external)
	if err != nil {
		h.logger.Error("failed to resolve user", "provider", providerName, "error", err)
		h.failSignIn(c, ErrCodeProvider)
		return
	}

	h.completeSignIn(c, identity, providerName)
}

// completeSignIn creates a session for identity, issues the cookie and sends
// the browser to the landing path.
func (h *Handler) completeSignIn(c *gin.Context, identity auth.Identity, method string) {
	sessionID, err := session.GenerateID()
	if err != nil {
		h.failSignIn(c, ErrCodeServer)
		return
	}

	now := h.now()
	expiresAt := now.Add(h.opts.SessionTTL)

	sess := session.Session{
		SessionID: sessionID,
		UserID:    identity.ID,
		Email:     identity.Email,
		Name:      identity.Name,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}

	if err := h.sessionStore.Create(c.Request.Context(), sess); err != nil {
		h.logger.Error("failed to persist session", "user_id", identity.ID, "error", err)
		h.failSignIn(c, ErrCodeServer)
		return
	}

	session.SetCookie(c.Writer, sessionID, expiresAt, h.opts.Cookie)

	h.logger.Info("login success",
		"user_id", identity.ID,
		"method", method,
		"ip", c.ClientIP(),
	)

	c.Redirect(http.StatusFound, h.opts.LandingPath)
}

func (h *Handler) failSignIn(c *gin.Context, code string) {
	c.Redirect(http.StatusFound, h.opts.SignInPath+"?"+url.Values{"error": {code}}.Encode())
}

// Logout signs the visitor out everywhere and clears the session cookie. It
// runs behind the session gate, which sends the browser to sign-in.
func Logout(cookie session.CookieOptions, log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.L()
	}
	return func(c *gin.Context) {
		if props, ok := middleware.Props(c); ok && props.SignOut != nil {
			if err := props.SignOut(c.Request.Context()); err != nil {
				log.Warn("logout completed locally only", "ip", c.ClientIP(), "error", err)
			}
		}
		session.ClearCookie(c.Writer, cookie)
	}
}

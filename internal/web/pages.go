package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"horizon-web/internal/apikey"
	"horizon-web/internal/auth"
	"horizon-web/internal/auth/handler"
	"horizon-web/internal/middleware"

	"github.com/gin-gonic/gin"
)

// KeyStore issues and describes API keys.
type KeyStore interface {
	Get(ctx context.Context, principalID string) (apikey.Key, error)
	Rotate(ctx context.Context, principalID string) (string, error)
}

// ProviderLink is one external sign-in option.
type ProviderLink struct {
	Name        string
	DisplayName string
}

// SignInOptions describes what the sign-in page offers.
type SignInOptions struct {
	Providers       []ProviderLink
	PasswordEnabled bool
	// HostedLoginURL sends the visitor to an external login UI.
	HostedLoginURL string
}

// Pages serves the HTML pages. Gated pages expect the session gate in front
// of them.
type Pages struct {
	keys        KeyStore
	signIn      SignInOptions
	landingPath string
	logger      *slog.Logger
}

func NewPages(keys KeyStore, signIn SignInOptions, landingPath string, logger *slog.Logger) *Pages {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pages{keys: keys, signIn: signIn, landingPath: landingPath, logger: logger}
}

var signInErrors = map[string]string{
	handler.ErrCodeProvider:           "Sign-in with the identity provider did not complete. Please try again.",
	handler.ErrCodeInvalidState:       "Your sign-in attempt expired. Please try again.",
	handler.ErrCodeInvalidCredentials: "Email or password is incorrect.",
	handler.ErrCodeAlreadyRegistered:  "An account with this email already exists. Sign in instead.",
	handler.ErrCodeInvalidInput:       "Enter a valid email and a password of at least 8 characters.",
	handler.ErrCodeServer:             "Something went wrong. Please try again.",
}

// Root is never reached for a settled session; the gate redirects first.
func (p *Pages) Root(c *gin.Context) {
	c.Redirect(http.StatusFound, p.landingPath)
}

func (p *Pages) Login(c *gin.Context) {
	c.HTML(http.StatusOK, TemplateLogin, gin.H{
		"Title":           "Sign in",
		"Error":           signInErrors[c.Query("error")],
		"Providers":       p.signIn.Providers,
		"PasswordEnabled": p.signIn.PasswordEnabled,
		"HostedLoginURL":  p.signIn.HostedLoginURL,
	})
}

func (p *Pages) Account(c *gin.Context) {
	c.Redirect(http.StatusFound, "/account/api_key")
}

func (p *Pages) APIKey(c *gin.Context) {
	props, ok := middleware.Props(c)
	if !ok || props.Identity == nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	data := gin.H{
		"Title":    "API key",
		"Path":     "/account/api_key",
		"Identity": props.Identity,
	}

	key, err := p.keys.Get(c.Request.Context(), props.Identity.ID)
	switch {
	case err == nil:
		data["HasKey"] = true
		data["KeyCreatedAt"] = key.CreatedAt
	case errors.Is(err, apikey.ErrNoKey):
	default:
		p.logger.ErrorContext(c.Request.Context(), "api key lookup failed", "principal_id", props.Identity.ID, "error", err)
		data["Error"] = "Your API key status is unavailable right now."
	}

	c.HTML(http.StatusOK, TemplateAPIKey, data)
}

func (p *Pages) RotateAPIKey(c *gin.Context) {
	props, ok := middleware.Props(c)
	if !ok || props.Identity == nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	data := gin.H{
		"Title":    "API key",
		"Path":     "/account/api_key",
		"Identity": props.Identity,
	}

	plaintext, err := p.keys.Rotate(c.Request.Context(), props.Identity.ID)
	if err != nil {
		p.logger.ErrorContext(c.Request.Context(), "api key rotation failed", "principal_id", props.Identity.ID, "error", err)
		data["Error"] = "Could not create an API key. Please try again."
		c.HTML(http.StatusInternalServerError, TemplateAPIKey, data)
		return
	}

	p.logger.InfoContext(c.Request.Context(), "api key rotated", "principal_id", props.Identity.ID)
	data["HasKey"] = true
	data["NewKey"] = plaintext
	c.HTML(http.StatusOK, TemplateAPIKey, data)
}

func (p *Pages) Welcome(c *gin.Context) {
	props, ok := middleware.Props(c)
	if !ok || props.Identity == nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.HTML(http.StatusOK, TemplateWelcome, gin.H{
		"Title":    "Getting started",
		"Path":     "/account/welcome",
		"Identity": props.Identity,
	})
}

// Privacy and Terms render for everyone; a signed-in visitor also gets the
// account header.
func (p *Pages) Privacy(c *gin.Context) {
	c.HTML(http.StatusOK, TemplatePrivacy, gin.H{"Title": "Privacy policy", "Identity": signedIn(c)})
}

func (p *Pages) Terms(c *gin.Context) {
	c.HTML(http.StatusOK, TemplateTerms, gin.H{"Title": "Terms and conditions", "Identity": signedIn(c)})
}

func signedIn(c *gin.Context) *auth.Identity {
	if props, ok := middleware.Props(c); ok {
		return props.Identity
	}
	return nil
}

func (p *Pages) NotFound(c *gin.Context) {
	c.HTML(http.StatusNotFound, TemplateNotFound, gin.H{"Title": "Not found"})
}

// Me reports the principal owning the API key of the request.
func (p *Pages) Me(c *gin.Context) {
	id, ok := middleware.APIKeyPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal_id": id})
}

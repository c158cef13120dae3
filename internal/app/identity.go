package app

import (
	"context"
	"fmt"
	"time"

	"horizon-web/internal/auth/credentials"
	"horizon-web/internal/auth/handler"
	"horizon-web/internal/auth/idp"
	"horizon-web/internal/auth/idp/kratos"
	"horizon-web/internal/auth/idp/local"
	"horizon-web/internal/auth/provider"
	"horizon-web/internal/auth/provider/google"
	"horizon-web/internal/auth/provider/keycloak"
	"horizon-web/internal/auth/resolver"
	"horizon-web/internal/config"
	"horizon-web/internal/logger"
	"horizon-web/internal/session"
	"horizon-web/internal/web"
)

const cacheSweepInterval = time.Minute

// identityStack is everything that depends on which identity provider runs.
type identityStack struct {
	provider   idp.Provider
	cookieName string
	signIn     web.SignInOptions
	// authHandler serves the app's own sign-in flows; nil when an external
	// provider owns sign-in.
	authHandler *handler.Handler
}

func setupIdentity(ctx context.Context, cfg config.Config, infra *Infra) (*identityStack, error) {
	switch cfg.IdentityProvider {
	case config.ProviderKratos:
		return setupKratos(ctx, cfg), nil
	case config.ProviderLocal:
		return setupLocal(ctx, cfg, infra)
	default:
		return nil, fmt.Errorf("unknown identity provider %q", cfg.IdentityProvider)
	}
}

func setupKratos(ctx context.Context, cfg config.Config) *identityStack {
	gw := kratos.NewGateway(cfg.KratosPublicURL, cfg.KratosAdminURL, cfg.KratosTimeout)

	var p idp.Provider = gw
	if cfg.CacheTTL > 0 {
		cached := idp.NewCachedProvider(gw, cfg.CacheTTL)
		go cached.Run(ctx, cacheSweepInterval)
		p = cached
	}

	logger.Info("identity provider ready", map[string]any{
		"provider":  config.ProviderKratos,
		"public":    cfg.KratosPublicURL,
		"cache_ttl": cfg.CacheTTL.String(),
	})

	return &identityStack{
		provider:   p,
		cookieName: cookieName(cfg, kratos.CookieName),
		signIn: web.SignInOptions{
			HostedLoginURL: gw.BrowserLoginURL(cfg.AppBaseURL + "/"),
		},
	}
}

func setupLocal(ctx context.Context, cfg config.Config, infra *Infra) (*identityStack, error) {
	sessionStore := session.NewRedisStore(infra.Redis.Client)

	var oauth []provider.OAuthProvider
	if cfg.GoogleEnabled() {
		p, err := google.New(ctx, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
		if err != nil {
			return nil, err
		}
		oauth = append(oauth, p)
	}
	if cfg.KeycloakEnabled() {
		p, err := keycloak.New(ctx, cfg.KeycloakIssuer, cfg.KeycloakClientID, cfg.KeycloakRedirectURL, cfg.KeycloakPublicBaseURL)
		if err != nil {
			return nil, err
		}
		oauth = append(oauth, p)
	}
	registry := provider.NewRegistry(oauth...)

	name := cookieName(cfg, session.CookieName)
	authHandler := handler.NewHandler(
		registry,
		sessionStore,
		resolver.NewDBResolver(infra.DB),
		credentials.NewService(infra.DB),
		handler.Options{
			Cookie: session.CookieOptions{Name: name, Secure: cfg.CookieSecure},
			Logger: logger.L(),
		},
	)

	signIn := web.SignInOptions{PasswordEnabled: true}
	for _, p := range registry.List() {
		signIn.Providers = append(signIn.Providers, web.ProviderLink{Name: p.Name(), DisplayName: p.DisplayName()})
	}

	logger.Info("identity provider ready", map[string]any{
		"provider":        config.ProviderLocal,
		"oauth_providers": len(oauth),
	})

	return &identityStack{
		provider:    local.New(sessionStore),
		cookieName:  name,
		signIn:      signIn,
		authHandler: authHandler,
	}, nil
}

// cookieName picks the session cookie. Browsers only accept __Host- cookies
// over HTTPS, so plain-HTTP setups fall back to an unprefixed name.
func cookieName(cfg config.Config, fallback string) string {
	if cfg.SessionCookieName != "" {
		return cfg.SessionCookieName
	}
	if !cfg.CookieSecure && fallback == session.CookieName {
		return "session"
	}
	return fallback
}

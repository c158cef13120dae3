package app

import (
	"context"
	"log/slog"
	"net/http"

	"horizon-web/internal/analytics"
	"horizon-web/internal/apikey"
	"horizon-web/internal/auth/handler"
	"horizon-web/internal/config"
	"horizon-web/internal/gate"
	"horizon-web/internal/logger"
	"horizon-web/internal/metrics"
	"horizon-web/internal/middleware"
	"horizon-web/internal/session"
	"horizon-web/internal/web"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// APIKeys is the key store behind the account pages and the API.
type APIKeys interface {
	web.KeyStore
	middleware.KeyAuthenticator
}

type routerDeps struct {
	cfg      config.Config
	identity *identityStack
	keys     APIKeys
	// identifier receives identify events; nil disables them.
	identifier analytics.Identifier
	registry   *prometheus.Registry
	logger     *slog.Logger
}

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	identity, err := setupIdentity(ctx, cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	var identifier analytics.Identifier
	if cfg.AnalyticsStream != "" {
		identifier = analytics.NewStreamIdentifier(infra.Redis.Client, cfg.AnalyticsStream)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	router := newRouter(ctx, routerDeps{
		cfg:        cfg,
		identity:   identity,
		keys:       apikey.NewService(infra.DB),
		identifier: identifier,
		registry:   registry,
		logger:     logger.L(),
	})

	return router, infra.Close, nil
}

func newRouter(ctx context.Context, d routerDeps) *gin.Engine {

	// ----------------------------
	// Session gate
	// ----------------------------

	m := metrics.New(d.registry)
	resolver := gate.NewResolver(d.identity.provider, gate.WithMetrics(m), gate.WithLogger(d.logger))
	ctrl := gate.NewController(resolver, d.identity.provider, gate.Config{
		Metrics: m,
		Logger:  d.logger,
	})

	// the sign-in page is where a returning visitor is identified
	loginCtrl := ctrl
	if d.identifier != nil {
		loginCtrl = ctrl.WithOnResolved(analytics.Hook(d.identifier, d.logger))
	}

	g := middleware.NewGate(ctrl, middleware.GateConfig{
		CookieName:          d.identity.cookieName,
		PlaceholderAfter:    d.cfg.PlaceholderAfter,
		PlaceholderTemplate: web.TemplateLoading,
		Logger:              d.logger,
	})

	pages := web.NewPages(d.keys, d.identity.signIn, ctrl.LandingPath(), d.logger)
	cookie := session.CookieOptions{Name: d.identity.cookieName, Secure: d.cfg.CookieSecure}

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery(), middleware.SecurityHeaders())

	tmpl, err := web.Templates()
	if err != nil {
		// templates are embedded, so this only fails on a broken build
		panic(err)
	}
	router.SetHTMLTemplate(tmpl)

	// ----------------------------
	// Public Routes
	// ----------------------------

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})))

	router.GET("/legal/privacy_policy", g.Public(), pages.Privacy)
	router.GET("/legal/terms_and_conditions", g.Public(), pages.Terms)

	if d.identity.authHandler != nil {
		limiter := middleware.NewRateLimiter(ctx, rate.Limit(d.cfg.SignInRatePerSec), d.cfg.SignInBurst)
		d.identity.authHandler.RegisterRoutes(router, limiter.Middleware())
	}

	// ----------------------------
	// Gated Web Routes
	// ----------------------------

	router.GET("/", g.Entry(), pages.Root)
	router.GET("/login", g.GuardWith(loginCtrl, loginCtrl.GuestOnly()), pages.Login)
	router.GET("/account", pages.Account)

	account := router.Group("/account")
	account.Use(g.Protected())
	account.GET("/api_key", pages.APIKey)
	account.POST("/api_key", pages.RotateAPIKey)
	account.GET("/welcome", pages.Welcome)

	router.POST("/auth/logout", g.Protected(), handler.Logout(cookie, d.logger))

	// ----------------------------
	// API Routes
	// ----------------------------

	api := router.Group("/api")
	api.Use(middleware.RequireAPIKey(d.keys, d.logger))
	api.GET("/me", pages.Me)

	router.NoRoute(pages.NotFound)

	return router
}

package middleware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"horizon-web/internal/auth"
	"horizon-web/internal/gate"
)

// unexported, collision-proof context key
type propsContextKeyType struct{}

var propsKey = propsContextKeyType{}

// ginPropsKey is where the gate stores Props on the gin context.
const ginPropsKey = "gate.props"

// PropsFromContext extracts the props of a gated page from ctx.
func PropsFromContext(ctx context.Context) (gate.Props, bool) {
	p, ok := ctx.Value(propsKey).(gate.Props)
	return p, ok
}

// IdentityFromContext extracts the signed-in identity from ctx.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	p, ok := PropsFromContext(ctx)
	if !ok || p.Identity == nil {
		return auth.Identity{}, false
	}
	return *p.Identity, true
}

func withProps(ctx context.Context, p gate.Props) context.Context {
	return context.WithValue(ctx, propsKey, p)
}

// GateConfig configures the session gate middleware.
type GateConfig struct {
	// CookieName is the cookie carrying the session token.
	CookieName string

	// PlaceholderAfter renders the loading page when the session has not
	// resolved in time. Zero waits for the resolution.
	PlaceholderAfter time.Duration

	// PlaceholderTemplate is the HTML template used for the loading page.
	PlaceholderTemplate string

	Logger *slog.Logger
}

// Gate mounts a gate.View for each request it guards.
type Gate struct {
	ctrl   *gate.Controller
	cfg    GateConfig
	logger *slog.Logger
}

func NewGate(ctrl *gate.Controller, cfg GateConfig) *Gate {
	if cfg.PlaceholderTemplate == "" {
		cfg.PlaceholderTemplate = "loading.html"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{ctrl: ctrl, cfg: cfg, logger: logger}
}

// Controller returns the controller views are created from.
func (g *Gate) Controller() *gate.Controller { return g.ctrl }

// bufferedNavigator records redirects so the request goroutine can write
// them. The view calls RedirectTo under its own lock.
type bufferedNavigator struct {
	mu   sync.Mutex
	path string
}

func (n *bufferedNavigator) RedirectTo(path string) {
	n.mu.Lock()
	n.path = path
	n.mu.Unlock()
}

// take returns the last redirect and forgets it.
func (n *bufferedNavigator) take() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	p := n.path
	n.path = ""
	return p
}

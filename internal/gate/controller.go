package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"horizon-web/internal/auth"
	"horizon-web/internal/metrics"
)

const (
	DefaultSignInPath  = "/login"
	DefaultLandingPath = "/account"
	DefaultRootPath    = "/"
)

// ErrNotMounted is returned by Await on a view that is not mounted.
var ErrNotMounted = errors.New("gate: view not mounted")

// Revoker invalidates every session of the principal owning a token.
type Revoker interface {
	RevokeAllSessions(ctx context.Context, token string) error
}

// Navigator carries out redirect instructions. RedirectTo is called while
// the view holds its lock, so it must not block or call back into the view.
type Navigator interface {
	RedirectTo(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) RedirectTo(path string) { f(path) }

// Config configures a Controller.
type Config struct {
	SignInPath  string
	LandingPath string
	// RootPath is where a signed-in visitor on a guest-only page is sent.
	RootPath string

	// OnResolved, when set, runs after every transition to Authenticated.
	OnResolved func(ctx context.Context, id auth.Identity)

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Policy says where a view redirects for each settled status. An empty path
// means the view renders its content for that status.
type Policy struct {
	AnonymousTo     string
	AuthenticatedTo string
}

func (p Policy) target(s Status) string {
	switch s {
	case StatusAnonymous:
		return p.AnonymousTo
	case StatusAuthenticated:
		return p.AuthenticatedTo
	default:
		return ""
	}
}

// Controller creates views that share a resolver, a revoker and redirect
// targets.
type Controller struct {
	resolver *Resolver
	revoker  Revoker
	cfg      Config
	logger   *slog.Logger
}

// NewController creates a controller.
func NewController(resolver *Resolver, revoker Revoker, cfg Config) *Controller {
	if cfg.SignInPath == "" {
		cfg.SignInPath = DefaultSignInPath
	}
	if cfg.LandingPath == "" {
		cfg.LandingPath = DefaultLandingPath
	}
	if cfg.RootPath == "" {
		cfg.RootPath = DefaultRootPath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		resolver: resolver,
		revoker:  revoker,
		cfg:      cfg,
		logger:   logger,
	}
}

// WithOnResolved returns a copy of c that runs fn after each transition to
// Authenticated.
func (c *Controller) WithOnResolved(fn func(ctx context.Context, id auth.Identity)) *Controller {
	cp := *c
	cp.cfg.OnResolved = fn
	return &cp
}

// SignInPath is where anonymous visitors are sent.
func (c *Controller) SignInPath() string { return c.cfg.SignInPath }

// LandingPath is where signed-in visitors land.
func (c *Controller) LandingPath() string { return c.cfg.LandingPath }

// Protected renders content only for a signed-in visitor.
func (c *Controller) Protected() Policy {
	return Policy{AnonymousTo: c.cfg.SignInPath}
}

// GuestOnly renders content only for an anonymous visitor. A signed-in
// visitor goes back to the root page.
func (c *Controller) GuestOnly() Policy {
	return Policy{AuthenticatedTo: c.cfg.RootPath}
}

// Public renders content for both statuses.
func (c *Controller) Public() Policy {
	return Policy{}
}

// Entry never renders content; it routes to sign-in or landing.
func (c *Controller) Entry() Policy {
	return Policy{AnonymousTo: c.cfg.SignInPath, AuthenticatedTo: c.cfg.LandingPath}
}

// NewView creates an unmounted view.
func (c *Controller) NewView(policy Policy, nav Navigator) *View {
	return &View{ctrl: c, policy: policy, nav: nav}
}

// OutcomeKind is what a view renders.
type OutcomeKind int

const (
	OutcomePlaceholder OutcomeKind = iota
	OutcomeRedirect
	OutcomeContent
)

// Props is handed to the content of a view.
type Props struct {
	Identity *auth.Identity // nil for anonymous content
	SignOut  func(ctx context.Context) error
}

// Outcome is the rendering decision for the current state.
type Outcome struct {
	Kind  OutcomeKind
	Path  string // set for OutcomeRedirect
	Props Props  // set for OutcomeContent
}

// View is one mounted page. It holds the session state for that page only.
type View struct {
	ctrl   *Controller
	policy Policy
	nav    Navigator

	mu         sync.Mutex
	state      State
	token      string
	mounted    bool
	gen        uint64
	cancel     context.CancelFunc
	settled    chan struct{}
	signingOut bool
}

// Mount puts the view in Pending and starts resolving token. Mounting an
// already mounted view supersedes the resolution in flight: its result is
// discarded. Cancelling ctx has the same effect as Unmount on the result.
func (v *View) Mount(ctx context.Context, token string, bypassCache bool) {
	v.mu.Lock()
	if v.cancel != nil {
		v.cancel()
	}
	v.gen++
	gen := v.gen
	v.mounted = true
	v.state = Pending()
	v.token = token
	v.signingOut = false

	rctx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	settled := make(chan struct{})
	v.settled = settled
	v.mu.Unlock()

	go func() {
		st := v.ctrl.resolver.Resolve(rctx, token, bypassCache)
		v.settle(rctx, gen, st, settled)
	}()
}

func (v *View) settle(rctx context.Context, gen uint64, st State, settled chan struct{}) {
	v.mu.Lock()
	if !v.mounted || gen != v.gen || rctx.Err() != nil {
		v.mu.Unlock()
		v.ctrl.cfg.Metrics.IncDiscarded()
		close(settled)
		return
	}
	v.state = st
	v.cancel()
	v.cancel = nil
	v.redirectLocked(v.policy.target(st.Status()))
	v.mu.Unlock()
	close(settled)

	if id, ok := st.Identity(); ok && v.ctrl.cfg.OnResolved != nil {
		v.ctrl.cfg.OnResolved(context.WithoutCancel(rctx), id)
	}
}

// Unmount detaches the view. A resolution still in flight is cancelled and
// its result will not touch the view.
func (v *View) Unmount() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.mounted {
		return
	}
	v.mounted = false
	v.gen++
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
}

// State returns the current state.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Await blocks until the view leaves Pending or ctx is done. It also returns
// when the resolution in flight is discarded.
func (v *View) Await(ctx context.Context) (State, error) {
	for {
		v.mu.Lock()
		st, settled, mounted := v.state, v.settled, v.mounted
		v.mu.Unlock()

		if st.Status() != StatusPending {
			return st, nil
		}
		if !mounted || settled == nil {
			return st, ErrNotMounted
		}

		select {
		case <-settled:
		case <-ctx.Done():
			return st, ctx.Err()
		}

		v.mu.Lock()
		abandoned := v.settled == settled && v.state.Status() == StatusPending
		v.mu.Unlock()
		if abandoned {
			// the resolution was discarded because its mount context ended
			if err := ctx.Err(); err != nil {
				return st, err
			}
			return st, context.Canceled
		}
	}
}

// Render maps the current state to what the page shows.
func (v *View) Render() Outcome {
	st := v.State()

	if st.Status() == StatusPending {
		return Outcome{Kind: OutcomePlaceholder}
	}
	if path := v.policy.target(st.Status()); path != "" {
		return Outcome{Kind: OutcomeRedirect, Path: path}
	}

	props := Props{}
	if id, ok := st.Identity(); ok {
		props.Identity = &id
		props.SignOut = v.SignOut
	}
	return Outcome{Kind: OutcomeContent, Props: props}
}

// SignOut asks the provider to revoke every session of the principal and
// then resets the view to Anonymous whatever the provider answered. The
// returned error only reports a failed revocation; the view is signed out
// either way. Calling it outside Authenticated does nothing.
func (v *View) SignOut(ctx context.Context) error {
	v.mu.Lock()
	if !v.mounted || v.state.Status() != StatusAuthenticated || v.signingOut {
		v.mu.Unlock()
		return nil
	}
	v.signingOut = true
	token := v.token
	v.mu.Unlock()

	err := v.revoke(ctx, token)
	v.ctrl.cfg.Metrics.IncSignOut(err == nil)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.signingOut = false
	if !v.mounted {
		return err
	}
	v.gen++
	v.state = Anonymous()
	path := v.policy.AnonymousTo
	if path == "" {
		path = v.ctrl.cfg.SignInPath
	}
	v.redirectLocked(path)
	return err
}

func (v *View) revoke(ctx context.Context, token string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: panic: %v", auth.ErrRevocationFailed, p)
		}
		if err != nil {
			v.ctrl.logger.WarnContext(ctx, "session revocation failed, signing out locally", "error", err)
		}
	}()

	if v.ctrl.revoker == nil {
		return nil
	}
	if err := v.ctrl.revoker.RevokeAllSessions(ctx, token); err != nil {
		if !errors.Is(err, auth.ErrRevocationFailed) {
			err = fmt.Errorf("%w: %w", auth.ErrRevocationFailed, err)
		}
		return err
	}
	return nil
}

func (v *View) redirectLocked(path string) {
	if path == "" || v.nav == nil {
		return
	}
	v.nav.RedirectTo(path)
}

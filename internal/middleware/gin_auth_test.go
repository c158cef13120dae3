package middleware

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"horizon-web/internal/auth"
	"horizon-web/internal/gate"
	"horizon-web/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCookie = "sid"

type fakeIDP struct {
	mu         sync.Mutex
	identities map[string]auth.Identity
	delay      time.Duration
	revokeErr  error
	revokes    []string
}

func (f *fakeIDP) QueryCurrentPrincipal(ctx context.Context, token string, _ bool) (*auth.Identity, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", auth.ErrIdentityUnavailable, ctx.Err())
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.identities[token]
	if !ok {
		return nil, fmt.Errorf("%w: no session", auth.ErrIdentityUnavailable)
	}
	return &id, nil
}

func (f *fakeIDP) RevokeAllSessions(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokes = append(f.revokes, token)
	return f.revokeErr
}

type gateFixture struct {
	router  *gin.Engine
	idp     *fakeIDP
	metrics *metrics.Metrics
	gate    *Gate
}

func newGateFixture(t *testing.T, placeholderAfter time.Duration) *gateFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	idp := &fakeIDP{identities: map[string]auth.Identity{
		"tok-1": {ID: "u1", Email: "a@example.com"},
	}}
	m := metrics.New(prometheus.NewRegistry())
	ctrl := gate.NewController(gate.NewResolver(idp, gate.WithMetrics(m)), idp, gate.Config{Metrics: m})
	g := NewGate(ctrl, GateConfig{CookieName: testCookie, PlaceholderAfter: placeholderAfter})

	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("loading.html").Parse(`loading {{.RefreshURL}}`)))

	r.GET("/", g.Entry(), func(c *gin.Context) { c.String(http.StatusOK, "unreachable") })
	r.GET("/login", g.GuestOnly(), func(c *gin.Context) {
		_, hasProps := Props(c)
		c.String(http.StatusOK, "sign in (props=%t)", hasProps)
	})
	r.GET("/account/api_key", g.Protected(), func(c *gin.Context) {
		id, ok := IdentityFromContext(c.Request.Context())
		require.True(t, ok)
		c.String(http.StatusOK, "%s %s", id.ID, id.Email)
	})
	r.POST("/auth/logout", g.Protected(), func(c *gin.Context) {
		p, ok := Props(c)
		require.True(t, ok)
		_ = p.SignOut(c.Request.Context())
	})
	r.POST("/auth/logout-json", g.Protected(), func(c *gin.Context) {
		p, _ := Props(c)
		err := p.SignOut(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"revoked": err == nil})
	})

	return &gateFixture{router: r, idp: idp, metrics: m, gate: g}
}

func (f *gateFixture) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: testCookie, Value: token})
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestGate_ProtectedRedirectsAnonymous(t *testing.T) {
	f := newGateFixture(t, 0)

	for _, token := range []string{"", "unknown"} {
		rec := f.do(http.MethodGet, "/account/api_key", token)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/login", rec.Header().Get("Location"))
		assert.NotContains(t, rec.Body.String(), "u1")
	}
}

func TestGate_ProtectedRendersIdentity(t *testing.T) {
	f := newGateFixture(t, 0)

	rec := f.do(http.MethodGet, "/account/api_key", "tok-1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1 a@example.com", rec.Body.String())
}

func TestGate_Entry(t *testing.T) {
	f := newGateFixture(t, 0)

	rec := f.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = f.do(http.MethodGet, "/", "tok-1")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/account", rec.Header().Get("Location"))
}

func TestGate_GuestOnly(t *testing.T) {
	f := newGateFixture(t, 0)

	rec := f.do(http.MethodGet, "/login", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sign in (props=true)", rec.Body.String())

	rec = f.do(http.MethodGet, "/login", "tok-1")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestGate_SignOutRedirectsAfterHandler(t *testing.T) {
	f := newGateFixture(t, 0)

	rec := f.do(http.MethodPost, "/auth/logout", "tok-1")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Equal(t, []string{"tok-1"}, f.idp.revokes)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SignOuts.WithLabelValues("revoked")))
}

func TestGate_SignOutSurvivesRevokeFailure(t *testing.T) {
	f := newGateFixture(t, 0)
	f.idp.revokeErr = errors.New("network down")

	rec := f.do(http.MethodPost, "/auth/logout", "tok-1")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SignOuts.WithLabelValues("revoke_failed")))
}

func TestGate_HandlerResponseWinsOverSignOutRedirect(t *testing.T) {
	f := newGateFixture(t, 0)
	f.idp.revokeErr = errors.New("network down")

	rec := f.do(http.MethodPost, "/auth/logout-json", "tok-1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"revoked":false}`, rec.Body.String())
}

func TestGate_PlaceholderWhenSlow(t *testing.T) {
	f := newGateFixture(t, 10*time.Millisecond)
	f.idp.delay = time.Second

	rec := f.do(http.MethodGet, "/account/api_key?x=1", "tok-1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "loading /account/api_key?x=1", rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "u1")
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.DiscardedResolutions) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestGate_SlowPostWaitsInsteadOfPlaceholder(t *testing.T) {
	f := newGateFixture(t, 10*time.Millisecond)
	f.idp.delay = 50 * time.Millisecond

	rec := f.do(http.MethodPost, "/auth/logout", "tok-1")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.NotContains(t, rec.Body.String(), "loading")
	assert.Equal(t, []string{"tok-1"}, f.idp.revokes)
}

func TestGate_PlaceholderNotUsedWhenFast(t *testing.T) {
	f := newGateFixture(t, time.Second)

	rec := f.do(http.MethodGet, "/account/api_key", "tok-1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1 a@example.com", rec.Body.String())
}

func TestGate_ClientGoneAborts(t *testing.T) {
	f := newGateFixture(t, 0)
	f.idp.delay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/account/api_key", nil).WithContext(ctx)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: "tok-1"})
	rec := httptest.NewRecorder()

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	f.router.ServeHTTP(rec, req)

	assert.NotContains(t, rec.Body.String(), "u1")
	assert.NotEqual(t, http.StatusFound, rec.Code)
}

func TestGate_GuardWithHook(t *testing.T) {
	f := newGateFixture(t, 0)

	var got []string
	var mu sync.Mutex
	hooked := f.gate.Controller().WithOnResolved(func(_ context.Context, id auth.Identity) {
		mu.Lock()
		got = append(got, id.ID)
		mu.Unlock()
	})
	f.router.GET("/hooked", f.gate.GuardWith(hooked, hooked.GuestOnly()), func(c *gin.Context) {
		c.String(http.StatusOK, "guest")
	})

	rec := f.do(http.MethodGet, "/hooked", "tok-1")
	assert.Equal(t, http.StatusFound, rec.Code)

	rec = f.do(http.MethodGet, "/hooked", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == "u1"
	}, time.Second, 5*time.Millisecond)
}

func TestPropsFromContext_Missing(t *testing.T) {
	_, ok := PropsFromContext(context.Background())
	assert.False(t, ok)

	_, ok = IdentityFromContext(withProps(context.Background(), gate.Props{}))
	assert.False(t, ok)
}

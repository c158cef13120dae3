package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func newLimitedRouter(t *testing.T, r rate.Limit, burst int) (*gin.Engine, *RateLimiter) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	rl := NewRateLimiter(ctx, r, burst)
	e := gin.New()
	e.Use(rl.Middleware())
	e.POST("/auth/login", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return e, rl
}

func post(e *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	e, _ := newLimitedRouter(t, rate.Limit(10), 10)

	assert.Equal(t, http.StatusOK, post(e, "10.0.0.1:1234").Code)
}

func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	// 1 req/s, burst 1: second request should be rejected
	e, _ := newLimitedRouter(t, rate.Limit(1), 1)

	assert.Equal(t, http.StatusOK, post(e, "10.0.0.1:1234").Code)

	rec := post(e, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRateLimiter_PerIP(t *testing.T) {
	e, _ := newLimitedRouter(t, rate.Limit(1), 1)

	assert.Equal(t, http.StatusOK, post(e, "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, post(e, "10.0.0.2:1234").Code)
}

func TestRateLimiter_SweepRemovesStale(t *testing.T) {
	e, rl := newLimitedRouter(t, rate.Limit(1), 1)
	post(e, "10.0.0.1:1234")

	rl.sweep(time.Now())
	assert.Len(t, rl.limiters, 1)

	rl.sweep(time.Now().Add(6 * time.Minute))
	assert.Empty(t, rl.limiters)
}

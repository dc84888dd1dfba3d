package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/logcatd/internal/server/middleware"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { //nolint:gochecknoglobals // test fixture
	w.WriteHeader(http.StatusOK)
})

func fromAddr(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = addr
	return req
}

// ===========================================================================
// 1. RateLimitByIP middleware
// ===========================================================================

func TestRateLimitByIP_FirstRequest_Passes(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := middleware.RateLimitByIP(ctx, 1, 1)(okHandler)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, fromAddr("10.0.0.1:5000"))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitByIP_BurstExceeded_Returns429(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Very low rate (effectively zero refill during the test) with burst of 2.
	handler := middleware.RateLimitByIP(ctx, 0.001, 2)(okHandler)

	for i := range 2 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, fromAddr("10.0.0.1:5000"))
		require.Equalf(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, fromAddr("10.0.0.1:5000"))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
	assert.Equal(t, "1000", rec.Header().Get("Retry-After"))
}

func TestRateLimitByIP_PortIgnored(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := middleware.RateLimitByIP(ctx, 0.001, 1)(okHandler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, fromAddr("10.0.0.1:5000"))
	require.Equal(t, http.StatusOK, rec.Code)

	// Same host on a new connection shares the budget.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, fromAddr("10.0.0.1:5001"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimitByIP_IndependentPerIP(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := middleware.RateLimitByIP(ctx, 0.001, 1)(okHandler)

	recA := httptest.NewRecorder()
	handler.ServeHTTP(recA, fromAddr("10.0.0.1:5000"))
	require.Equal(t, http.StatusOK, recA.Code)

	recA2 := httptest.NewRecorder()
	handler.ServeHTTP(recA2, fromAddr("10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, recA2.Code)

	// RealIP leaves a bare address without a port.
	recB := httptest.NewRecorder()
	handler.ServeHTTP(recB, fromAddr("192.168.1.9"))
	assert.Equal(t, http.StatusOK, recB.Code)
}

func TestRateLimitByIP_IdleClientsForgotten(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		now = time.Date(2024, time.August, 20, 12, 0, 0, 0, time.UTC)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	budgets := middleware.NewBudgets(0.0001, 1, clock)
	handler := budgets.Middleware(okHandler)

	for _, addr := range []string{"10.0.0.1:5000", "10.0.0.2:5000"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, fromAddr(addr))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	advance(20 * time.Minute)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, fromAddr("10.0.0.2:5000"))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	advance(15 * time.Minute)
	assert.Equal(t, 1, budgets.Forget(30*time.Minute))

	// A forgotten client starts over with a full bucket.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, fromAddr("10.0.0.1:5000"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// ===========================================================================
// 2. RequestLogger middleware
// ===========================================================================

func TestRequestLogger_PassesThrough(t *testing.T) {
	t.Parallel()

	teapot := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})
	handler := chimw.RequestID(middleware.RequestLogger(teapot))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}

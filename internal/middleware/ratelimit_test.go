package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// The rate limiter guards the render path: each page request costs one
// upstream Next.js render, so a burst of inbound requests translates
// directly into upstream load.
func TestRateLimiter_CapsPageRequests(t *testing.T) {
	e := echo.New()

	// 1 request per second, burst of 1, so follow-up requests are rejected.
	store := echomw.NewRateLimiterMemoryStore(rate.Limit(1))
	e.Use(echomw.RateLimiter(store))
	e.GET("/*", func(c echo.Context) error {
		return c.HTML(http.StatusOK, "<html></html>")
	})

	req := httptest.NewRequest(http.MethodGet, "/products/1", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", rec.Code, http.StatusOK)
	}

	got429 := false
	for range 10 {
		req = httptest.NewRequest(http.MethodGet, "/products/1", http.NoBody)
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			got429 = true
			break
		}
	}
	if !got429 {
		t.Error("expected at least one 429 response after burst, got none")
	}
}

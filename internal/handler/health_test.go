package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"nextjs-proxy-go/internal/config"
)

func TestHealthz(t *testing.T) {
	h := NewHealthHandler(&config.Config{}, Version("1.2.3"))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Healthz(c); err != nil {
		t.Fatalf("Healthz() error = %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{BaseURL: "http://localhost:3000"},
		Dev:      config.DevConfig{Enabled: true},
	}
	h := NewHealthHandler(cfg, Version("1.2.3"))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/status", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.Status(c); err != nil {
		t.Fatalf("Status() error = %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["version"] != "1.2.3" {
		t.Errorf("version = %v, want 1.2.3", body["version"])
	}
	if body["upstream_url"] != "http://localhost:3000" {
		t.Errorf("upstream_url = %v", body["upstream_url"])
	}
	if body["dev_tunnel"] != true {
		t.Errorf("dev_tunnel = %v, want true", body["dev_tunnel"])
	}
}

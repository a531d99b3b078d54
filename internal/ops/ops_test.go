package ops

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hostgate/internal/config"
	"hostgate/internal/metrics"
)

func newTestEcho(t *testing.T, metricsEnabled bool) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Proxy:   config.ProxyConfig{Listen: "127.0.0.1:3000", Target: "127.0.0.1:3001"},
		Metrics: config.MetricsConfig{Enabled: metricsEnabled, Path: "/metrics"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	return NewEcho(cfg, logger, m, NewHealthHandler(cfg, "test"))
}

func TestNewEcho_Routes(t *testing.T) {
	e := newTestEcho(t, true)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/healthz", http.StatusOK},
		{"/proxy/status", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestNewEcho_MetricsExposition(t *testing.T) {
	e := newTestEcho(t, true)

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "hostgate_connections_accepted_total") {
		t.Error("metrics exposition missing hostgate_connections_accepted_total")
	}
}

func TestNewEcho_MetricsDisabled(t *testing.T) {
	e := newTestEcho(t, false)

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /metrics = %d, want %d when disabled", rec.Code, http.StatusNotFound)
	}
}

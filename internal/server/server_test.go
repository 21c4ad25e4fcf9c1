package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/taspa/console/internal/health"
	"github.com/taspa/console/internal/log"
	"github.com/taspa/console/internal/metrics"
)

type staticChecker struct {
	name   string
	result *health.Result
}

func (c staticChecker) Name() string { return c.name }
func (c staticChecker) Check(context.Context) *health.Result { return c.result }

func TestNewServerDefaults(t *testing.T) {
	s := NewServer(health.NewProbeManager("1.0.0"), Config{Address: "127.0.0.1:0"})

	if s.shutdownTimeout != 5*time.Second {
		t.Errorf("default shutdown timeout: expected 5s, got %v", s.shutdownTimeout)
	}
	if s.httpServer.ReadTimeout != 10*time.Second {
		t.Errorf("default read timeout: expected 10s, got %v", s.httpServer.ReadTimeout)
	}
	if s.httpServer.IdleTimeout != 60*time.Second {
		t.Errorf("default idle timeout: expected 60s, got %v", s.httpServer.IdleTimeout)
	}
}

func TestProbeEndpoints(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		checker      *health.Result
		initialized  bool
		expectedCode int
		expectedBody health.Status
	}{
		{"live", "/health/live", health.Unhealthy("down"), false, http.StatusOK, health.StatusHealthy},
		{"ready", "/health/ready", health.Healthy("ok"), false, http.StatusOK, health.StatusHealthy},
		{"ready while signed out", "/health/ready", health.Degraded("not signed in"), false, http.StatusOK, health.StatusDegraded},
		{"not ready", "/health/ready", health.Unhealthy("down"), false, http.StatusServiceUnavailable, health.StatusUnhealthy},
		{"starting", "/health/startup", health.Healthy("ok"), false, http.StatusServiceUnavailable, health.StatusUnhealthy},
		{"started", "/health/startup", health.Healthy("ok"), true, http.StatusOK, health.StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := health.NewProbeManager("1.0.0")
			pm.AddChecker(staticChecker{name: "api-reachable", result: tt.checker})
			if tt.initialized {
				pm.MarkInitialized()
			}
			s := NewServer(pm, Config{Logger: log.Discard()})

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.expectedCode {
				t.Errorf("status code: expected %d, got %d", tt.expectedCode, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("content type: expected application/json, got %q", ct)
			}

			var result health.ProbeResult
			if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if result.Status != tt.expectedBody {
				t.Errorf("health status: expected %s, got %s", tt.expectedBody, result.Status)
			}
			if result.Version != "1.0.0" {
				t.Errorf("version: expected 1.0.0, got %s", result.Version)
			}
		})
	}
}

func TestProbeEndpointsRejectOtherMethods(t *testing.T) {
	s := NewServer(health.NewProbeManager("1.0.0"), Config{Logger: log.Discard()})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health/live", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg, m := metrics.NewRegistry()
	m.IncLogin(true)
	s := NewServer(health.NewProbeManager("1.0.0"), Config{Metrics: metrics.HandlerFor(reg), Logger: log.Discard()})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "taspa_login_attempts_total") {
		t.Errorf("metrics output missing taspa_login_attempts_total:\n%s", body)
	}
}

func TestMetricsEndpointAbsent(t *testing.T) {
	s := NewServer(health.NewProbeManager("1.0.0"), Config{Logger: log.Discard()})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a metrics handler, got %d", rec.Code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	pm := health.NewProbeManager("1.0.0")
	s := NewServer(pm, Config{Address: "127.0.0.1:0", ShutdownTimeout: time.Second, Logger: log.Discard()})

	addr, err := s.Start()
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	resp, err := http.Get("http://" + addr.String() + "/health/live")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !s.IsShuttingDown() || !pm.IsShuttingDown() {
		t.Error("shutdown should mark server and probes as shutting down")
	}
}

package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lynn4am/transparent-gateway/internal/breaker"
	"github.com/lynn4am/transparent-gateway/internal/config"
	"github.com/lynn4am/transparent-gateway/internal/engine"
	"github.com/lynn4am/transparent-gateway/internal/logging"
	"github.com/lynn4am/transparent-gateway/internal/metrics"
)

func testApp(t *testing.T) *Application {
	t.Helper()
	cfg := config.Default()
	cfg.Providers = []config.ProviderConfig{{Name: "p1", BaseURL: "http://p1"}}

	registry := breaker.NewRegistry(breaker.Config{FailureThreshold: 3, ResetTimeout: time.Minute}, nil)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, registry)
	eng := engine.New(cfg.ToEngineConfig(), registry, logging.Nop{}, m)

	return New(cfg, eng, logging.Nop{}, reg)
}

func TestHandleHealthReturnsProviderList(t *testing.T) {
	a := testApp(t)

	req := httptest.NewRequest(http.MethodGet, "/_health", nil)
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "p1") {
		t.Fatalf("expected provider p1 listed, got %s", rec.Body.String())
	}
}

func TestHandleResetCircuitClearsBreakers(t *testing.T) {
	cfg := config.Default()
	cfg.Providers = []config.ProviderConfig{{Name: "p1", BaseURL: "http://p1"}}
	registry := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Hour}, nil)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, registry)
	eng := engine.New(cfg.ToEngineConfig(), registry, logging.Nop{}, m)
	a := New(cfg, eng, logging.Nop{}, reg)

	registry.Get("p1").RecordFailure()
	if !registry.Get("p1").IsOpen() {
		t.Fatalf("expected p1 open before reset")
	}

	req := httptest.NewRequest(http.MethodPost, "/_reset_circuit", nil)
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	if registry.Get("p1").IsOpen() {
		t.Fatalf("expected p1 closed after reset")
	}
}

func TestMetricsEndpointServesFromSameRegistry(t *testing.T) {
	cfg := config.Default()
	cfg.Providers = []config.ProviderConfig{{Name: "p1", BaseURL: "http://p1"}}
	registry := breaker.NewRegistry(breaker.Config{FailureThreshold: 3, ResetTimeout: time.Minute}, nil)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, registry)
	eng := engine.New(cfg.ToEngineConfig(), registry, logging.Nop{}, m)
	a := New(cfg, eng, logging.Nop{}, reg)

	// The breaker collector reports only breakers the registry has
	// created, so reference one before scraping.
	registry.Get("p1")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "gateway_circuit_breaker_open") {
		t.Fatalf("expected breaker metric family present in scrape output")
	}
}

func TestUnauthorizedProxyRequestReturns401(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.AccessToken = "secret"
	cfg.Providers = []config.ProviderConfig{{Name: "p1", BaseURL: "http://p1"}}
	registry := breaker.NewRegistry(breaker.Config{FailureThreshold: 3, ResetTimeout: time.Minute}, nil)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, registry)
	eng := engine.New(cfg.ToEngineConfig(), registry, logging.Nop{}, m)
	a := New(cfg, eng, logging.Nop{}, reg)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d", rec.Code)
	}
}

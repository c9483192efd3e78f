package pipeline

import (
	"net/http"
	"testing"
	"time"

	"github.com/lynn4am/transparent-gateway/internal/breaker"
	"github.com/lynn4am/transparent-gateway/internal/domain"
	"github.com/lynn4am/transparent-gateway/internal/selector"
)

func TestBuildAttemptOrderPutsPreferredFirst(t *testing.T) {
	p1 := domain.NewProvider("p1", "http://p1", "")
	p2 := domain.NewProvider("p2", "http://p2", "")
	p3 := domain.NewProvider("p3", "http://p3", "")
	cfg := testConfig(p1, p2, p3)
	registry := breaker.NewRegistry(breaker.Config{FailureThreshold: 3, ResetTimeout: time.Minute}, nil)

	order := BuildAttemptOrder(cfg, registry, selector.Result{Provider: p2, Index: 1})

	if order[0].Provider.Name != "p2" {
		t.Fatalf("expected preferred provider first, got %+v", order[0])
	}
}

func TestBuildAttemptOrderExcludesOpenNonFallback(t *testing.T) {
	p1 := domain.NewProvider("p1", "http://p1", "")
	p2 := domain.NewProvider("p2", "http://p2", "")
	p3 := domain.NewProvider("p3", "http://p3", "")
	cfg := testConfig(p1, p2, p3)
	registry := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Hour}, nil)
	registry.Get("p2").Trip()

	order := BuildAttemptOrder(cfg, registry, selector.Result{Provider: p1, Index: 0})

	for _, a := range order {
		if a.Provider.Name == "p2" {
			t.Fatalf("expected open non-fallback provider excluded from the attempt order")
		}
	}
}

func TestBuildAttemptOrderAlwaysIncludesFallback(t *testing.T) {
	p1 := domain.NewProvider("p1", "http://p1", "")
	p2 := domain.NewProvider("p2", "http://p2", "")
	cfg := testConfig(p1, p2)
	registry := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Hour}, nil)
	registry.Get("p2").Trip()

	order := BuildAttemptOrder(cfg, registry, selector.Result{Provider: p1, Index: 0})

	found := false
	for _, a := range order {
		if a.Provider.Name == "p2" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected fallback included even while its breaker is open")
	}
}

func TestBuildTargetURLIncludesQueryOnlyWhenPresent(t *testing.T) {
	p := domain.NewProvider("p1", "http://p1", "")

	if got := BuildTargetURL(p, "/v1/chat", ""); got != "http://p1/v1/chat" {
		t.Fatalf("got %q", got)
	}
	if got := BuildTargetURL(p, "/v1/chat", "stream=true"); got != "http://p1/v1/chat?stream=true" {
		t.Fatalf("got %q", got)
	}
}

func TestCopyResponseHeadersStripsHopByHop(t *testing.T) {
	src := http.Header{
		"Connection":   []string{"keep-alive"},
		"X-RateLimit":  []string{"100"},
		"Content-Type": []string{"application/json"},
	}
	dst := make(http.Header)
	copyResponseHeaders(dst, src)

	if _, ok := dst["Connection"]; ok {
		t.Fatalf("expected Connection stripped from response headers")
	}
	if dst.Get("X-RateLimit") != "100" {
		t.Fatalf("expected X-RateLimit preserved")
	}
	if dst.Get("Content-Type") != "application/json" {
		t.Fatalf("expected Content-Type preserved on the response side")
	}
}

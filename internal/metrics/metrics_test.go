package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/lynn4am/transparent-gateway/internal/breaker"
)

func TestObserveRequestIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	registry := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Minute}, nil)
	m := New(reg, registry)

	m.ObserveRequest("p1", "success", 10*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasCounterValue(families, "gateway_requests_total", 1) {
		t.Fatalf("expected gateway_requests_total to have a sample with value 1")
	}
}

func TestBreakerCollectorReflectsLiveState(t *testing.T) {
	reg := prometheus.NewRegistry()
	registry := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Hour}, nil)
	New(reg, registry)

	registry.Get("p1").RecordFailure()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasCounterValue(families, "gateway_circuit_breaker_open", 1) {
		t.Fatalf("expected gateway_circuit_breaker_open to report 1 for a tripped breaker")
	}
}

func hasCounterValue(families []*dto.MetricFamily, name string, want float64) bool {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, m := range fam.GetMetric() {
			switch {
			case m.Counter != nil && m.Counter.GetValue() == want:
				return true
			case m.Gauge != nil && m.Gauge.GetValue() == want:
				return true
			}
		}
	}
	return false
}

func TestMetricNamesUseGatewayPrefix(t *testing.T) {
	reg := prometheus.NewRegistry()
	registry := breaker.NewRegistry(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Minute}, nil)
	New(reg, registry)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if !strings.HasPrefix(fam.GetName(), "gateway_") {
			t.Fatalf("unexpected metric family name %q", fam.GetName())
		}
	}
}

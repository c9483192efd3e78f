package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidateRejectsEmptyProviderList(t *testing.T) {
	cfg := Default()
	cfg.Providers = nil

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for empty provider list")
	}
}

func TestValidateRejectsDuplicateProviderNames(t *testing.T) {
	cfg := Default()
	cfg.Providers = []ProviderConfig{
		{Name: "a", BaseURL: "http://a"},
		{Name: "a", BaseURL: "http://b"},
	}

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for duplicate provider names")
	}
}

func TestValidateRejectsMissingBaseURL(t *testing.T) {
	cfg := Default()
	cfg.Providers = []ProviderConfig{{Name: "a"}}

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for missing base_url")
	}
}

func TestValidateRejectsBadProbeProbability(t *testing.T) {
	cfg := Default()
	cfg.Gateway.Breaker.ProbeProbability = 1.5

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for out-of-range probe_probability")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got %v", err)
	}
}

func TestToEngineConfigNormalisesProviderBaseURL(t *testing.T) {
	cfg := Default()
	cfg.Providers = []ProviderConfig{{Name: "a", BaseURL: "http://a/"}}

	engineCfg := cfg.ToEngineConfig()

	if engineCfg.Providers[0].BaseURL != "http://a" {
		t.Fatalf("got %q", engineCfg.Providers[0].BaseURL)
	}
}

func TestLoadParsesDocumentedYAMLShape(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
gateway:
  access_token: secret-token
  timeout: 45
  circuit_breaker:
    failure_threshold: 7
    reset_timeout: 120
    probe_probability: 0.2
providers:
  - name: primary
    base_url: http://primary:8080/
    token: primary-token
  - name: fallback
    base_url: http://fallback:8080
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Gateway.AccessToken != "secret-token" {
		t.Fatalf("access_token: got %q", cfg.Gateway.AccessToken)
	}
	if cfg.Gateway.RequestTimeout != 45*time.Second {
		t.Fatalf("timeout: got %v", cfg.Gateway.RequestTimeout)
	}
	if cfg.Gateway.Breaker.FailureThreshold != 7 {
		t.Fatalf("failure_threshold: got %d", cfg.Gateway.Breaker.FailureThreshold)
	}
	if cfg.Gateway.Breaker.ResetTimeout != 120*time.Second {
		t.Fatalf("reset_timeout: got %v", cfg.Gateway.Breaker.ResetTimeout)
	}
	if cfg.Gateway.Breaker.ProbeProbability != 0.2 {
		t.Fatalf("probe_probability: got %v", cfg.Gateway.Breaker.ProbeProbability)
	}
	if len(cfg.Providers) != 2 || cfg.Providers[0].Name != "primary" || cfg.Providers[1].Name != "fallback" {
		t.Fatalf("providers: got %+v", cfg.Providers)
	}
}

func TestDefaultMatchesDocumentedDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Gateway.RequestTimeout != 60*time.Second {
		t.Fatalf("default timeout: got %v", cfg.Gateway.RequestTimeout)
	}
	if cfg.Gateway.Breaker.FailureThreshold != 5 {
		t.Fatalf("default failure_threshold: got %d", cfg.Gateway.Breaker.FailureThreshold)
	}
	if cfg.Gateway.Breaker.ResetTimeout != 600*time.Second {
		t.Fatalf("default reset_timeout: got %v", cfg.Gateway.Breaker.ResetTimeout)
	}
	if cfg.Gateway.Breaker.ProbeProbability != 0.05 {
		t.Fatalf("default probe_probability: got %v", cfg.Gateway.Breaker.ProbeProbability)
	}
}

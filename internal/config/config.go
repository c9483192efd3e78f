// Package config loads the gateway's YAML configuration via viper, the
// same library and layering (file, then OLLA_-style env override) olla's
// internal/config.Load uses, adapted here to the gateway's
// narrower surface: a server block, a list of providers in priority
// order, the shared breaker tuning, and logging.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lynn4am/transparent-gateway/internal/domain"
	"github.com/lynn4am/transparent-gateway/internal/logger"
)

const envPrefix = "GATEWAY"

// ServerConfig bounds the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// BreakerConfig mirrors domain.CircuitBreakerConfig in YAML-friendly form.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
	ProbeProbability float64       `mapstructure:"probe_probability"`
}

// GatewayConfig is the `gateway:` document block: access control, the
// per-attempt timeout, and breaker tuning, all scoped under one key the
// way the original Python loader reads `data["gateway"]`.
type GatewayConfig struct {
	AccessToken    string        `mapstructure:"access_token"`
	RequestTimeout time.Duration `mapstructure:"timeout"`
	Breaker        BreakerConfig `mapstructure:"circuit_breaker"`
}

// ProviderConfig is one entry in the priority-ordered provider list. The
// last entry in the YAML list is the fallback.
type ProviderConfig struct {
	Name    string `mapstructure:"name"`
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

// LoggingConfig is passed straight through to logger.Config.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	LogDir     string `mapstructure:"log_dir"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	FileOutput bool   `mapstructure:"file_output"`
	PrettyLogs bool   `mapstructure:"pretty_logs"`
}

// Config is the root configuration document.
type Config struct {
	Gateway   GatewayConfig    `mapstructure:"gateway"`
	Server    ServerConfig     `mapstructure:"server"`
	Providers []ProviderConfig `mapstructure:"providers"`
	Logging   LoggingConfig    `mapstructure:"logging"`
}

// Default returns the configuration used when no file or env override is
// present, matching the documented defaults: a 60s per-attempt timeout, a
// 5-failure trip threshold, a 600s auto-reset, and a 5% probe rate.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			RequestTimeout: 60 * time.Second,
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     600 * time.Second,
				ProbeProbability: 0.05,
			},
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Providers: []ProviderConfig{
			{Name: "local", BaseURL: "http://localhost:11434"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			LogDir:     "./logs",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			PrettyLogs: true,
		},
	}
}

// Load reads config.yaml from the working directory or ./config, layering
// GATEWAY_-prefixed environment variables on top, the same shape olla's
// own config loader layers OLLA_ over its config.yaml.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if envFile := os.Getenv(envPrefix + "_CONFIG_FILE"); envFile != "" {
			v.SetConfigFile(envFile)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config file %s: %w", envFile, err)
			}
		}
	}

	// Durations in the document are plain numbers of seconds; strings such
	// as "45s" are still parsed as Go durations.
	secondsHook := func(_ reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch n := data.(type) {
		case int:
			return time.Duration(n) * time.Second, nil
		case float64:
			return time.Duration(n * float64(time.Second)), nil
		case string:
			return time.ParseDuration(n)
		}
		return data, nil
	}
	if err := v.Unmarshal(cfg, viper.DecodeHook(secondsHook)); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the invariants the engine depends on holding before a
// single request is served: at least one provider, the last of which is
// the fallback.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("config: at least one provider is required")
	}
	seen := make(map[string]struct{}, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("config: provider name must not be empty")
		}
		if p.BaseURL == "" {
			return fmt.Errorf("config: provider %q: base_url must not be empty", p.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("config: duplicate provider name %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	if c.Gateway.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("config: gateway.circuit_breaker.failure_threshold must be at least 1")
	}
	if c.Gateway.Breaker.ProbeProbability < 0 || c.Gateway.Breaker.ProbeProbability > 1 {
		return fmt.Errorf("config: gateway.circuit_breaker.probe_probability must be in [0,1]")
	}
	return nil
}

// ToEngineConfig converts the loaded document into the domain value the
// engine consumes, normalising each provider's BaseURL via
// domain.NewProvider.
func (c *Config) ToEngineConfig() domain.EngineConfig {
	providers := make([]domain.Provider, len(c.Providers))
	for i, p := range c.Providers {
		providers[i] = domain.NewProvider(p.Name, p.BaseURL, p.Token)
	}
	return domain.EngineConfig{
		AccessToken:    c.Gateway.AccessToken,
		RequestTimeout: c.Gateway.RequestTimeout,
		Breaker: domain.CircuitBreakerConfig{
			FailureThreshold: c.Gateway.Breaker.FailureThreshold,
			ResetTimeout:     c.Gateway.Breaker.ResetTimeout,
			ProbeProbability: c.Gateway.Breaker.ProbeProbability,
		},
		Providers: providers,
	}
}

// ToLoggerConfig converts the logging block into logger.Config.
func (c *Config) ToLoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
		FileOutput: c.Logging.FileOutput,
		PrettyLogs: c.Logging.PrettyLogs,
	}
}

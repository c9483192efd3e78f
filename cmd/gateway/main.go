// Command gateway starts the reverse-proxy failover engine. Bootstrap is
// grounded in olla's main.go: build the logger first so every
// later failure can be logged, then construct the application, then wait
// on a cancellable context fed by SIGINT/SIGTERM before a bounded
// shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lynn4am/transparent-gateway/internal/app"
	"github.com/lynn4am/transparent-gateway/internal/breaker"
	"github.com/lynn4am/transparent-gateway/internal/config"
	"github.com/lynn4am/transparent-gateway/internal/engine"
	"github.com/lynn4am/transparent-gateway/internal/logger"
	"github.com/lynn4am/transparent-gateway/internal/metrics"
)

func main() {
	configFile := flag.String("config", "", "path to config.yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, cleanup, err := logger.New(cfg.ToLoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	log.Info("gateway_initialising", "pid", os.Getpid(), "providers", len(cfg.Providers))

	engineCfg := cfg.ToEngineConfig()

	registry := breaker.NewRegistry(breaker.Config{
		FailureThreshold: engineCfg.Breaker.FailureThreshold,
		ResetTimeout:     engineCfg.Breaker.ResetTimeout,
	}, func(providerName string) {
		log.Info("circuit_breaker", "provider", providerName, "action", "auto_reset")
	})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, registry)

	eng := engine.New(engineCfg, registry, log, m)
	application := app.New(cfg, eng, log, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("shutdown_signal_received", "signal", sig.String())
		cancel()
	}()

	if err := application.Start(ctx); err != nil {
		log.Error("gateway_start_failed", "error", err.Error())
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case err := <-application.Errors():
		log.Error("gateway_runtime_error", "error", err.Error())
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := application.Stop(stopCtx); err != nil {
		log.Error("gateway_shutdown_error", "error", err.Error())
	}

	log.Info("gateway_stopped")
}

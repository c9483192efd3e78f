// Package app wires the HTTP surface: chi routing for the proxy catch-all
// plus the operational endpoints (/_health, /_reset_circuit, /metrics),
// an access-logging middleware, and graceful start/stop. Adapted from
// olla's internal/app.Application (http.Server lifecycle, ListenAndServe
// in a goroutine feeding an error channel, Stop draining into a bounded
// shutdown context) with olla's http.ServeMux + custom RouteRegistry
// replaced by chi, the router the rest of this corpus (Iweisc-pxbin)
// reaches for.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lynn4am/transparent-gateway/internal/config"
	"github.com/lynn4am/transparent-gateway/internal/engine"
	"github.com/lynn4am/transparent-gateway/internal/logging"
)

// Application owns the HTTP listener and its lifecycle.
type Application struct {
	cfg      *config.Config
	engine   *engine.Engine
	log      logging.Logger
	gatherer prometheus.Gatherer
	server   *http.Server
	errCh    chan error
}

// New constructs an Application. The engine must already be fully wired
// (breaker registry, metrics) before it is handed here. gatherer is the
// registry /metrics scrapes; pass the same *prometheus.Registry the
// engine's metrics were registered against.
func New(cfg *config.Config, eng *engine.Engine, log logging.Logger, gatherer prometheus.Gatherer) *Application {
	a := &Application{
		cfg:      cfg,
		engine:   eng,
		log:      log,
		gatherer: gatherer,
		errCh:    make(chan error, 1),
	}

	a.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: a.routes(),
	}
	return a
}

func (a *Application) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(a.log))

	r.Get("/_health", a.handleHealth)
	r.Post("/_reset_circuit", a.handleResetCircuit)
	r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	r.Handle("/*", a.engine)

	return r
}

// Start begins serving HTTP in the background and returns immediately;
// a fatal listener error is delivered asynchronously via errCh, the same
// split olla's Start/errCh pair uses so the caller can select on
// both ctx.Done() and a startup failure.
func (a *Application) Start(ctx context.Context) error {
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http_server_error", "error", err.Error())
			a.errCh <- err
		}
	}()
	a.log.Info("gateway_started", "addr", a.server.Addr)
	return nil
}

// Errors exposes the async startup-failure channel.
func (a *Application) Errors() <-chan error {
	return a.errCh
}

// Stop drains in-flight requests within the configured shutdown timeout.
func (a *Application) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (a *Application) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := a.engine.Health()
	body, err := engine.MarshalHealth(snap)
	if err != nil {
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (a *Application) handleResetCircuit(w http.ResponseWriter, r *http.Request) {
	a.engine.ResetCircuits()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"reset"}`))
}

// requestLogger logs one line per request at Debug, after the handler
// returns, the way olla's EnhancedLoggingMiddleware wraps
// ResponseWriter to capture status and duration without touching the
// handler's own business logging.
func requestLogger(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)
			log.Debug("http_access",
				"method", r.Method, "path", r.URL.Path,
				"status", wrapped.status, "duration_ms", time.Since(start).Milliseconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Package engine implements the failover engine facade: the single entry
// point that classifies a request, dispatches it to the buffered or
// streaming pipeline, and manages request-scoped identity. It is grounded
// in olla's internal/app.proxyHandler / Application split: generate
// a request ID once, bind it to context, log start/finish, delegate the
// actual proxying to a narrower collaborator.
package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/lynn4am/transparent-gateway/internal/breaker"
	"github.com/lynn4am/transparent-gateway/internal/domain"
	"github.com/lynn4am/transparent-gateway/internal/inspector"
	"github.com/lynn4am/transparent-gateway/internal/logging"
	"github.com/lynn4am/transparent-gateway/internal/metrics"
	"github.com/lynn4am/transparent-gateway/internal/pipeline"
	"github.com/lynn4am/transparent-gateway/internal/selector"
	"github.com/lynn4am/transparent-gateway/pkg/requestid"
)

// Engine is the process-wide facade: config, breaker registry and logger
// are owned here and never mutated after construction. One Engine value
// is built at startup and a non-owning handle is shared across every
// request handler.
type Engine struct {
	cfg       domain.EngineConfig
	registry  *breaker.Registry
	log       logging.Logger
	metrics   *metrics.Metrics
	buffered  *pipeline.Buffered
	streaming *pipeline.Streaming
	rng       selector.Rand
}

// Option customises an Engine at construction time.
type Option func(*Engine)

// WithRand overrides the RNG the provider selector uses, for deterministic
// tests of probe behaviour.
func WithRand(rng selector.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// New constructs an Engine. registry must already be wired with cfg.Breaker
// (see breaker.NewRegistry); the engine does not own breaker
// construction, only its use, so the registry's auto-reset callback can be
// wired to the same logger before the engine exists. m may be nil, in
// which case breaker trips and request outcomes are simply not observed.
func New(cfg domain.EngineConfig, registry *breaker.Registry, log logging.Logger, m *metrics.Metrics, opts ...Option) *Engine {
	transport := pipeline.NewTransport(10 * time.Second)

	var trips pipeline.TripRecorder
	if m != nil {
		trips = m
	}

	e := &Engine{
		cfg:       cfg,
		registry:  registry,
		log:       log,
		metrics:   m,
		buffered:  pipeline.NewBuffered(transport, registry, log, trips),
		streaming: pipeline.NewStreaming(transport, registry, log, trips),
		rng:       selector.NewStdRand(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// synthetic error bodies written for the two failure paths this facade
// can reach on its own, without involving a provider response.
const (
	bodyUnauthorized = `{"error":"Unauthorized"}`
	bodyBadGatewayFmt = `{"error":"Bad Gateway"}`
)

// ServeHTTP implements the full request lifecycle: auth, body buffering
// and parse, dispatch, response. Every path ends in a written HTTP
// response; there is no panic or silently dropped connection.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := requestid.New()
	start := time.Now()
	log := e.log.With("req_id", reqID)

	if !inspector.IsAuthorized(r.Header, e.cfg.AccessToken) {
		log.Warn("auth_failed", "path", r.URL.Path)
		writeJSON(w, http.StatusUnauthorized, bodyUnauthorized)
		return
	}

	body, _ := io.ReadAll(r.Body)
	model, stream := inspector.ParseBody(body)

	log.Info("request_start", "method", r.Method, "path", r.URL.Path, "model", model, "stream", stream)

	rc := &domain.RequestContext{
		RequestID: reqID,
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.RawQuery,
		Headers:   cloneHeader(r.Header),
		Body:      body,
		Model:     model,
		Stream:    stream,
		StartTime: start,
	}

	pick := selector.Select(e.cfg.Providers, e.registry, e.cfg.Breaker.ProbeProbability, e.rng)
	order := pipeline.BuildAttemptOrder(e.cfg, e.registry, pick)

	if stream {
		e.serveStreaming(w, r.Context(), rc, order, log)
		return
	}
	e.serveBuffered(w, r.Context(), rc, order, log)
}

func (e *Engine) serveBuffered(w http.ResponseWriter, ctx context.Context, rc *domain.RequestContext, order []pipeline.Attempt, log logging.Logger) {
	result := e.buffered.Run(ctx, e.cfg, rc, order)

	if !result.Served {
		log.Error("all_providers_failed", "req_id", rc.RequestID)
		if e.metrics != nil {
			e.metrics.ObserveRequest("", "bad_gateway", time.Since(rc.StartTime))
		}
		writeJSON(w, http.StatusBadGateway, bodyBadGatewayFmt)
		return
	}

	for key, values := range result.Headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(result.StatusCode)
	_, _ = w.Write(result.Body)

	if e.metrics != nil {
		e.metrics.ObserveRequest(result.Provider, outcomeFor(result.StatusCode), time.Since(rc.StartTime))
	}
	log.Info("request_success",
		"provider", result.Provider, "status", result.StatusCode,
		"duration_ms", time.Since(rc.StartTime).Milliseconds())
}

func outcomeFor(status int) string {
	if status >= 500 {
		return "upstream_error"
	}
	return "success"
}

func (e *Engine) serveStreaming(w http.ResponseWriter, ctx context.Context, rc *domain.RequestContext, order []pipeline.Attempt, log logging.Logger) {
	commit := e.streaming.Commit(ctx, e.cfg, rc, order)

	if !commit.Committed {
		log.Error("all_providers_failed", "req_id", rc.RequestID)
		if e.metrics != nil {
			e.metrics.ObserveRequest("", "bad_gateway", time.Since(rc.StartTime))
		}
		writeJSON(w, http.StatusBadGateway, bodyBadGatewayFmt)
		return
	}
	defer commit.Body.Close()

	for key, values := range commit.Headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(commit.StatusCode)

	flusher, _ := w.(http.Flusher)
	written, err := pipeline.CopyStream(ctx, w, flusher, commit.Body)

	if err != nil && ctx.Err() == nil {
		// Genuine mid-stream failure after commit is not recovered:
		// propagate as a truncated response and log it, but the breaker
		// is never touched for this attempt again.
		log.Error("request_failure",
			"provider", commit.Provider, "failure_kind", "mid_stream",
			"error", err.Error(), "bytes_written", written)
		return
	}

	if e.metrics != nil {
		e.metrics.ObserveRequest(commit.Provider, "success", time.Since(rc.StartTime))
	}
	log.Info("request_success",
		"provider", commit.Provider, "status", commit.StatusCode,
		"bytes", written, "duration_ms", time.Since(rc.StartTime).Milliseconds())
}

func cloneHeader(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// HealthSnapshot is the read-only projection served by GET /_health.
type HealthSnapshot struct {
	Status    string                     `json:"status"`
	Providers []string                   `json:"providers"`
	Breakers  map[string]breaker.Status  `json:"circuit_breakers"`
}

// Health builds the /_health projection: overall status, the configured
// provider names, and the current status of every breaker the registry
// has created so far.
func (e *Engine) Health() HealthSnapshot {
	names := make([]string, 0, len(e.cfg.Providers))
	for _, p := range e.cfg.Providers {
		names = append(names, p.Name)
	}
	return HealthSnapshot{
		Status:    "ok",
		Providers: names,
		Breakers:  e.registry.Status(),
	}
}

// ResetCircuits implements POST /_reset_circuit.
func (e *Engine) ResetCircuits() {
	e.registry.ResetAll()
}

// MarshalHealth renders a HealthSnapshot the way olla's
// handler_health.go does: build the map/struct, then encode once.
func MarshalHealth(snap HealthSnapshot) ([]byte, error) {
	return json.Marshal(snap)
}

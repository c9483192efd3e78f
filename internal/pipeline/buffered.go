package pipeline

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/lynn4am/transparent-gateway/internal/breaker"
	"github.com/lynn4am/transparent-gateway/internal/domain"
	"github.com/lynn4am/transparent-gateway/internal/logging"
)

// BufferedResult is what the buffered pipeline hands back to the engine
// facade: everything needed to write the client response, plus which
// provider ultimately served it (Served=false if every attempt failed and
// the caller must synthesize a 502).
type BufferedResult struct {
	Headers    http.Header
	Body       []byte
	Provider   string
	StatusCode int
	Served     bool
}

// TripRecorder receives a notification every time a provider's breaker
// transitions from closed to open, letting the caller feed a counter
// (e.g. Prometheus) without the pipeline depending on any specific
// metrics backend.
type TripRecorder interface {
	ObserveTrip(provider string)
}

// Buffered implements the buffered pipeline: fully read each upstream
// response before deciding whether to fail over.
type Buffered struct {
	client   *http.Client
	registry *breaker.Registry
	log      logging.Logger
	trips    TripRecorder
}

// NewBuffered constructs a buffered pipeline sharing transport with the
// rest of the gateway. trips may be nil.
func NewBuffered(transport http.RoundTripper, registry *breaker.Registry, log logging.Logger, trips TripRecorder) *Buffered {
	return &Buffered{
		client:   &http.Client{Transport: transport},
		registry: registry,
		log:      log,
		trips:    trips,
	}
}

// Run attempts each candidate in order, returning the first non-5xx
// response it fully reads, or the last response seen if every candidate
// failed.
func (p *Buffered) Run(ctx context.Context, cfg domain.EngineConfig, rc *domain.RequestContext, order []Attempt) BufferedResult {
	var last *BufferedResult

	for _, attempt := range order {
		p.log.Info("request_forward",
			"req_id", rc.RequestID, "provider", attempt.Provider.Name,
			"attempt_index", attempt.Index, "is_probe", attempt.IsProbe)
		if attempt.IsProbe {
			p.log.Info("probe_attempt", "req_id", rc.RequestID, "provider", attempt.Provider.Name)
		}

		result, ok := p.attempt(ctx, cfg, rc, attempt)
		if !ok {
			continue // transport failure, already recorded against the breaker
		}

		if result.StatusCode < 500 {
			p.registry.Get(attempt.Provider.Name).RecordSuccess()
			if attempt.IsProbe {
				p.log.Info("probe_success", "req_id", rc.RequestID, "provider", attempt.Provider.Name)
			}
			result.Served = true
			return result
		}

		// 5xx: record failure (unless fallback) and remember the
		// response in case every provider fails this way.
		if !cfg.IsLast(attempt.Index) {
			b := p.registry.Get(attempt.Provider.Name)
			if b.RecordFailure() {
				p.log.Warn("circuit_breaker",
					"req_id", rc.RequestID, "provider", attempt.Provider.Name, "action", "opened",
					"failure_kind", string(domain.FailureUpstream), "failure_count", b.FailureCount())
				if p.trips != nil {
					p.trips.ObserveTrip(attempt.Provider.Name)
				}
			}
		}
		r := result
		last = &r
	}

	if last != nil {
		last.Served = true
		return *last
	}
	return BufferedResult{}
}

// attempt runs a single upstream round-trip. The bool return is false for
// a transport failure (already classified and recorded against the
// breaker), true for any received HTTP response regardless of status.
func (p *Buffered) attempt(ctx context.Context, cfg domain.EngineConfig, rc *domain.RequestContext, a Attempt) (BufferedResult, bool) {
	attemptCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	url := BuildTargetURL(a.Provider, rc.Path, rc.Query)
	req, err := http.NewRequestWithContext(attemptCtx, rc.Method, url, bytes.NewReader(rc.Body))
	if err != nil {
		p.failTransport(cfg, rc, a, domain.FailureRequest, err)
		return BufferedResult{}, false
	}
	applyHeaders(req, BuildForwardHeaders(rc.Headers, cfg.AccessToken, a.Provider))

	resp, err := p.client.Do(req)
	if err != nil {
		p.failTransport(cfg, rc, a, domain.ClassifyError(err), err)
		return BufferedResult{}, false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.failTransport(cfg, rc, a, domain.ClassifyError(err), err)
		return BufferedResult{}, false
	}

	headers := make(http.Header)
	copyResponseHeaders(headers, resp.Header)

	return BufferedResult{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    headers,
		Provider:   a.Provider.Name,
	}, true
}

// failTransport classifies and logs a transport-level failure and bumps
// the provider's breaker, unless it is the fallback — the fallback's own
// failures never trip its breaker.
func (p *Buffered) failTransport(cfg domain.EngineConfig, rc *domain.RequestContext, a Attempt, kind domain.FailureKind, err error) {
	p.log.Warn("request_failure",
		"req_id", rc.RequestID, "provider", a.Provider.Name,
		"failure_kind", string(kind), "error", err.Error())

	if cfg.IsLast(a.Index) {
		return
	}
	b := p.registry.Get(a.Provider.Name)
	if b.RecordFailure() {
		p.log.Warn("circuit_breaker",
			"req_id", rc.RequestID, "provider", a.Provider.Name, "action", "opened",
			"failure_kind", string(kind), "failure_count", b.FailureCount())
		if p.trips != nil {
			p.trips.ObserveTrip(a.Provider.Name)
		}
	}
}

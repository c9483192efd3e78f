package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lynn4am/transparent-gateway/internal/breaker"
	"github.com/lynn4am/transparent-gateway/internal/domain"
	"github.com/lynn4am/transparent-gateway/internal/logging"
)

// defaultStreamBufferSize matches olla's sherpa.DefaultStreamBufferSize.
const defaultStreamBufferSize = 8 * 1024

var streamBufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, defaultStreamBufferSize)
		return &buf
	},
}

// StreamCommit is returned once the pipeline has committed to a provider:
// its headers and status have already been validated as non-5xx, and Body
// must be copied to the client then closed by the caller.
type StreamCommit struct {
	Headers    http.Header
	Body       io.ReadCloser
	Provider   string
	StatusCode int
	Committed  bool
}

// Streaming implements the streaming pipeline: read headers only from
// each candidate, commit to the first non-5xx response, and never fail
// over once a single byte may have reached the client.
type Streaming struct {
	client   *http.Client
	registry *breaker.Registry
	log      logging.Logger
	trips    TripRecorder
}

// NewStreaming constructs a streaming pipeline sharing transport with the
// rest of the gateway. The client has no overall Timeout set — the
// request timeout only bounds the header phase; the body phase is bounded
// by client disconnect or upstream close. trips may be nil.
func NewStreaming(transport http.RoundTripper, registry *breaker.Registry, log logging.Logger, trips TripRecorder) *Streaming {
	return &Streaming{
		client:   &http.Client{Transport: transport},
		registry: registry,
		log:      log,
		trips:    trips,
	}
}

// Commit walks the attempt order, returning the response to stream to the
// client (Committed=true) or a zero value once every candidate's headers
// failed (Committed=false; the caller synthesizes a 502).
func (p *Streaming) Commit(ctx context.Context, cfg domain.EngineConfig, rc *domain.RequestContext, order []Attempt) StreamCommit {
	for _, attempt := range order {
		p.log.Info("request_forward",
			"req_id", rc.RequestID, "provider", attempt.Provider.Name,
			"attempt_index", attempt.Index, "is_probe", attempt.IsProbe)
		if attempt.IsProbe {
			p.log.Info("probe_attempt", "req_id", rc.RequestID, "provider", attempt.Provider.Name)
		}

		// The timeout bounds only the header phase: a timer cancels
		// attemptCtx if headers haven't arrived in time, but is disarmed
		// the moment client.Do returns so a slow-trickling body isn't cut
		// off by the same deadline.
		attemptCtx, cancel := context.WithCancel(ctx)
		timer := time.AfterFunc(cfg.RequestTimeout, cancel)

		url := BuildTargetURL(attempt.Provider, rc.Path, rc.Query)
		req, err := http.NewRequestWithContext(attemptCtx, rc.Method, url, bytes.NewReader(rc.Body))
		if err != nil {
			timer.Stop()
			cancel()
			p.failTransport(cfg, rc, attempt, domain.FailureRequest, err)
			continue
		}
		applyHeaders(req, BuildForwardHeaders(rc.Headers, cfg.AccessToken, attempt.Provider))

		resp, err := p.client.Do(req)
		timer.Stop()
		if err != nil {
			cancel()
			p.failTransport(cfg, rc, attempt, domain.ClassifyError(err), err)
			continue
		}

		if resp.StatusCode >= 500 {
			drainAndClose(resp.Body)
			cancel()
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
			continue
		}

		// Committed: success from here on is unconditional for this
		// request, win or lose on the body phase.
		p.registry.Get(attempt.Provider.Name).RecordSuccess()
		if attempt.IsProbe {
			p.log.Info("probe_success", "req_id", rc.RequestID, "provider", attempt.Provider.Name)
		}

		headers := make(http.Header)
		copyResponseHeaders(headers, resp.Header)

		return StreamCommit{
			StatusCode: resp.StatusCode,
			Headers:    headers,
			Body:       &cancelOnCloseBody{ReadCloser: resp.Body, cancel: cancel},
			Provider:   attempt.Provider.Name,
			Committed:  true,
		}
	}

	return StreamCommit{}
}

// failTransport classifies and logs a transport-level failure before the
// header phase completes, and bumps the provider's breaker unless it is
// the fallback.
func (p *Streaming) failTransport(cfg domain.EngineConfig, rc *domain.RequestContext, a Attempt, kind domain.FailureKind, err error) {
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

// cancelOnCloseBody releases the header-phase context's cancel func when
// the committed response body is closed, guaranteeing the per-attempt
// client resources are released on every exit path.
type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnCloseBody) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

// CopyStream pipes src to dst using a pooled buffer, flushing after every
// chunk the way olla's sherpa streamResponseWithTimeout does, so
// token-by-token output isn't held up by Go's default buffering. A client
// disconnect (ctx canceled or write error) is a normal termination, not a
// failure — the caller must not record a breaker failure for it.
func CopyStream(ctx context.Context, dst io.Writer, flusher http.Flusher, src io.Reader) (int64, error) {
	bufPtr := streamBufferPool.Get().(*[]byte)
	defer streamBufferPool.Put(bufPtr)
	buf := *bufPtr

	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			wn, writeErr := dst.Write(buf[:n])
			written += int64(wn)
			if flusher != nil {
				flusher.Flush()
			}
			if writeErr != nil {
				return written, writeErr
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			return written, readErr
		}
	}
}

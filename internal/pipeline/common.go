// Package pipeline implements the two request pipelines, buffered and
// streaming. Both share the attempt-order construction, URL building, and
// header pipeline defined in this file; they differ only in how they
// consume the upstream response.
package pipeline

import (
	"io"
	"net/http"
	"strings"

	"github.com/lynn4am/transparent-gateway/internal/breaker"
	"github.com/lynn4am/transparent-gateway/internal/domain"
	"github.com/lynn4am/transparent-gateway/internal/inspector"
	"github.com/lynn4am/transparent-gateway/internal/selector"
)

// Attempt is one entry in the ordered list of providers a request will try.
type Attempt struct {
	Provider domain.Provider
	Index    int
	IsProbe  bool
}

// BuildAttemptOrder places the preferred provider first, then every other
// provider in priority order that is not currently open (the fallback is
// always included regardless of its breaker state).
func BuildAttemptOrder(cfg domain.EngineConfig, registry *breaker.Registry, preferred selector.Result) []Attempt {
	order := make([]Attempt, 0, len(cfg.Providers))
	order = append(order, Attempt{Provider: preferred.Provider, Index: preferred.Index, IsProbe: preferred.IsProbe})

	for i, p := range cfg.Providers {
		if i == preferred.Index {
			continue
		}
		if cfg.IsLast(i) || !registry.Get(p.Name).IsOpen() {
			order = append(order, Attempt{Provider: p, Index: i})
		}
	}
	return order
}

// BuildTargetURL concatenates a provider's base URL with the client path
// and, if present, the original query string.
func BuildTargetURL(provider domain.Provider, path, query string) string {
	var b strings.Builder
	b.WriteString(provider.BaseURL)
	b.WriteString(path)
	if query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	return b.String()
}

// BuildForwardHeaders runs the filter+rewrite pipeline for one attempt
// against provider.
func BuildForwardHeaders(headers http.Header, accessToken string, provider domain.Provider) http.Header {
	return inspector.BuildUpstreamHeaders(headers, accessToken, provider)
}

// applyHeaders copies src into req.Header, used when constructing the
// outbound *http.Request for an attempt.
func applyHeaders(req *http.Request, src http.Header) {
	req.Header = make(http.Header, len(src))
	for k, v := range src {
		req.Header[k] = v
	}
}

// copyResponseHeaders writes src's headers onto dst, used by both pipelines
// when committing to a response (the upstream body is never itself
// filtered — only headers pass through the hop-by-hop set).
func copyResponseHeaders(dst http.Header, src http.Header) {
	for key, values := range src {
		if _, skip := hopByHopSkip[strings.ToLower(key)]; skip {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

var hopByHopSkip = map[string]struct{}{
	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailers":            {},
	"transfer-encoding":   {},
	"upgrade":             {},
}

// drainAndClose reads and discards up to 64 KiB of body, then closes it,
// so the underlying connection can usually be reused, mirroring how olla always pairs a
// RoundTrip with resp.Body.Close() even on the failure paths it abandons.
func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}

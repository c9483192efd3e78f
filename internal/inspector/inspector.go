// Package inspector implements the request inspector: the access-token
// check, the best-effort JSON body parse for model/stream, the
// hop-by-hop header filter, and the token-substitution header rewrite
// performed per selected provider.
//
// It is adapted from olla's CopyHeaders/isHopByHopHeader
// (internal/adapter/proxy/core/common.go): same hop-by-hop set, same
// case-insensitive matching, generalised here to also rewrite a
// client-facing bearer token into the chosen provider's token rather than
// stripping credential headers outright.
package inspector

import (
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/lynn4am/transparent-gateway/internal/domain"
)

// hopByHop is the set of headers that apply only to a single transport hop
// and must never be forwarded. Keys are lower-cased for case-insensitive
// lookup.
var hopByHop = map[string]struct{}{
	"connection":          {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailers":            {},
	"transfer-encoding":   {},
	"upgrade":             {},
	"host":                {},
	"content-length":      {},
	"content-encoding":    {},
}

// IsAuthorized reports whether the request is authorized: authorized iff
// the configured token is empty, or some header value contains it as a
// substring. Keys are ignored — the scan is over values only.
func IsAuthorized(headers http.Header, accessToken string) bool {
	if accessToken == "" {
		return true
	}
	for _, values := range headers {
		for _, v := range values {
			if strings.Contains(v, accessToken) {
				return true
			}
		}
	}
	return false
}

// parsedBody is the minimal shape the body parse cares about; any other
// field is ignored and a non-object/non-UTF8/malformed body simply yields
// the zero value.
type parsedBody struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

// ParseBody extracts model and stream from a client request body. Any
// failure to parse as a JSON object yields (model="", stream=false)
// without an error — this is the normal "couldn't tell" case, not a
// client error.
func ParseBody(body []byte) (model string, stream bool) {
	if len(body) == 0 {
		return "", false
	}
	var parsed parsedBody
	if err := sonic.Unmarshal(body, &parsed); err != nil {
		return "", false
	}
	return parsed.Model, parsed.Stream
}

// FilterHeaders returns a copy of headers with every hop-by-hop entry
// removed. Key casing of the remaining headers is preserved exactly, as
// required for forwarding.
func FilterHeaders(headers http.Header) http.Header {
	out := make(http.Header, len(headers))
	for key, values := range headers {
		if _, skip := hopByHop[strings.ToLower(key)]; skip {
			continue
		}
		out[key] = append([]string(nil), values...)
	}
	return out
}

// RewriteTokens replaces every occurrence of accessToken in every header
// value with provider.Token. If accessToken is empty, headers pass
// through untouched. The input is mutated in place and also returned for
// chaining.
func RewriteTokens(headers http.Header, accessToken string, provider domain.Provider) http.Header {
	if accessToken == "" {
		return headers
	}
	for key, values := range headers {
		for i, v := range values {
			if strings.Contains(v, accessToken) {
				values[i] = strings.ReplaceAll(v, accessToken, provider.Token)
			}
		}
		headers[key] = values
	}
	return headers
}

// BuildUpstreamHeaders applies FilterHeaders then RewriteTokens, the
// per-attempt header pipeline both request pipelines rely on.
func BuildUpstreamHeaders(headers http.Header, accessToken string, provider domain.Provider) http.Header {
	return RewriteTokens(FilterHeaders(headers), accessToken, provider)
}

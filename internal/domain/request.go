package domain

import (
	"net/http"
	"time"
)

// RequestContext is the short-lived, per-request state owned by the engine
// facade for the lifetime of one client request. It is never shared
// across requests or goroutines.
type RequestContext struct {
	RequestID string
	Method    string
	Path      string
	Query     string
	Headers   http.Header
	Body      []byte
	Model     string
	Stream    bool
	StartTime time.Time
}

// HasModel reports whether the body parse discovered a model field.
func (r *RequestContext) HasModel() bool {
	return r.Model != ""
}

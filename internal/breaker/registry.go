package breaker

import (
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Status is a read-only snapshot of one provider's breaker.
type Status struct {
	IsOpen        bool          `json:"is_open"`
	FailureCount  int           `json:"failure_count"`
	RemainingTime time.Duration `json:"remaining_time"`
}

// Registry is the process-wide, lazily-populated map from provider name to
// Breaker. Breakers are created on first reference and live for the
// process lifetime — the registry never removes one.
//
// olla's domain.RequestProfile uses xsync.Map for the same reason this
// registry does: many goroutines read concurrently while a get-or-create
// path occasionally writes, and xsync.Map's sharded design avoids the
// coarse-grained lock a plain map+sync.Mutex would need on every lookup.
type Registry struct {
	breakers    *xsync.Map[string, *Breaker]
	cfg         Config
	onAutoReset AutoResetFunc
}

// NewRegistry creates a registry sharing cfg across every breaker it
// creates. onAutoReset, if non-nil, is wired into every breaker created by
// this registry.
func NewRegistry(cfg Config, onAutoReset AutoResetFunc) *Registry {
	return &Registry{
		breakers:    xsync.NewMap[string, *Breaker](),
		cfg:         cfg,
		onAutoReset: onAutoReset,
	}
}

// Get returns the canonical breaker for name, creating it on first
// reference. Concurrent callers racing to create the same breaker are
// guaranteed to observe the same instance thereafter.
func (r *Registry) Get(name string) *Breaker {
	if b, ok := r.breakers.Load(name); ok {
		return b
	}
	b, _ := r.breakers.LoadOrCompute(name, func() (*Breaker, bool) {
		return New(name, r.cfg, r.onAutoReset), false
	})
	return b
}

// Status returns a snapshot of every breaker the registry has created so
// far. A provider whose breaker was never referenced through Get simply
// has no entry, which is equivalent to "never opened" for reporting
// purposes.
func (r *Registry) Status() map[string]Status {
	out := make(map[string]Status)
	r.breakers.Range(func(name string, b *Breaker) bool {
		out[name] = Status{
			IsOpen:        b.TrippedAt() && b.RemainingTime() > 0,
			FailureCount:  b.FailureCount(),
			RemainingTime: b.RemainingTime(),
		}
		return true
	})
	return out
}

// ResetAll clears every breaker the registry has created. Wired to the
// POST /_reset_circuit operational endpoint.
func (r *Registry) ResetAll() {
	r.breakers.Range(func(_ string, b *Breaker) bool {
		b.Reset()
		return true
	})
}

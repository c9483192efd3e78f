// Package breaker implements the per-provider circuit breaker and the
// registry that owns one breaker per provider name for the life of the
// process. The design is adapted from olla's
// internal/adapter/health.CircuitBreaker: atomics over a mutex so the hot
// path (IsOpen/RecordSuccess/RecordFailure, called on every proxied
// request) never blocks on a lock, while still giving every method total,
// side-effect-documented behaviour.
package breaker

import (
	"sync/atomic"
	"time"
)

// AutoResetFunc is invoked at most once per open-to-closed transition that
// happens because the reset timeout naturally elapsed. It is never called
// for a manual Reset().
type AutoResetFunc func(providerName string)

// Config bounds a breaker's trip/reset behaviour.
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// Breaker is a single provider's circuit breaker. All methods are safe for
// concurrent use and total: none of them can fail.
type Breaker struct {
	onAutoReset AutoResetFunc
	name        string

	cfg Config

	failureCount int64
	trippedAtNs  int64 // 0 means "not tripped"
}

// New creates a breaker for providerName. cfg is copied into the breaker;
// a registry passes the same value to every breaker it creates.
func New(name string, cfg Config, onAutoReset AutoResetFunc) *Breaker {
	return &Breaker{
		name:        name,
		cfg:         cfg,
		onAutoReset: onAutoReset,
	}
}

// RecordFailure increments the failure counter and trips the breaker once
// the threshold is reached. It reports justOpened=true exactly once per
// open transition, the moment the count crosses the threshold, so callers
// can emit a single circuit_opened event per trip.
func (b *Breaker) RecordFailure() (justOpened bool) {
	count := atomic.AddInt64(&b.failureCount, 1)
	if int(count) >= b.cfg.FailureThreshold {
		atomic.StoreInt64(&b.trippedAtNs, time.Now().UnixNano())
		justOpened = int(count) == b.cfg.FailureThreshold
	}
	return justOpened
}

// RecordSuccess resets the failure counter. TrippedAt is left untouched: a
// success inside an open window does not itself close the breaker, which
// closes only via the reset timeout elapsing or a manual Reset.
func (b *Breaker) RecordSuccess() {
	atomic.StoreInt64(&b.failureCount, 0)
}

// Trip unconditionally opens the breaker.
func (b *Breaker) Trip() {
	atomic.StoreInt64(&b.trippedAtNs, time.Now().UnixNano())
}

// Reset clears both fields, manually closing the breaker.
func (b *Breaker) Reset() {
	atomic.StoreInt64(&b.trippedAtNs, 0)
	atomic.StoreInt64(&b.failureCount, 0)
}

// IsOpen reports whether the breaker currently suppresses traffic. If the
// reset timeout has elapsed since tripping, it auto-closes the breaker and
// fires onAutoReset exactly once for this transition before returning
// false.
func (b *Breaker) IsOpen() bool {
	trippedAt := atomic.LoadInt64(&b.trippedAtNs)
	if trippedAt == 0 {
		return false
	}

	if time.Since(time.Unix(0, trippedAt)) < b.cfg.ResetTimeout {
		return true
	}

	// The window has elapsed. Only the goroutine that successfully
	// clears trippedAtNs performs the auto-reset side effects, so
	// concurrent IsOpen() callers racing past expiry fire the callback
	// exactly once.
	if atomic.CompareAndSwapInt64(&b.trippedAtNs, trippedAt, 0) {
		atomic.StoreInt64(&b.failureCount, 0)
		if b.onAutoReset != nil {
			b.onAutoReset(b.name)
		}
	}
	return false
}

// FailureCount returns the current consecutive-failure count.
func (b *Breaker) FailureCount() int {
	return int(atomic.LoadInt64(&b.failureCount))
}

// RemainingTime returns how long the breaker remains open, or 0 if it is
// not currently tripped. It does not perform the auto-reset side effect —
// only IsOpen does.
func (b *Breaker) RemainingTime() time.Duration {
	trippedAt := atomic.LoadInt64(&b.trippedAtNs)
	if trippedAt == 0 {
		return 0
	}
	remaining := b.cfg.ResetTimeout - time.Since(time.Unix(0, trippedAt))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TrippedAt reports whether the breaker has a trip timestamp set, without
// evaluating or clearing expiry (used by status snapshots that must not
// have an observer side effect).
func (b *Breaker) TrippedAt() bool {
	return atomic.LoadInt64(&b.trippedAtNs) != 0
}

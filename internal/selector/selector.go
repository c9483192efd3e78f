// Package selector implements the provider selector: pick a preferred
// provider given the current breaker states, with probabilistic probing
// of an open breaker to test recovery. It is grounded in olla's
// balancer.PrioritySelector (priority order, first-routable-wins)
// generalised with a probe draw olla's own selectors don't need,
// because olla has no circuit breaker on the selection path itself
// (breaker state lives one layer up, in its health checker).
package selector

import (
	"math/rand"

	"github.com/lynn4am/transparent-gateway/internal/breaker"
	"github.com/lynn4am/transparent-gateway/internal/domain"
)

// Rand is the narrow RNG surface the selector needs, so tests can supply a
// deterministic source and pin the probe draw to an exact value.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// stdRand adapts math/rand's package-level functions to Rand.
type stdRand struct{}

func (stdRand) Float64() float64 { return rand.Float64() }
func (stdRand) Intn(n int) int   { return rand.Intn(n) }

// NewStdRand returns the default, process-global math/rand source.
func NewStdRand() Rand { return stdRand{} }

// Result is the selector's output: the chosen provider, its index in the
// priority list, and whether this selection is a probe of an open breaker.
type Result struct {
	Provider domain.Provider
	Index    int
	IsProbe  bool
}

// Select runs the two-step selection algorithm: first an optional probe
// draw against an open, non-fallback breaker, then a priority scan for
// the first non-open provider. providers must be non-empty; registry
// supplies breaker state; rng drives both the probe coin-flip and the
// uniform pick among open-breaker candidates.
func Select(providers []domain.Provider, registry *breaker.Registry, probeProbability float64, rng Rand) Result {
	n := len(providers)

	if rng.Float64() < probeProbability {
		var candidates []int
		for i := 0; i < n-1; i++ {
			if registry.Get(providers[i].Name).IsOpen() {
				candidates = append(candidates, i)
			}
		}
		if len(candidates) > 0 {
			idx := candidates[rng.Intn(len(candidates))]
			return Result{Provider: providers[idx], Index: idx, IsProbe: true}
		}
	}

	for i := 0; i < n; i++ {
		if i == n-1 {
			// The fallback is always returnable regardless of its
			// breaker state.
			return Result{Provider: providers[i], Index: i, IsProbe: false}
		}
		if !registry.Get(providers[i].Name).IsOpen() {
			return Result{Provider: providers[i], Index: i, IsProbe: false}
		}
	}

	// Unreachable: the loop above always returns by i == n-1.
	return Result{Provider: providers[n-1], Index: n - 1, IsProbe: false}
}

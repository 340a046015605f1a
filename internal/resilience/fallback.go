package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrAllFailed is returned when every entry in a [FallbackGroup] failed or
	// was skipped.
	ErrAllFailed = errors.New("all fallbacks failed")

	// ErrNotApplicable marks an entry that cannot serve this particular call,
	// as opposed to one that broke. [Execute] moves on to the next entry
	// without counting it against the breaker or reporting a fallback.
	ErrNotApplicable = errors.New("not applicable")
)

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds interchangeable values tried in registration order.
// Entries must be added before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	entries    []fallbackEntry[T]
	cfg        BreakerConfig
	onFallback func(name string, err error)
}

// NewFallbackGroup creates an empty group. Each entry added later gets its
// own breaker built from cfg.
func NewFallbackGroup[T any](cfg BreakerConfig) *FallbackGroup[T] {
	return &FallbackGroup[T]{cfg: cfg}
}

// Add appends an entry. Earlier entries are preferred.
func (g *FallbackGroup[T]) Add(name string, value T) {
	cfg := g.cfg
	cfg.Name = name
	g.entries = append(g.entries, fallbackEntry[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cfg),
	})
}

// OnFallback registers fn to be called whenever an entry fails or its
// breaker rejects the call and the next one is tried. Entries that return
// [ErrNotApplicable] are not reported.
func (g *FallbackGroup[T]) OnFallback(fn func(name string, err error)) {
	g.onFallback = fn
}

// Names returns the entry names in preference order.
func (g *FallbackGroup[T]) Names() []string {
	names := make([]string, len(g.entries))
	for i, e := range g.entries {
		names[i] = e.name
	}
	return names
}

// BreakerState reports the breaker state of the named entry.
func (g *FallbackGroup[T]) BreakerState(name string) (State, bool) {
	for _, e := range g.entries {
		if e.name == name {
			return e.breaker.State(), true
		}
	}
	return StateClosed, false
}

// Execute tries fn against each entry until one succeeds and returns its
// result together with the name of the entry that produced it. It is a
// package-level function because methods cannot declare type parameters.
func Execute[T, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, string, error) {
	var zero R
	if len(g.entries) == 0 {
		return zero, "", fmt.Errorf("%w: group is empty", ErrAllFailed)
	}

	var lastErr error
	for i := range g.entries {
		e := &g.entries[i]
		var result R
		err := e.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(e.value)
			return innerErr
		})
		if err == nil {
			return result, e.name, nil
		}
		lastErr = err
		if errors.Is(err, ErrNotApplicable) {
			slog.Debug("fallback entry not applicable", "entry", e.name, "err", err)
			continue
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("fallback entry skipped (circuit open)", "entry", e.name)
		} else {
			slog.Warn("fallback entry failed, trying next", "entry", e.name, "err", err)
		}
		if g.onFallback != nil {
			g.onFallback(e.name, err)
		}
	}
	return zero, "", fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

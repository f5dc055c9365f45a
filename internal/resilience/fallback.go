package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/tradein/internal/observe"
)

// ErrAllFailed is returned when every entry of a [Fallback] failed or had an
// open breaker.
var ErrAllFailed = errors.New("resilience: all sources failed")

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// Fallback tries an ordered list of interchangeable sources. Each entry has
// its own [CircuitBreaker]; entries with an open breaker are skipped.
type Fallback[T any] struct {
	entries []fallbackEntry[T]
	cfg     CircuitBreakerConfig
}

// NewFallback creates a [Fallback] whose first entry is primary. cfg is the
// template for every entry's breaker; its Name is replaced per entry.
func NewFallback[T any](primaryName string, primary T, cfg CircuitBreakerConfig) *Fallback[T] {
	f := &Fallback[T]{cfg: cfg}
	f.Add(primaryName, primary)
	return f
}

// Add appends a source tried after every previously added one.
func (f *Fallback[T]) Add(name string, value T) {
	cfg := f.cfg
	cfg.Name = name
	f.entries = append(f.entries, fallbackEntry[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cfg),
	})
}

// Len returns the number of registered sources.
func (f *Fallback[T]) Len() int { return len(f.entries) }

// Do calls fn on each source in order and returns the first successful
// result. When every source fails the errors are joined under
// [ErrAllFailed].
func Do[T, R any](ctx context.Context, f *Fallback[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for i := range f.entries {
		e := &f.entries[i]
		var out R
		err := e.breaker.Execute(func() error {
			var err error
			out, err = fn(ctx, e.value)
			return err
		})
		if err == nil {
			if i > 0 {
				observe.Logger(ctx).Info("fallback source used", "source", e.name)
			}
			return out, nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			observe.Logger(ctx).Debug("skipping source with open breaker", "source", e.name)
		} else {
			observe.Logger(ctx).Warn("source failed", "source", e.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		if ctx.Err() != nil {
			break
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

package resilience

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrWong99/tradein/internal/lead"
)

// LeadStore is a [lead.Store] guarded by a [CircuitBreaker]. While the
// breaker is open, calls fail fast with [ErrCircuitOpen] instead of waiting
// for the store's timeout on every turn.
type LeadStore struct {
	next    lead.Store
	breaker *CircuitBreaker
}

var _ lead.Store = (*LeadStore)(nil)

// NewLeadStore wraps next. Client errors (4xx replies) do not count towards
// opening the breaker: they mean the request was bad, not that the store is
// down. cfg.Counts overrides that rule when set.
func NewLeadStore(next lead.Store, cfg CircuitBreakerConfig) *LeadStore {
	if cfg.Name == "" {
		cfg.Name = "lead-store"
	}
	if cfg.Counts == nil {
		cfg.Counts = leadFailure
	}
	return &LeadStore{next: next, breaker: NewCircuitBreaker(cfg)}
}

func leadFailure(err error) bool {
	if !countsAsFailure(err) {
		return false
	}
	var se *lead.StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// Update implements [lead.Store].
func (s *LeadStore) Update(ctx context.Context, p lead.Payload) (lead.Response, error) {
	var resp lead.Response
	err := s.breaker.Execute(func() error {
		var err error
		resp, err = s.next.Update(ctx, p)
		return err
	})
	return resp, err
}

// Submit implements [lead.Store].
func (s *LeadStore) Submit(ctx context.Context, req lead.SubmitRequest) (lead.Response, error) {
	var resp lead.Response
	err := s.breaker.Execute(func() error {
		var err error
		resp, err = s.next.Submit(ctx, req)
		return err
	})
	return resp, err
}

// State reports the breaker state.
func (s *LeadStore) State() State { return s.breaker.State() }

// Package mock provides an in-memory test double for [lead.Store].
//
// [Store] records every call and exposes exported fields that control what it
// returns. It is safe for concurrent use.
//
// Typical usage:
//
//	s := &mock.Store{UpdateErr: errors.New("store down")}
//	// inject s into the system under test …
//	if got := len(s.Updates()); got != 1 {
//	    t.Errorf("expected 1 update, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tradein/internal/lead"
)

// Store is a configurable test double for [lead.Store].
type Store struct {
	mu sync.Mutex

	// UpdateResult is returned by [Store.Update] when UpdateErr is nil.
	UpdateResult lead.Response

	// UpdateErr is returned by [Store.Update] when non-nil.
	UpdateErr error

	// SubmitResult is returned by [Store.Submit] when SubmitErr is nil.
	SubmitResult lead.Response

	// SubmitErr is returned by [Store.Submit] when non-nil.
	SubmitErr error

	updates []lead.Payload
	submits []lead.SubmitRequest
}

var _ lead.Store = (*Store)(nil)

// Update implements [lead.Store].
func (s *Store) Update(_ context.Context, p lead.Payload) (lead.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, p)
	if s.UpdateErr != nil {
		return lead.Response{}, s.UpdateErr
	}
	return s.UpdateResult, nil
}

// Submit implements [lead.Store].
func (s *Store) Submit(_ context.Context, req lead.SubmitRequest) (lead.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits = append(s.submits, req)
	if s.SubmitErr != nil {
		return lead.Response{}, s.SubmitErr
	}
	return s.SubmitResult, nil
}

// Updates returns a copy of every payload passed to Update.
func (s *Store) Updates() []lead.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lead.Payload(nil), s.updates...)
}

// Submits returns a copy of every request passed to Submit.
func (s *Store) Submits() []lead.SubmitRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lead.SubmitRequest(nil), s.submits...)
}

// Reset clears recorded calls.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = nil
	s.submits = nil
}

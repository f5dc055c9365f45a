package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/tradein/internal/lead"
	"github.com/MrWong99/tradein/internal/lead/mock"
	"github.com/MrWong99/tradein/internal/resilience"
)

func TestLeadStore_OpensOnServerErrors(t *testing.T) {
	t.Parallel()

	inner := &mock.Store{UpdateErr: &lead.StatusError{Op: "update", StatusCode: 503, Body: "down"}}
	s := resilience.NewLeadStore(inner, resilience.CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})
	ctx := context.Background()

	for range 2 {
		if _, err := s.Update(ctx, lead.Payload{SessionID: "s1"}); err == nil {
			t.Fatal("expected error")
		}
	}
	if s.State() != resilience.StateOpen {
		t.Fatalf("state = %v, want open", s.State())
	}
	if _, err := s.Submit(ctx, lead.SubmitRequest{SessionID: "s1"}); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("Submit err = %v, want ErrCircuitOpen", err)
	}
	if n := len(inner.Submits()); n != 0 {
		t.Errorf("inner submits = %d, want 0 while open", n)
	}
}

func TestLeadStore_ClientErrorsDoNotTrip(t *testing.T) {
	t.Parallel()

	inner := &mock.Store{UpdateErr: &lead.StatusError{Op: "update", StatusCode: 400, Body: "bad"}}
	s := resilience.NewLeadStore(inner, resilience.CircuitBreakerConfig{MaxFailures: 1})
	for range 3 {
		_, err := s.Update(context.Background(), lead.Payload{SessionID: "s1"})
		var se *lead.StatusError
		if !errors.As(err, &se) {
			t.Fatalf("err = %v, want StatusError", err)
		}
	}
	if s.State() != resilience.StateClosed {
		t.Errorf("state = %v, want closed", s.State())
	}
	if n := len(inner.Updates()); n != 3 {
		t.Errorf("inner updates = %d, want 3", n)
	}
}

func TestLeadStore_PassesResponses(t *testing.T) {
	t.Parallel()

	sent := true
	inner := &mock.Store{
		UpdateResult: lead.Response{Message: "saved"},
		SubmitResult: lead.Response{Message: "submitted", EmailSent: &sent},
	}
	s := resilience.NewLeadStore(inner, resilience.CircuitBreakerConfig{})
	ctx := context.Background()

	up, err := s.Update(ctx, lead.Payload{SessionID: "s1", Brand: "Sony"})
	if err != nil || up.Message != "saved" {
		t.Fatalf("Update = %+v, %v", up, err)
	}
	sub, err := s.Submit(ctx, lead.SubmitRequest{SessionID: "s1", Notify: true})
	if err != nil || sub.EmailSent == nil || !*sub.EmailSent {
		t.Fatalf("Submit = %+v, %v", sub, err)
	}
	if got := inner.Updates()[0].Brand; got != "Sony" {
		t.Errorf("forwarded brand = %q, want Sony", got)
	}
}

// Package lead talks to the hosted lead store that durably keeps trade-in
// leads and sends notification e-mails.
//
// Two calls exist: Update persists a partial snapshot of a session and Submit
// finalises it. Both are POSTs with a JSON body and an API key header; any 2xx
// is success. Callers treat every error from this package as a soft failure.
package lead

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrCannotSubmit is the sentinel wrapped by [PreconditionError].
var ErrCannotSubmit = errors.New("cannot submit")

// Store is the external lead store.
type Store interface {
	// Update sends a partial-update payload for one session.
	Update(ctx context.Context, p Payload) (Response, error)

	// Submit finalises a lead.
	Submit(ctx context.Context, req SubmitRequest) (Response, error)
}

// Payload is the partial-update body. Empty fields are omitted so the store
// only ever sees what has been collected.
type Payload struct {
	SessionID        string            `json:"sessionId"`
	Brand            string            `json:"brand,omitempty"`
	Model            string            `json:"model,omitempty"`
	Storage          string            `json:"storage,omitempty"`
	Condition        string            `json:"condition,omitempty"`
	ContactName      string            `json:"contactName,omitempty"`
	ContactPhone     string            `json:"contactPhone,omitempty"`
	ContactPhoneE164 string            `json:"contactPhoneE164,omitempty"`
	ContactEmail     string            `json:"contactEmail,omitempty"`
	PreferredPayout  string            `json:"preferredPayout,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	Extra            map[string]string `json:"extra,omitempty"`
}

// SubmitRequest is the submission body. The orchestrator sends a session id;
// direct tool calls may send a free-text summary instead.
type SubmitRequest struct {
	SessionID string `json:"sessionId,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Notify    bool   `json:"notify"`
}

// Response is the decoded store reply.
type Response struct {
	Message string `json:"message"`

	// EmailSent is nil when the store did not report it.
	EmailSent *bool `json:"emailSent,omitempty"`
}

// StatusError is returned for a non-2xx reply.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("lead: %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// PreconditionError reports required fields that were missing at submission
// time.
type PreconditionError struct {
	Missing []string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCannotSubmit, missingPhrase(e.Missing))
}

func (e *PreconditionError) Unwrap() error { return ErrCannotSubmit }

// missingPhrase renders field names as "brand and model are missing" or
// "model is missing".
func missingPhrase(fields []string) string {
	switch len(fields) {
	case 0:
		return "nothing is missing"
	case 1:
		return fields[0] + " is missing"
	case 2:
		return fields[0] + " and " + fields[1] + " are missing"
	}
	return strings.Join(fields[:len(fields)-1], ", ") + " and " + fields[len(fields)-1] + " are missing"
}

// ErrDisabled is returned by every call on [Disabled].
var ErrDisabled = errors.New("lead: store disabled")

// Disabled is the [Store] used when no lead store is configured. Every call
// fails softly with [ErrDisabled].
type Disabled struct{}

func (Disabled) Update(context.Context, Payload) (Response, error) { return Response{}, ErrDisabled }

func (Disabled) Submit(context.Context, SubmitRequest) (Response, error) {
	return Response{}, ErrDisabled
}

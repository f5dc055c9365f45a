// Package autosave drives one user turn end to end: extraction, merge into the
// checklist, the partial-update call, confirmation detection and the
// conditional submission call.
//
// Every step is independently fallible. Lead store failures are logged and
// reported in the [Outcome] but never roll back in-memory state; the next
// successful save re-sends the full snapshot.
package autosave

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/tradein/internal/checklist"
	"github.com/MrWong99/tradein/internal/confirm"
	"github.com/MrWong99/tradein/internal/extract"
	"github.com/MrWong99/tradein/internal/lead"
	"github.com/MrWong99/tradein/internal/observe"
)

// Turn is one user utterance together with the assistant message it answers.
type Turn struct {
	User      string
	Assistant string
}

// CallResult reports one lead store call.
type CallResult struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message,omitempty"`
	EmailSent *bool  `json:"email_sent,omitempty"`
	Error     string `json:"error,omitempty"`

	err error
}

// Err returns the underlying error, if any.
func (c *CallResult) Err() error {
	if c == nil {
		return nil
	}
	return c.err
}

func newCallResult(resp lead.Response, err error) *CallResult {
	if err != nil {
		return &CallResult{Error: err.Error(), err: err}
	}
	return &CallResult{OK: true, Message: resp.Message, EmailSent: resp.EmailSent}
}

// ConfirmResult reports a confirmation trigger.
type ConfirmResult struct {
	Ready   bool              `json:"ready"`
	Missing []checklist.Field `json:"missing,omitempty"`

	// Duplicate is set when the session was already submitted.
	Duplicate bool `json:"duplicate,omitempty"`

	// Submit is nil when no submission was attempted.
	Submit *CallResult `json:"submit,omitempty"`

	// Error carries the cannot-submit outcome for an incomplete checklist.
	Error string `json:"error,omitempty"`
}

// Outcome summarises one processed turn.
type Outcome struct {
	SessionID string `json:"session_id"`

	// Extracted holds the fields newly written this turn, keyed by record
	// field name.
	Extracted map[checklist.Field]any `json:"extracted,omitempty"`

	IsTradeUp   bool           `json:"is_trade_up"`
	CurrentStep checklist.Step `json:"current_step"`

	// Save is nil when nothing new was extracted.
	Save *CallResult `json:"save,omitempty"`

	// Confirmation is nil unless the turn pair triggered.
	Confirmation *ConfirmResult `json:"confirmation,omitempty"`
}

// Option is a functional option for configuring an [Orchestrator].
type Option func(*Orchestrator)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithRegion sets the phone-number region used for E.164 formatting.
func WithRegion(region string) Option {
	return func(o *Orchestrator) {
		o.region = region
	}
}

// WithNotify sets the notify flag sent with submissions. Default: true.
func WithNotify(notify bool) Option {
	return func(o *Orchestrator) {
		o.notify = notify
	}
}

// Orchestrator processes turns. It holds no per-session state and is safe for
// concurrent use across sessions; turns of the same session must not overlap.
type Orchestrator struct {
	engine  atomic.Pointer[extract.Engine]
	store   lead.Store
	metrics *observe.Metrics
	region  string
	notify  bool
}

// New returns an [Orchestrator] that extracts with engine and persists to
// store.
func New(engine *extract.Engine, store lead.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  store,
		region: lead.DefaultRegion,
		notify: true,
	}
	o.engine.Store(engine)
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// SetEngine replaces the extraction engine used by subsequent turns.
func (o *Orchestrator) SetEngine(engine *extract.Engine) {
	o.engine.Store(engine)
}

// ProcessTurn runs the full per-turn pipeline against state. It always runs
// to completion; cancellation of ctx does not abort lead store calls already
// started.
func (o *Orchestrator) ProcessTurn(ctx context.Context, state *checklist.State, turn Turn) Outcome {
	start := time.Now()
	ctx = observe.WithSessionID(ctx, state.SessionID())
	ctx, span := observe.StartSpan(ctx, "autosave.turn")
	defer span.End()
	log := observe.Logger(ctx)

	out := Outcome{SessionID: state.SessionID()}

	// 1. Extract.
	res := o.engine.Load().Extract(turn.User, state)
	if res.TradeUp && !state.IsTradeUp() {
		state.SetTradeUp()
		log.Info("trade-up intent detected")
	}

	// 2. Merge.
	for _, f := range res.Fields {
		field := checklist.Canonical(f.Key)
		wrote, err := state.MarkFieldCollected(field, f.Value)
		if err != nil {
			log.Warn("autosave: merge field", "field", field, "err", err)
			continue
		}
		if !wrote {
			continue
		}
		if out.Extracted == nil {
			out.Extracted = make(map[checklist.Field]any)
		}
		out.Extracted[field] = f.Value
		o.metrics.RecordFieldExtracted(ctx, string(field))
	}
	state.Advance()
	if len(out.Extracted) == 0 {
		log.Debug("no new fields extracted")
	}

	// Lead calls outlive a cancelled request.
	callCtx := context.WithoutCancel(ctx)
	var g errgroup.Group

	// 3+4. Save.
	if len(out.Extracted) > 0 {
		payload := lead.BuildPayload(state.SessionID(), state.Record(), state.IsTradeUp(), o.region)
		g.Go(func() error {
			resp, err := o.call(callCtx, "update", func(ctx context.Context) (lead.Response, error) {
				return o.store.Update(ctx, payload)
			})
			out.Save = newCallResult(resp, err)
			if err != nil {
				log.Warn("autosave: lead update failed", "err", err)
			} else {
				log.Info("lead progress saved", "fields", len(out.Extracted))
			}
			return nil
		})
	}

	// 5. Confirmation and submission.
	decision := confirm.Detect(turn.User, turn.Assistant, state)
	if decision.Triggered() {
		out.Confirmation = o.confirmation(callCtx, &g, state, decision, log)
	}

	_ = g.Wait()

	if c := out.Confirmation; c != nil && c.Submit != nil && c.Submit.OK {
		if _, err := state.MarkFieldCollected(checklist.FieldSubmitted, true); err != nil {
			log.Warn("autosave: mark submitted", "err", err)
		}
	}
	out.CurrentStep = state.Advance()
	out.IsTradeUp = state.IsTradeUp()

	o.metrics.RecordTurn(ctx, time.Since(start).Seconds())
	return out
}

// confirmation handles a triggered turn pair. A submission, if any, is
// scheduled on g.
func (o *Orchestrator) confirmation(ctx context.Context, g *errgroup.Group, state *checklist.State, d confirm.Decision, log *slog.Logger) *ConfirmResult {
	res := &ConfirmResult{Ready: d.Ready, Missing: d.Missing}

	if state.Has(checklist.FieldSubmitted) {
		res.Duplicate = true
		o.metrics.RecordConfirmation(ctx, "duplicate")
		log.Info("confirmation ignored, lead already submitted")
		return res
	}
	if _, err := state.MarkFieldCollected(checklist.FieldRecap, true); err != nil {
		log.Warn("autosave: mark recap", "err", err)
	}

	if !d.Ready {
		names := make([]string, len(d.Missing))
		for i, f := range d.Missing {
			names[i] = string(f)
		}
		err := &lead.PreconditionError{Missing: names}
		res.Error = err.Error()
		o.metrics.RecordConfirmation(ctx, "incomplete")
		log.Warn("autosave: confirmation without required fields", "missing", names)
		return res
	}

	rec := state.Record()
	req := lead.SubmitRequest{SessionID: state.SessionID(), Notify: o.notify}
	g.Go(func() error {
		resp, err := o.call(ctx, "submit", func(ctx context.Context) (lead.Response, error) {
			return lead.SubmitValidated(ctx, o.store, rec, req)
		})
		res.Submit = newCallResult(resp, err)
		switch {
		case errors.Is(err, lead.ErrCannotSubmit):
			o.metrics.RecordConfirmation(ctx, "incomplete")
			log.Warn("autosave: submission rejected", "err", err)
		case err != nil:
			o.metrics.RecordConfirmation(ctx, "failed")
			log.Warn("autosave: lead submit failed", "err", err)
		default:
			o.metrics.RecordConfirmation(ctx, "submitted")
			log.Info("lead submitted", "email_sent", resp.EmailSent)
		}
		return nil
	})
	return res
}

// call times fn and records it as a lead call of kind.
func (o *Orchestrator) call(ctx context.Context, kind string, fn func(context.Context) (lead.Response, error)) (lead.Response, error) {
	ctx, span := observe.StartSpan(ctx, "lead."+kind)
	defer span.End()

	start := time.Now()
	resp, err := fn(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}
	o.metrics.RecordLeadCall(ctx, kind, status, time.Since(start).Seconds())
	return resp, err
}

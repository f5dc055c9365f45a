// Package tradein provides the trade-in tools exposed to the voice runtime.
//
// Five tools are exported via [Toolset.Tools]:
//   - "lookup_price": trade-in range and brand-new price for one device.
//   - "quote_top_up": deterministic top-up quote from a trade device to a new one.
//   - "get_checklist": snapshot of a session's collected fields and next step.
//   - "submit_lead": finalise a lead with an optional free-text summary.
//   - "normalize_speech": rewrite currency amounts for speech synthesis.
//
// Monetary summaries carry a "spoken" variant that is already normalized for
// speech. All handlers are safe for concurrent use.
package tradein

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/tradein/internal/checklist"
	"github.com/MrWong99/tradein/internal/lead"
	"github.com/MrWong99/tradein/internal/mcp/tools"
	"github.com/MrWong99/tradein/internal/observe"
	"github.com/MrWong99/tradein/internal/pricegrid"
	"github.com/MrWong99/tradein/internal/quote"
	"github.com/MrWong99/tradein/internal/speech"
)

// Option is a functional option for configuring a [Toolset].
type Option func(*Toolset)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(ts *Toolset) {
		ts.metrics = m
	}
}

// WithNotify sets the notify flag sent with submissions. Default: true.
func WithNotify(notify bool) Option {
	return func(ts *Toolset) {
		ts.notify = notify
	}
}

// Toolset binds the trade-in tools to their collaborators.
type Toolset struct {
	calc     *quote.Calculator
	sessions *checklist.Registry
	store    lead.Store
	metrics  *observe.Metrics
	notify   bool
}

// New returns a [Toolset]. store may be nil, in which case submit_lead is not
// offered.
func New(calc *quote.Calculator, sessions *checklist.Registry, store lead.Store, opts ...Option) *Toolset {
	ts := &Toolset{
		calc:     calc,
		sessions: sessions,
		store:    store,
		notify:   true,
	}
	for _, o := range opts {
		o(ts)
	}
	if ts.metrics == nil {
		ts.metrics = observe.DefaultMetrics()
	}
	return ts
}

type lookupPriceArgs struct {
	Model     string `json:"model"`
	Variant   string `json:"variant,omitempty"`
	Condition string `json:"condition,omitempty"`
}

type priceResult struct {
	quote.PriceOutcome
	Spoken string `json:"spoken,omitempty"`
}

func (ts *Toolset) lookupPrice(ctx context.Context, args string) (string, error) {
	const name = "tradein: lookup_price"
	var a lookupPriceArgs
	if err := tools.Decode(name, args, &a); err != nil {
		return "", err
	}
	if a.Model == "" {
		return "", fmt.Errorf("%s: model must not be empty", name)
	}

	out, err := ts.calc.LookupPrice(pricegrid.Query{Model: a.Model, Variant: a.Variant, Condition: a.Condition})
	if err != nil {
		ts.metrics.RecordQuote(ctx, outcomeOf(err))
		return "", fmt.Errorf("%s: %w", name, err)
	}
	res := priceResult{PriceOutcome: out}
	switch {
	case out.Clarification != nil:
		ts.metrics.RecordQuote(ctx, "clarify")
		res.Spoken = out.Clarification.Question
	default:
		ts.metrics.RecordQuote(ctx, "ok")
		res.Spoken = speech.NormalizeCurrency(out.Price.Summary)
	}
	return tools.Encode(name, res)
}

type quoteArgs struct {
	TradeModel     string  `json:"trade_model"`
	TradeVariant   string  `json:"trade_variant,omitempty"`
	TradeCondition string  `json:"trade_condition,omitempty"`
	TargetModel    string  `json:"target_model"`
	TargetVariant  string  `json:"target_variant,omitempty"`
	Discount       float64 `json:"discount,omitempty"`
}

type quoteResult struct {
	quote.Outcome
	Spoken string `json:"spoken,omitempty"`
}

func (ts *Toolset) quoteTopUp(ctx context.Context, args string) (string, error) {
	const name = "tradein: quote_top_up"
	var a quoteArgs
	if err := tools.Decode(name, args, &a); err != nil {
		return "", err
	}
	if a.TradeModel == "" || a.TargetModel == "" {
		return "", fmt.Errorf("%s: trade_model and target_model must not be empty", name)
	}

	out, err := ts.calc.Evaluate(quote.Request{
		Trade:    quote.Side{Model: a.TradeModel, Variant: a.TradeVariant, Condition: a.TradeCondition},
		Target:   quote.Side{Model: a.TargetModel, Variant: a.TargetVariant},
		Discount: a.Discount,
	})
	if err != nil {
		ts.metrics.RecordQuote(ctx, outcomeOf(err))
		return "", fmt.Errorf("%s: %w", name, err)
	}
	res := quoteResult{Outcome: out}
	if out.Clarification != nil {
		ts.metrics.RecordQuote(ctx, "clarify")
		res.Spoken = out.Clarification.Question
	} else {
		ts.metrics.RecordQuote(ctx, "ok")
		res.Spoken = speech.NormalizeCurrency(out.Quote.Summary)
	}
	return tools.Encode(name, res)
}

type sessionArgs struct {
	SessionID string `json:"session_id"`
}

func (ts *Toolset) getChecklist(_ context.Context, args string) (string, error) {
	const name = "tradein: get_checklist"
	var a sessionArgs
	if err := tools.Decode(name, args, &a); err != nil {
		return "", err
	}
	if a.SessionID == "" {
		return "", fmt.Errorf("%s: session_id must not be empty", name)
	}
	st, ok := ts.sessions.Get(a.SessionID)
	if !ok {
		return "", fmt.Errorf("%s: session %q not found", name, a.SessionID)
	}
	return tools.Encode(name, st.Snapshot())
}

type submitArgs struct {
	SessionID string `json:"session_id"`
	Summary   string `json:"summary,omitempty"`
}

type submitResult struct {
	OK        bool     `json:"ok"`
	Message   string   `json:"message"`
	EmailSent *bool    `json:"email_sent,omitempty"`
	Duplicate bool     `json:"duplicate,omitempty"`
	Missing   []string `json:"missing,omitempty"`
}

// submitLead finalises the session's lead. A record without brand and model
// is rejected with a cannot-submit outcome rather than a tool error so the
// runtime can ask for the missing fields.
func (ts *Toolset) submitLead(ctx context.Context, args string) (string, error) {
	const name = "tradein: submit_lead"
	var a submitArgs
	if err := tools.Decode(name, args, &a); err != nil {
		return "", err
	}
	if a.SessionID == "" && a.Summary == "" {
		return "", fmt.Errorf("%s: session_id or summary is required", name)
	}

	if a.SessionID != "" {
		defer ts.sessions.Lock(a.SessionID)()
	}
	var rec checklist.Record
	st, ok := ts.sessions.Get(a.SessionID)
	if ok {
		if st.Has(checklist.FieldSubmitted) {
			return tools.Encode(name, submitResult{OK: true, Duplicate: true, Message: "Lead already submitted."})
		}
		rec = st.Record()
	}

	resp, err := lead.SubmitValidated(ctx, ts.store, rec, lead.SubmitRequest{
		SessionID: a.SessionID,
		Summary:   a.Summary,
		Notify:    ts.notify,
	})
	var pe *lead.PreconditionError
	switch {
	case errors.As(err, &pe):
		return tools.Encode(name, submitResult{Message: pe.Error(), Missing: pe.Missing})
	case err != nil:
		return "", fmt.Errorf("%s: %w", name, err)
	}

	if st != nil {
		if _, err := st.MarkFieldCollected(checklist.FieldSubmitted, true); err != nil {
			observe.Logger(observe.WithSessionID(ctx, a.SessionID)).Warn("tradein: mark submitted", "err", err)
		}
	}
	return tools.Encode(name, submitResult{OK: true, Message: resp.Message, EmailSent: resp.EmailSent})
}

type speechArgs struct {
	Text string `json:"text"`
}

type speechResult struct {
	Text string `json:"text"`
}

func normalizeSpeech(_ context.Context, args string) (string, error) {
	const name = "tradein: normalize_speech"
	var a speechArgs
	if err := tools.Decode(name, args, &a); err != nil {
		return "", err
	}
	return tools.Encode(name, speechResult{Text: speech.NormalizeCurrency(a.Text)})
}

func outcomeOf(err error) string {
	if errors.Is(err, pricegrid.ErrNoRows) {
		return "not_found"
	}
	return "error"
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// Tools returns the trade-in tools ready for registration.
func (ts *Toolset) Tools() []tools.Tool {
	out := []tools.Tool{
		{
			Definition: tools.Definition{
				Name:        "lookup_price",
				Description: "Look up the trade-in value range and brand-new price for one device configuration. If several configurations match, returns a clarifying question instead of a price; ask it before quoting.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"model":     stringProp("Product model or family, e.g. PS5 Slim or Nintendo Switch Lite."),
						"variant":   stringProp("Storage or edition, e.g. 1TB Digital. Omit if unknown."),
						"condition": stringProp("One of brand_new, mint, good, fair, faulty. Omit if unknown."),
					},
					"required": []string{"model"},
				},
				Idempotent: true,
			},
			Handler:     ts.lookupPrice,
			DeclaredMax: 100,
		},
		{
			Definition: tools.Definition{
				Name:        "quote_top_up",
				Description: "Compute the top-up the customer pays to trade a used device toward a brand-new one. Returns a clarifying question instead when either device is ambiguous. Read the spoken field aloud.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"trade_model":     stringProp("Model of the device being traded in."),
						"trade_variant":   stringProp("Variant of the device being traded in."),
						"trade_condition": stringProp("Condition of the device being traded in."),
						"target_model":    stringProp("Model of the new device."),
						"target_variant":  stringProp("Variant of the new device."),
						"discount": map[string]any{
							"type":        "number",
							"description": "Used-device discount in dollars. Defaults to 0.",
						},
					},
					"required": []string{"trade_model", "target_model"},
				},
				Idempotent: true,
			},
			Handler:     ts.quoteTopUp,
			DeclaredMax: 100,
		},
		{
			Definition: tools.Definition{
				Name:        "get_checklist",
				Description: "Return the collected trade-in fields, the missing required fields and the next step to ask about for a session.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"session_id": stringProp("Conversation session identifier."),
					},
					"required": []string{"session_id"},
				},
				Idempotent: true,
			},
			Handler:     ts.getChecklist,
			DeclaredMax: 50,
		},
		{
			Definition: tools.Definition{
				Name:        "normalize_speech",
				Description: "Rewrite currency amounts in text into speakable form, e.g. S$1,500 becomes 1500 dollars.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"text": stringProp("Text to normalize."),
					},
					"required": []string{"text"},
				},
				Idempotent: true,
			},
			Handler:     normalizeSpeech,
			DeclaredMax: 50,
		},
	}
	if ts.store != nil {
		out = append(out, tools.Tool{
			Definition: tools.Definition{
				Name:        "submit_lead",
				Description: "Submit the trade-in lead once the customer has confirmed the recap. Brand and model must have been collected.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"session_id": stringProp("Conversation session identifier."),
						"summary":    stringProp("Free-text summary of the trade-in for the sales team."),
					},
				},
			},
			Handler:     ts.submitLead,
			DeclaredMax: 30000,
		})
	}
	return out
}

package quote

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/tradein/internal/pricegrid"
)

// Clarification asks the caller to narrow an ambiguous device before any
// figure is computed.
type Clarification struct {
	// Side is "trade", "target" or "" for a plain price lookup.
	Side string `json:"side,omitempty"`

	// Axis is the attribute that distinguishes the candidates: "model",
	// "variant" or "condition".
	Axis string `json:"axis"`

	Question   string            `json:"question"`
	Options    []string          `json:"options"`
	Candidates []pricegrid.Entry `json:"candidates"`
}

// Clarify builds the clarifying question for candidates matched by q.
func Clarify(q pricegrid.Query, candidates []pricegrid.Entry) Clarification {
	axis, pick := "condition", func(e pricegrid.Entry) string { return e.Condition }
	switch {
	case distinct(candidates, func(e pricegrid.Entry) string { return strings.ToLower(e.ProductModel) }) > 1:
		axis, pick = "model", pricegrid.Entry.Label
	case distinct(candidates, func(e pricegrid.Entry) string { return strings.ToLower(e.Variant) }) > 1:
		axis, pick = "variant", func(e pricegrid.Entry) string { return e.Variant }
	}

	var options []string
	for _, e := range candidates {
		o := pick(e)
		if o == "" {
			o = "standard"
		}
		if !slices.Contains(options, o) {
			options = append(options, o)
		}
	}

	return Clarification{
		Axis:       axis,
		Question:   fmt.Sprintf("Which %s do you mean: %s?", q.Model, orList(options)),
		Options:    options,
		Candidates: candidates,
	}
}

// NeedsClarification reports whether q matches more than one row and, if so,
// returns the question to ask.
func NeedsClarification(grid *pricegrid.Grid, q pricegrid.Query) (Clarification, bool) {
	rows := grid.Find(q)
	if len(rows) < 2 {
		return Clarification{}, false
	}
	return Clarify(q, rows), true
}

// clarificationFrom turns an ambiguous lookup error into a clarification.
func clarificationFrom(err error, side string) (*Clarification, bool) {
	var le *pricegrid.LookupError
	if !errors.As(err, &le) || !errors.Is(err, pricegrid.ErrAmbiguous) {
		return nil, false
	}
	c := Clarify(le.Query, le.Candidates)
	c.Side = side
	return &c, true
}

func distinct(entries []pricegrid.Entry, key func(pricegrid.Entry) string) int {
	seen := make(map[string]struct{})
	for _, e := range entries {
		seen[key(e)] = struct{}{}
	}
	return len(seen)
}

// orList renders "a", "a or b", "a, b or c".
func orList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " or " + items[len(items)-1]
}

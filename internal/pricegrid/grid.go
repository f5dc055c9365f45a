// Package pricegrid holds the in-memory trade-in price table.
//
// Rows are loaded once (from CSV or PostgreSQL) and never mutated, so a [Grid]
// is shared across sessions without locking. A row's identity is the
// case-insensitive tuple (model, variant, condition), which must be unique.
// Lookups never resolve ambiguity on their own: [Grid.FindRow] demands
// exactly one matching row.
package pricegrid

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrNoRows is wrapped by a [LookupError] when nothing matches.
	ErrNoRows = errors.New("no grid rows found")

	// ErrAmbiguous is wrapped by a [LookupError] when more than one row
	// matches.
	ErrAmbiguous = errors.New("multiple grid rows match")
)

// ConditionBrandNew is the condition under which target products are priced.
const ConditionBrandNew = "brand_new"

// Entry is one priced product configuration. Nil monetary fields are absent.
type Entry struct {
	ProductFamily string   `json:"product_family"`
	ProductModel  string   `json:"product_model"`
	Variant       string   `json:"variant"`
	Condition     string   `json:"condition"`
	TradeInMin    *float64 `json:"trade_in_value_min_sgd"`
	TradeInMax    *float64 `json:"trade_in_value_max_sgd"`
	BrandNewPrice *float64 `json:"brand_new_price_sgd"`
	Source        string   `json:"source"`
	Confidence    float64  `json:"confidence"`
	Notes         string   `json:"notes"`
}

// TradeValueMid resolves the trade value of e: the shared value when both
// bounds are equal, their mean when they differ, the single bound when only
// one is present. It reports false when neither bound exists.
func (e Entry) TradeValueMid() (float64, bool) {
	switch {
	case e.TradeInMin != nil && e.TradeInMax != nil:
		if *e.TradeInMin == *e.TradeInMax {
			return *e.TradeInMin, true
		}
		return (*e.TradeInMin + *e.TradeInMax) / 2, true
	case e.TradeInMin != nil:
		return *e.TradeInMin, true
	case e.TradeInMax != nil:
		return *e.TradeInMax, true
	}
	return 0, false
}

// Label returns "model variant" for display.
func (e Entry) Label() string {
	return strings.TrimSpace(e.ProductModel + " " + e.Variant)
}

// Query selects grid rows. Variant and Condition are optional.
type Query struct {
	Model     string `json:"model"`
	Variant   string `json:"variant,omitempty"`
	Condition string `json:"condition,omitempty"`
}

func (q Query) String() string {
	s := "model=" + q.Model
	if q.Variant != "" {
		s += " variant=" + q.Variant
	}
	if q.Condition != "" {
		s += " condition=" + q.Condition
	}
	return s
}

// LookupError reports a lookup that matched zero or several rows.
type LookupError struct {
	Query      Query
	Candidates []Entry
	Err        error
}

func (e *LookupError) Error() string {
	if errors.Is(e.Err, ErrAmbiguous) {
		return fmt.Sprintf("pricegrid: %s (%d) for %s; specify variant and condition", e.Err, len(e.Candidates), e.Query)
	}
	return fmt.Sprintf("pricegrid: %s for %s", e.Err, e.Query)
}

func (e *LookupError) Unwrap() error { return e.Err }

type rowKey struct {
	model, variant, condition string
}

func norm(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func keyOf(e Entry) rowKey {
	return rowKey{norm(e.ProductModel), norm(e.Variant), norm(e.Condition)}
}

// Grid is an immutable, indexed set of entries.
type Grid struct {
	entries []Entry
	byKey   map[rowKey]int
	version string
}

// New indexes entries. Duplicate (model, variant, condition) tuples and rows
// without a model or condition are rejected.
func New(entries []Entry, version string) (*Grid, error) {
	g := &Grid{
		entries: slices.Clone(entries),
		byKey:   make(map[rowKey]int, len(entries)),
		version: version,
	}
	var errs []error
	for i, e := range g.entries {
		if strings.TrimSpace(e.ProductModel) == "" {
			errs = append(errs, fmt.Errorf("row %d: product_model is required", i+1))
			continue
		}
		if strings.TrimSpace(e.Condition) == "" {
			errs = append(errs, fmt.Errorf("row %d: condition is required", i+1))
			continue
		}
		if e.Confidence < 0 || e.Confidence > 1 {
			errs = append(errs, fmt.Errorf("row %d: confidence %v outside [0,1]", i+1, e.Confidence))
		}
		k := keyOf(e)
		if j, dup := g.byKey[k]; dup {
			errs = append(errs, fmt.Errorf("row %d: duplicate of row %d (%s / %s / %s)", i+1, j+1, e.ProductModel, e.Variant, e.Condition))
			continue
		}
		g.byKey[k] = i
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("pricegrid: %w", err)
	}
	return g, nil
}

// Len returns the number of rows.
func (g *Grid) Len() int { return len(g.entries) }

// Version returns the grid version tag supplied at load time.
func (g *Grid) Version() string { return g.version }

// Entries returns a copy of all rows in load order.
func (g *Grid) Entries() []Entry { return slices.Clone(g.entries) }

// Find returns every row matching q in load order. The model matches the
// product model, or the product family when no model does; empty variant and
// condition match anything.
func (g *Grid) Find(q Query) []Entry {
	model, variant, condition := norm(q.Model), norm(q.Variant), norm(q.Condition)
	if model == "" {
		return nil
	}
	if variant != "" && condition != "" {
		if i, ok := g.byKey[rowKey{model, variant, condition}]; ok {
			return []Entry{g.entries[i]}
		}
	}
	out := g.filter(func(e Entry) bool { return norm(e.ProductModel) == model }, variant, condition)
	if len(out) == 0 {
		out = g.filter(func(e Entry) bool { return norm(e.ProductFamily) == model }, variant, condition)
	}
	return out
}

func (g *Grid) filter(match func(Entry) bool, variant, condition string) []Entry {
	var out []Entry
	for _, e := range g.entries {
		if !match(e) {
			continue
		}
		if variant != "" && norm(e.Variant) != variant {
			continue
		}
		if condition != "" && norm(e.Condition) != condition {
			continue
		}
		out = append(out, e)
	}
	return out
}

// FindRow returns the single row matching q. Zero or several matches yield a
// [*LookupError] wrapping [ErrNoRows] or [ErrAmbiguous].
func (g *Grid) FindRow(q Query) (Entry, error) {
	rows := g.Find(q)
	switch len(rows) {
	case 1:
		return rows[0], nil
	case 0:
		return Entry{}, &LookupError{Query: q, Err: ErrNoRows}
	}
	return Entry{}, &LookupError{Query: q, Candidates: rows, Err: ErrAmbiguous}
}

// Search returns rows whose "family model variant" text contains every token
// of text, case-insensitively. An empty text matches nothing.
func (g *Grid) Search(text string) []Entry {
	tokens := strings.Fields(norm(text))
	if len(tokens) == 0 {
		return nil
	}
	var out []Entry
	for _, e := range g.entries {
		hay := norm(e.ProductFamily + " " + e.ProductModel + " " + e.Variant)
		all := true
		for _, tok := range tokens {
			if !strings.Contains(hay, tok) {
				all = false
				break
			}
		}
		if all {
			out = append(out, e)
		}
	}
	return out
}

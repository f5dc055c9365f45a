package quote

import (
	"fmt"

	"github.com/MrWong99/tradein/internal/pricegrid"
)

// Outcome is the result of [Calculator.Evaluate]: exactly one of Quote and
// Clarification is set.
type Outcome struct {
	Quote         *Result        `json:"quote,omitempty"`
	Clarification *Clarification `json:"clarification,omitempty"`
}

// Evaluate computes the quote for req, or returns a clarification when either
// side matches more than one grid row. A side that matches nothing is an
// error.
func (c *Calculator) Evaluate(req Request) (Outcome, error) {
	grid := c.Grid()
	trade := pricegrid.Query{Model: req.Trade.Model, Variant: req.Trade.Variant, Condition: req.Trade.Condition}
	if _, err := grid.FindRow(trade); err != nil {
		if cl, ok := clarificationFrom(err, "trade"); ok {
			return Outcome{Clarification: cl}, nil
		}
		return Outcome{}, fmt.Errorf("quote: trade device: %w", err)
	}
	target := pricegrid.Query{Model: req.Target.Model, Variant: req.Target.Variant, Condition: pricegrid.ConditionBrandNew}
	if _, err := grid.FindRow(target); err != nil {
		if cl, ok := clarificationFrom(err, "target"); ok {
			return Outcome{Clarification: cl}, nil
		}
		return Outcome{}, fmt.Errorf("quote: target device: %w", err)
	}

	res, err := quoteOn(grid, req)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Quote: &res}, nil
}

// Price is the answer to a bare price question for one configuration.
type Price struct {
	Entry         pricegrid.Entry `json:"entry"`
	TradeInMin    *float64        `json:"trade_in_min,omitempty"`
	TradeInMax    *float64        `json:"trade_in_max,omitempty"`
	TradeInMid    *float64        `json:"trade_in_mid,omitempty"`
	BrandNewPrice *float64        `json:"brand_new_price,omitempty"`
	Summary       string          `json:"summary"`
}

// PriceOutcome is the result of [Calculator.LookupPrice]: exactly one of
// Price and Clarification is set.
type PriceOutcome struct {
	Price         *Price         `json:"price,omitempty"`
	Clarification *Clarification `json:"clarification,omitempty"`
}

// LookupPrice answers "how much is my X worth" for a single grid
// configuration, or asks which configuration is meant.
func (c *Calculator) LookupPrice(q pricegrid.Query) (PriceOutcome, error) {
	row, err := c.Grid().FindRow(q)
	if err != nil {
		if cl, ok := clarificationFrom(err, ""); ok {
			return PriceOutcome{Clarification: cl}, nil
		}
		return PriceOutcome{}, fmt.Errorf("quote: lookup price: %w", err)
	}

	p := &Price{
		Entry:         row,
		TradeInMin:    roundPtr(row.TradeInMin),
		TradeInMax:    roundPtr(row.TradeInMax),
		BrandNewPrice: roundPtr(row.BrandNewPrice),
	}
	if mid, ok := row.TradeValueMid(); ok {
		m := round2(mid)
		p.TradeInMid = &m
	}
	p.Summary = priceSummary(row)
	return PriceOutcome{Price: p}, nil
}

func priceSummary(e pricegrid.Entry) string {
	s := fmt.Sprintf("%s in %s condition", e.Label(), e.Condition)
	switch {
	case e.TradeInMin != nil && e.TradeInMax != nil && *e.TradeInMin != *e.TradeInMax:
		s += fmt.Sprintf(" trades in for S$%s to S$%s", whole(*e.TradeInMin), whole(*e.TradeInMax))
	case e.TradeInMin != nil || e.TradeInMax != nil:
		mid, _ := e.TradeValueMid()
		s += fmt.Sprintf(" trades in for about S$%s", whole(mid))
	default:
		s += " has no trade-in value on record"
	}
	if e.BrandNewPrice != nil {
		s += fmt.Sprintf("; brand new it costs S$%s", whole(*e.BrandNewPrice))
	}
	return s + "."
}

func roundPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := round2(*v)
	return &r
}

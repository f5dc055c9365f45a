// Package quote computes deterministic trade-in and top-up quotes from a
// price grid.
//
// Monetary arithmetic happens on the grid values as loaded; structured
// numeric outputs are rounded to two decimals and the human-readable summary
// to whole currency units.
package quote

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"

	"github.com/MrWong99/tradein/internal/pricegrid"
)

// Side identifies a device on one side of a quote.
type Side struct {
	Model     string `json:"model"`
	Variant   string `json:"variant,omitempty"`
	Condition string `json:"condition,omitempty"`
}

// Request asks for the top-up from a trade device to a brand-new target.
type Request struct {
	Trade    Side    `json:"trade"`
	Target   Side    `json:"target"`
	Discount float64 `json:"discount"`
}

// Slot is the structured view of one side of a computed quote. Brand carries
// the grid's product family.
type Slot struct {
	Brand     string  `json:"brand"`
	Model     string  `json:"model"`
	Variant   string  `json:"variant"`
	Condition string  `json:"condition"`
	Value     float64 `json:"value"`
}

// Slots is the structured slot map of a quote.
type Slots struct {
	Trade  Slot `json:"trade"`
	Target Slot `json:"target"`
}

// Provenance records where one contributing figure came from.
type Provenance struct {
	Field      string  `json:"field"`
	Column     string  `json:"column"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// Result is a computed quote. It is never persisted.
type Result struct {
	Summary     string          `json:"summary"`
	Slots       Slots           `json:"slots"`
	TradeValue  float64         `json:"trade_value"`
	TargetPrice float64         `json:"target_price"`
	Discount    float64         `json:"discount"`
	TopUp       float64         `json:"top_up"`
	Calculation []string        `json:"calculation_steps"`
	Confidence  float64         `json:"confidence"`
	Provenance  []Provenance    `json:"provenance"`
	TradeEntry  pricegrid.Entry `json:"trade_entry"`
	TargetEntry pricegrid.Entry `json:"target_entry"`
}

// Calculator computes quotes against a read-only grid. It is safe for
// concurrent use. The grid may be replaced wholesale with [Calculator.Swap].
type Calculator struct {
	grid atomic.Pointer[pricegrid.Grid]
}

// New returns a [Calculator] over grid.
func New(grid *pricegrid.Grid) *Calculator {
	c := &Calculator{}
	c.grid.Store(grid)
	return c
}

// Grid returns the current price grid.
func (c *Calculator) Grid() *pricegrid.Grid { return c.grid.Load() }

// Swap installs grid for all subsequent lookups and returns the previous one.
// Lookups already in flight finish against the grid they started with.
func (c *Calculator) Swap(grid *pricegrid.Grid) *pricegrid.Grid {
	return c.grid.Swap(grid)
}

// Quote computes the top-up for req. The target is always priced under the
// brand-new condition. Lookup failures are returned unchanged so callers can
// match [pricegrid.ErrNoRows] and [pricegrid.ErrAmbiguous].
func (c *Calculator) Quote(req Request) (Result, error) {
	return quoteOn(c.Grid(), req)
}

func quoteOn(grid *pricegrid.Grid, req Request) (Result, error) {
	trade, err := grid.FindRow(pricegrid.Query{Model: req.Trade.Model, Variant: req.Trade.Variant, Condition: req.Trade.Condition})
	if err != nil {
		return Result{}, fmt.Errorf("quote: trade device: %w", err)
	}
	target, err := grid.FindRow(pricegrid.Query{Model: req.Target.Model, Variant: req.Target.Variant, Condition: pricegrid.ConditionBrandNew})
	if err != nil {
		return Result{}, fmt.Errorf("quote: target device: %w", err)
	}
	if req.Discount < 0 {
		return Result{}, errors.New("quote: discount must not be negative")
	}
	return Compute(trade, target, req.Discount), nil
}

// Compute derives a quote from two resolved rows. A missing trade value
// counts as 0; a target without a brand-new price falls back to its own trade
// value.
func Compute(trade, target pricegrid.Entry, discount float64) Result {
	tradeValue, _ := trade.TradeValueMid()

	var targetPrice float64
	targetColumn := "brand_new_price_sgd"
	if target.BrandNewPrice != nil {
		targetPrice = *target.BrandNewPrice
	} else {
		targetPrice, _ = target.TradeValueMid()
		targetColumn = "trade_in_value_mid"
	}

	topUp := targetPrice - tradeValue - discount

	res := Result{
		Slots: Slots{
			Trade: Slot{
				Brand:     trade.ProductFamily,
				Model:     trade.ProductModel,
				Variant:   trade.Variant,
				Condition: trade.Condition,
				Value:     round2(tradeValue),
			},
			Target: Slot{
				Brand:     target.ProductFamily,
				Model:     target.ProductModel,
				Variant:   target.Variant,
				Condition: target.Condition,
				Value:     round2(targetPrice),
			},
		},
		TradeValue:  round2(tradeValue),
		TargetPrice: round2(targetPrice),
		Discount:    round2(discount),
		TopUp:       round2(topUp),
		Calculation: []string{
			fmt.Sprintf("top_up = %s - %s - %s = %s", whole(targetPrice), whole(tradeValue), whole(discount), whole(topUp)),
		},
		Confidence: math.Min(trade.Confidence, target.Confidence),
		Provenance: []Provenance{
			{Field: "trade_value", Column: "trade_in_value_mid", Source: trade.Source, Confidence: trade.Confidence},
			{Field: "target_price", Column: targetColumn, Source: target.Source, Confidence: target.Confidence},
		},
		TradeEntry:  trade,
		TargetEntry: target,
	}

	res.Summary = fmt.Sprintf("Trading in your %s (%s) for about S$%s toward a new %s at S$%s",
		trade.Label(), trade.Condition, whole(tradeValue), target.Label(), whole(targetPrice))
	if discount > 0 {
		res.Summary += fmt.Sprintf(", less a S$%s discount", whole(discount))
	}
	res.Summary += fmt.Sprintf(", leaves a top-up of S$%s.", whole(topUp))
	return res
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// whole formats v rounded to the nearest currency unit.
func whole(v float64) string {
	return strconv.FormatFloat(math.Round(v), 'f', 0, 64)
}

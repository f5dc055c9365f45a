package pricegrid

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Document is one indexing record emitted by [WriteJSONL].
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func slug(parts ...string) string {
	var out []string
	for _, p := range parts {
		s := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(p), "-"), "-")
		if s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "-")
}

// DocumentFor builds the indexing record for e.
func DocumentFor(e Entry, version string) Document {
	meta := map[string]any{
		"product_family": e.ProductFamily,
		"product_model":  e.ProductModel,
		"variant":        e.Variant,
		"condition":      e.Condition,
		"source":         e.Source,
		"confidence":     e.Confidence,
		"grid_version":   version,
	}
	if e.TradeInMin != nil {
		meta["trade_in_value_min_sgd"] = *e.TradeInMin
	}
	if e.TradeInMax != nil {
		meta["trade_in_value_max_sgd"] = *e.TradeInMax
	}
	if e.BrandNewPrice != nil {
		meta["brand_new_price_sgd"] = *e.BrandNewPrice
	}
	if e.Notes != "" {
		meta["notes"] = e.Notes
	}
	return Document{
		ID:       slug(e.ProductModel, e.Variant, e.Condition),
		Text:     describe(e),
		Metadata: meta,
	}
}

func describe(e Entry) string {
	var b strings.Builder
	b.WriteString(e.Label())
	if e.ProductFamily != "" {
		fmt.Fprintf(&b, " (%s)", e.ProductFamily)
	}
	fmt.Fprintf(&b, ", condition %s.", strings.ReplaceAll(e.Condition, "_", " "))
	switch {
	case e.TradeInMin != nil && e.TradeInMax != nil:
		fmt.Fprintf(&b, " Trade-in value S$%s to S$%s.", money(*e.TradeInMin), money(*e.TradeInMax))
	case e.TradeInMin != nil || e.TradeInMax != nil:
		mid, _ := e.TradeValueMid()
		fmt.Fprintf(&b, " Trade-in value about S$%s.", money(mid))
	}
	if e.BrandNewPrice != nil {
		fmt.Fprintf(&b, " Brand-new price S$%s.", money(*e.BrandNewPrice))
	}
	if e.Notes != "" {
		b.WriteString(" " + e.Notes)
	}
	return b.String()
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteJSONL writes one [Document] per grid row to w.
func WriteJSONL(w io.Writer, g *Grid) error {
	enc := json.NewEncoder(w)
	for _, e := range g.entries {
		if err := enc.Encode(DocumentFor(e, g.version)); err != nil {
			return fmt.Errorf("pricegrid: encode %s: %w", e.Label(), err)
		}
	}
	return nil
}

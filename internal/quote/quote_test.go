package quote_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/MrWong99/tradein/internal/pricegrid"
	"github.com/MrWong99/tradein/internal/quote"
)

func ptr(v float64) *float64 { return &v }

func testGrid(t *testing.T) *pricegrid.Grid {
	t.Helper()
	g, err := pricegrid.New([]pricegrid.Entry{
		{ProductFamily: "Nintendo Switch", ProductModel: "Nintendo Switch Lite", Condition: "good", TradeInMin: ptr(60), TradeInMax: ptr(60), Source: "survey", Confidence: 0.8},
		{ProductFamily: "Nintendo Switch", ProductModel: "Nintendo Switch 2", Condition: "brand_new", BrandNewPrice: ptr(500), Source: "retail", Confidence: 0.9},
		{ProductFamily: "PS5", ProductModel: "PS5 Slim", Variant: "1TB Digital", Condition: "good", TradeInMin: ptr(330), TradeInMax: ptr(370), Source: "survey", Confidence: 0.85},
		{ProductFamily: "PS5", ProductModel: "PS5 Slim", Variant: "1TB Disc", Condition: "good", TradeInMin: ptr(380), TradeInMax: ptr(420), Source: "survey", Confidence: 0.85},
		{ProductFamily: "PS5", ProductModel: "PS5 Pro", Variant: "2TB Digital", Condition: "brand_new", BrandNewPrice: ptr(900), Source: "retail", Confidence: 0.95},
		{ProductFamily: "Xbox", ProductModel: "Xbox Series S", Variant: "512GB", Condition: "brand_new", TradeInMin: ptr(250), TradeInMax: ptr(270), Source: "survey", Confidence: 0.5},
		{ProductFamily: "Steam Deck", ProductModel: "Steam Deck", Variant: "64GB", Condition: "faulty", Source: "estimate", Confidence: 0.3},
		{ProductFamily: "Odd", ProductModel: "Odd Device", Condition: "good", TradeInMin: ptr(10.333), TradeInMax: ptr(10.333), Source: "estimate", Confidence: 0.4},
	}, "v1")
	if err != nil {
		t.Fatalf("pricegrid.New: %v", err)
	}
	return g
}

func TestQuote_SwitchLiteToSwitch2(t *testing.T) {
	t.Parallel()

	c := quote.New(testGrid(t))
	res, err := c.Quote(quote.Request{
		Trade:  quote.Side{Model: "Nintendo Switch Lite", Condition: "good"},
		Target: quote.Side{Model: "Nintendo Switch 2"},
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if res.TopUp != 440 {
		t.Errorf("TopUp = %v, want 440", res.TopUp)
	}
	if res.TradeValue != 60 || res.TargetPrice != 500 {
		t.Errorf("trade=%v target=%v, want 60/500", res.TradeValue, res.TargetPrice)
	}
	if diff := cmp.Diff([]string{"top_up = 500 - 60 - 0 = 440"}, res.Calculation); diff != "" {
		t.Errorf("calculation mismatch (-want +got):\n%s", diff)
	}
	if res.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", res.Confidence)
	}
	wantProv := []quote.Provenance{
		{Field: "trade_value", Column: "trade_in_value_mid", Source: "survey", Confidence: 0.8},
		{Field: "target_price", Column: "brand_new_price_sgd", Source: "retail", Confidence: 0.9},
	}
	if diff := cmp.Diff(wantProv, res.Provenance); diff != "" {
		t.Errorf("provenance mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(res.Summary, "top-up of S$440") {
		t.Errorf("Summary = %q", res.Summary)
	}
	if res.Slots.Target.Condition != pricegrid.ConditionBrandNew {
		t.Errorf("target condition = %q", res.Slots.Target.Condition)
	}
}

func TestQuote_PS5SlimToPro(t *testing.T) {
	t.Parallel()

	c := quote.New(testGrid(t))
	res, err := c.Quote(quote.Request{
		Trade:  quote.Side{Model: "PS5 Slim", Variant: "1TB Digital", Condition: "good"},
		Target: quote.Side{Model: "PS5 Pro", Variant: "2TB Digital"},
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if res.TradeValue != 350 || res.TopUp != 550 {
		t.Errorf("trade=%v topUp=%v, want 350/550", res.TradeValue, res.TopUp)
	}
	if res.Confidence != 0.85 {
		t.Errorf("Confidence = %v, want 0.85", res.Confidence)
	}
}

func TestQuote_Discount(t *testing.T) {
	t.Parallel()

	c := quote.New(testGrid(t))
	res, err := c.Quote(quote.Request{
		Trade:    quote.Side{Model: "Nintendo Switch Lite"},
		Target:   quote.Side{Model: "Nintendo Switch 2"},
		Discount: 40,
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if res.TopUp != 400 {
		t.Errorf("TopUp = %v, want 400", res.TopUp)
	}
	if !strings.Contains(res.Summary, "less a S$40 discount") {
		t.Errorf("Summary = %q", res.Summary)
	}

	if _, err := c.Quote(quote.Request{Trade: quote.Side{Model: "Nintendo Switch Lite"}, Target: quote.Side{Model: "Nintendo Switch 2"}, Discount: -1}); err == nil {
		t.Error("expected error for negative discount")
	}
}

func TestCompute_Fallbacks(t *testing.T) {
	t.Parallel()

	g := testGrid(t)
	deck, _ := g.FindRow(pricegrid.Query{Model: "Steam Deck"})
	xbox, _ := g.FindRow(pricegrid.Query{Model: "Xbox Series S"})

	res := quote.Compute(deck, xbox, 0)
	if res.TradeValue != 0 {
		t.Errorf("absent trade value = %v, want 0", res.TradeValue)
	}
	if res.TargetPrice != 260 || res.TopUp != 260 {
		t.Errorf("target=%v topUp=%v, want mid fallback 260", res.TargetPrice, res.TopUp)
	}
	if res.Provenance[1].Column != "trade_in_value_mid" {
		t.Errorf("target column = %q", res.Provenance[1].Column)
	}
}

func TestCompute_Rounding(t *testing.T) {
	t.Parallel()

	g := testGrid(t)
	odd, _ := g.FindRow(pricegrid.Query{Model: "Odd Device"})
	sw2, _ := g.FindRow(pricegrid.Query{Model: "Nintendo Switch 2"})

	res := quote.Compute(odd, sw2, 0)
	if res.TradeValue != 10.33 || res.TopUp != 489.67 {
		t.Errorf("trade=%v topUp=%v, want 10.33/489.67", res.TradeValue, res.TopUp)
	}
	if !strings.Contains(res.Summary, "top-up of S$490.") || !strings.Contains(res.Summary, "about S$10 ") {
		t.Errorf("Summary not rounded to whole units: %q", res.Summary)
	}
}

func TestEvaluate_AmbiguousBareModel(t *testing.T) {
	t.Parallel()

	c := quote.New(testGrid(t))
	out, err := c.Evaluate(quote.Request{
		Trade:  quote.Side{Model: "PS5"},
		Target: quote.Side{Model: "PS5 Pro"},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out.Quote != nil {
		t.Fatal("ambiguous query produced a quote")
	}
	cl := out.Clarification
	if cl == nil || cl.Side != "trade" || cl.Axis != "model" {
		t.Fatalf("Clarification = %+v", cl)
	}
	want := []string{"PS5 Slim 1TB Digital", "PS5 Slim 1TB Disc", "PS5 Pro 2TB Digital"}
	if diff := cmp.Diff(want, cl.Options); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
	if cl.Question != "Which PS5 do you mean: PS5 Slim 1TB Digital, PS5 Slim 1TB Disc or PS5 Pro 2TB Digital?" {
		t.Errorf("Question = %q", cl.Question)
	}
}

func TestEvaluate_VariantAxis(t *testing.T) {
	t.Parallel()

	c := quote.New(testGrid(t))
	out, err := c.Evaluate(quote.Request{
		Trade:  quote.Side{Model: "PS5 Slim", Condition: "good"},
		Target: quote.Side{Model: "PS5 Pro"},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out.Clarification == nil || out.Clarification.Axis != "variant" {
		t.Fatalf("Clarification = %+v", out.Clarification)
	}
	if diff := cmp.Diff([]string{"1TB Digital", "1TB Disc"}, out.Clarification.Options); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_NotFound(t *testing.T) {
	t.Parallel()

	c := quote.New(testGrid(t))
	_, err := c.Evaluate(quote.Request{
		Trade:  quote.Side{Model: "Nintendo Switch Lite"},
		Target: quote.Side{Model: "Game Boy"},
	})
	if !errors.Is(err, pricegrid.ErrNoRows) {
		t.Errorf("err = %v, want ErrNoRows", err)
	}
}

func TestEvaluate_Quote(t *testing.T) {
	t.Parallel()

	c := quote.New(testGrid(t))
	out, err := c.Evaluate(quote.Request{
		Trade:  quote.Side{Model: "Nintendo Switch Lite"},
		Target: quote.Side{Model: "Nintendo Switch 2"},
	})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out.Quote == nil || out.Quote.TopUp != 440 {
		t.Errorf("Quote = %+v", out.Quote)
	}
}

func TestLookupPrice(t *testing.T) {
	t.Parallel()

	c := quote.New(testGrid(t))

	out, err := c.LookupPrice(pricegrid.Query{Model: "PS5 Slim", Variant: "1TB Digital"})
	if err != nil {
		t.Fatalf("LookupPrice: %v", err)
	}
	p := out.Price
	if p == nil || *p.TradeInMid != 350 || *p.TradeInMin != 330 || p.BrandNewPrice != nil {
		t.Fatalf("Price = %+v", p)
	}
	if p.Summary != "PS5 Slim 1TB Digital in good condition trades in for S$330 to S$370." {
		t.Errorf("Summary = %q", p.Summary)
	}

	out, err = c.LookupPrice(pricegrid.Query{Model: "PS5"})
	if err != nil {
		t.Fatalf("LookupPrice: %v", err)
	}
	if out.Price != nil || out.Clarification == nil {
		t.Errorf("bare PS5 lookup = %+v, want clarification", out)
	}

	if _, ok := quote.NeedsClarification(c.Grid(), pricegrid.Query{Model: "Nintendo Switch Lite"}); ok {
		t.Error("single-row model needs no clarification")
	}
}

func TestCalculator_Swap(t *testing.T) {
	t.Parallel()

	c := quote.New(testGrid(t))
	next, err := pricegrid.New([]pricegrid.Entry{
		{ProductFamily: "Nintendo Switch", ProductModel: "Nintendo Switch Lite", Condition: "good", TradeInMin: ptr(80), TradeInMax: ptr(80), Source: "survey", Confidence: 0.8},
		{ProductFamily: "Nintendo Switch", ProductModel: "Nintendo Switch 2", Condition: "brand_new", BrandNewPrice: ptr(500), Source: "retail", Confidence: 0.9},
	}, "v2")
	if err != nil {
		t.Fatalf("pricegrid.New: %v", err)
	}

	prev := c.Swap(next)
	if prev.Version() != "v1" || c.Grid().Version() != "v2" {
		t.Fatalf("versions after swap: prev %q, current %q", prev.Version(), c.Grid().Version())
	}
	res, err := c.Quote(quote.Request{
		Trade:  quote.Side{Model: "Nintendo Switch Lite", Condition: "good"},
		Target: quote.Side{Model: "Nintendo Switch 2"},
	})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if res.TopUp != 420 {
		t.Errorf("TopUp = %v, want 420 against the new grid", res.TopUp)
	}
	if _, err := c.LookupPrice(pricegrid.Query{Model: "PS5 Slim"}); !errors.Is(err, pricegrid.ErrNoRows) {
		t.Errorf("old grid rows still visible: %v", err)
	}
}

package pricegrid

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Columns is the header of the tabular grid source.
var Columns = []string{
	"product_family", "product_model", "variant", "condition",
	"trade_in_value_min_sgd", "trade_in_value_max_sgd", "brand_new_price_sgd",
	"source", "confidence", "notes",
}

// LoadCSV reads and indexes the grid at path.
func LoadCSV(path, version string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pricegrid: open %q: %w", path, err)
	}
	defer f.Close()

	entries, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("pricegrid: read %q: %w", path, err)
	}
	return New(entries, version)
}

// ReadCSV parses grid rows. Columns are matched by header name in any order;
// every name in [Columns] must be present. Empty and "null" numeric cells are
// absent.
func ReadCSV(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("pricegrid: read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	var missing []string
	for _, c := range Columns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pricegrid: missing columns: %s", strings.Join(missing, ", "))
	}

	var (
		entries []Entry
		errs    []error
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pricegrid: line %d: %w", line, err)
		}
		cell := func(name string) string { return strings.TrimSpace(rec[idx[name]]) }

		e := Entry{
			ProductFamily: cell("product_family"),
			ProductModel:  cell("product_model"),
			Variant:       cell("variant"),
			Condition:     cell("condition"),
			Source:        cell("source"),
			Notes:         cell("notes"),
		}
		for _, f := range []struct {
			name string
			dst  **float64
		}{
			{"trade_in_value_min_sgd", &e.TradeInMin},
			{"trade_in_value_max_sgd", &e.TradeInMax},
			{"brand_new_price_sgd", &e.BrandNewPrice},
		} {
			v, err := parseAmount(cell(f.name))
			if err != nil {
				errs = append(errs, fmt.Errorf("line %d: %s: %w", line, f.name, err))
				continue
			}
			*f.dst = v
		}
		if c := cell("confidence"); !isNull(c) {
			conf, err := strconv.ParseFloat(c, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("line %d: confidence: %w", line, err))
			}
			e.Confidence = conf
		}
		entries = append(entries, e)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("pricegrid: %w", err)
	}
	return entries, nil
}

func isNull(s string) bool {
	return s == "" || strings.EqualFold(s, "null")
}

func parseAmount(s string) (*float64, error) {
	if isNull(s) {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// WriteCSV writes entries with the [Columns] header.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("pricegrid: write header: %w", err)
	}
	for _, e := range entries {
		rec := []string{
			e.ProductFamily, e.ProductModel, e.Variant, e.Condition,
			formatAmount(e.TradeInMin), formatAmount(e.TradeInMax), formatAmount(e.BrandNewPrice),
			e.Source, strconv.FormatFloat(e.Confidence, 'f', -1, 64), e.Notes,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("pricegrid: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatAmount(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

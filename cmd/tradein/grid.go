package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/tradein/internal/app"
	"github.com/MrWong99/tradein/internal/pricegrid"
	"github.com/MrWong99/tradein/internal/quote"
	"github.com/MrWong99/tradein/internal/speech"
)

func quoteCmd(g *globals) *cobra.Command {
	var (
		req    quote.Request
		asJSON bool
		spoken bool
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote the top-up for trading one device in against another",
		Example: `  tradein quote --trade "Nintendo Switch Lite" --trade-condition good --target "Nintendo Switch 2"
  tradein quote --trade "PS5 Slim" --trade-variant "1TB Digital" --target "PS5 Pro" --discount 50 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			grid, err := app.LoadGrid(cmd.Context(), g.cfg.Grid)
			if err != nil {
				return err
			}
			out, err := quote.New(grid).Evaluate(req)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(w, out)
			}
			if out.Clarification != nil {
				fmt.Fprintln(w, out.Clarification.Question)
				return nil
			}
			if spoken {
				fmt.Fprintln(w, speech.NormalizeCurrency(out.Quote.Summary))
				return nil
			}
			fmt.Fprintln(w, out.Quote.Summary)
			for _, step := range out.Quote.Calculation {
				fmt.Fprintf(w, "  %s\n", step)
			}
			fmt.Fprintf(w, "  confidence %.2f\n", out.Quote.Confidence)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Trade.Model, "trade", "", "model of the device traded in")
	f.StringVar(&req.Trade.Variant, "trade-variant", "", "variant of the device traded in")
	f.StringVar(&req.Trade.Condition, "trade-condition", "", "condition of the device traded in")
	f.StringVar(&req.Target.Model, "target", "", "model of the device bought")
	f.StringVar(&req.Target.Variant, "target-variant", "", "variant of the device bought")
	f.Float64Var(&req.Discount, "discount", 0, "discount in SGD subtracted from the top-up")
	f.BoolVar(&asJSON, "json", false, "print the full outcome as JSON")
	f.BoolVar(&spoken, "spoken", false, "print the summary normalized for speech output")
	_ = cmd.MarkFlagRequired("trade")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func lookupCmd(g *globals) *cobra.Command {
	var (
		q      pricegrid.Query
		search bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "lookup <model>",
		Short: "Look up the trade-in value of one configuration",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			grid, err := app.LoadGrid(cmd.Context(), g.cfg.Grid)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			q.Model = strings.Join(args, " ")

			if search {
				rows := grid.Search(q.Model)
				if asJSON {
					return writeJSON(w, rows)
				}
				for _, e := range rows {
					fmt.Fprintf(w, "%s\t%s\n", e.Label(), e.Condition)
				}
				return nil
			}

			out, err := quote.New(grid).LookupPrice(q)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(w, out)
			}
			if out.Clarification != nil {
				fmt.Fprintln(w, out.Clarification.Question)
				return nil
			}
			fmt.Fprintln(w, out.Price.Summary)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&q.Variant, "variant", "", "variant, e.g. \"1TB Digital\"")
	f.StringVar(&q.Condition, "condition", "", "condition: brand_new, mint, good, fair or faulty")
	f.BoolVar(&search, "search", false, "list every row whose label contains the query")
	f.BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func gridCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Maintain the price grid",
	}
	cmd.AddCommand(gridImportCmd(g), gridExportCmd(g), gridJSONLCmd(g))
	return cmd
}

func gridImportCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Upsert a CSV grid into the configured PostgreSQL table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.cfg.Grid.PostgresDSN == "" {
				return errors.New("grid import needs grid.postgres_dsn or TRADEIN_POSTGRES_DSN")
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			entries, err := pricegrid.ReadCSV(f)
			if err != nil {
				return err
			}
			// Validate before touching the database.
			if _, err := pricegrid.New(entries, g.cfg.Grid.Version); err != nil {
				return err
			}

			src, pool, err := pricegrid.OpenPostgres(cmd.Context(), g.cfg.Grid.PostgresDSN, g.cfg.Grid.Table)
			if err != nil {
				return err
			}
			defer pool.Close()
			n, err := src.Upsert(cmd.Context(), entries)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "upserted %d rows into %s\n", n, g.cfg.Grid.Table)
			return nil
		},
	}
}

func gridExportCmd(g *globals) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the configured grid as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			grid, err := app.LoadGrid(cmd.Context(), g.cfg.Grid)
			if err != nil {
				return err
			}
			return withOutput(cmd, out, func(w io.Writer) error {
				return pricegrid.WriteCSV(w, grid.Entries())
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (stdout when empty)")
	return cmd
}

func gridJSONLCmd(g *globals) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "jsonl",
		Short: "Write one retrieval document per grid row as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			grid, err := app.LoadGrid(cmd.Context(), g.cfg.Grid)
			if err != nil {
				return err
			}
			return withOutput(cmd, out, func(w io.Writer) error {
				return pricegrid.WriteJSONL(w, grid)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (stdout when empty)")
	return cmd
}

// withOutput runs write against path, or the command's stdout when path is
// empty.
func withOutput(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	if path == "" {
		return write(cmd.OutOrStdout())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

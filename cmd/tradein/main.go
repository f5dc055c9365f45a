// Command tradein is the entry point for the trade-in intake service. It
// serves the HTTP API, exposes the tool catalogue over stdio and offers
// offline commands for quoting and price grid maintenance.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrWong99/tradein/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tradein: %v\n", err)
		return 1
	}
	return 0
}

// globals carries state resolved by the root command before any subcommand
// runs.
type globals struct {
	configPath string
	envFile    string

	cfg      *config.Config
	logLevel *slog.LevelVar
}

func newRootCmd() *cobra.Command {
	g := &globals{logLevel: new(slog.LevelVar)}

	root := &cobra.Command{
		Use:   "tradein",
		Short: "Trade-in intake brain for voice and chat agents",
		Long: `tradein tracks the trade-in checklist of each conversation, extracts
device and contact details from user turns, autosaves leads and quotes
top-ups from the price grid.

Configuration is read from a YAML file (--config) and environment variables.
A .env file in the working directory is loaded first when present.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load()
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to the YAML configuration file (defaults and environment only when empty)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", "", "dotenv file to load before reading configuration (default .env when present)")

	root.AddCommand(serveCmd(g))
	root.AddCommand(mcpCmd(g))
	root.AddCommand(quoteCmd(g))
	root.AddCommand(lookupCmd(g))
	root.AddCommand(gridCmd(g))
	root.AddCommand(versionCmd())
	return root
}

// load reads the dotenv file, the configuration and installs the process
// logger.
func (g *globals) load() error {
	if g.envFile != "" {
		if err := godotenv.Load(g.envFile); err != nil {
			return fmt.Errorf("load env file %q: %w", g.envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load(g.configPath)
	if err != nil {
		return err
	}
	g.cfg = cfg
	g.logLevel.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: g.logLevel})))
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// Skip configuration loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

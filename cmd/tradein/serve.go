package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/tradein/internal/app"
	"github.com/MrWong99/tradein/internal/config"
	"github.com/MrWong99/tradein/internal/observe"
)

// shutdownTimeout bounds graceful shutdown after a signal.
const shutdownTimeout = 15 * time.Second

func serveCmd(g *globals) *cobra.Command {
	var (
		watch         bool
		watchInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
				ServiceName:    g.cfg.Telemetry.ServiceName,
				ServiceVersion: version,
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdownTelemetry(context.Background()); err != nil {
					slog.Warn("telemetry shutdown error", "err", err)
				}
			}()

			slog.Info("tradein starting",
				"version", version,
				"config", g.configPath,
				"listen_addr", g.cfg.Server.ListenAddr,
				"log_level", g.cfg.Server.LogLevel,
			)

			application, err := app.New(ctx, g.cfg,
				app.WithLogLevel(g.logLevel),
				app.WithVersion(version),
			)
			if err != nil {
				return err
			}

			if watch && g.configPath != "" {
				w, err := config.NewWatcher(g.configPath, func(old, new *config.Config) {
					if err := application.ApplyConfig(ctx, old, new); err != nil {
						slog.Error("config reload failed", "err", err)
					}
				}, config.WithInterval(watchInterval))
				if err != nil {
					return err
				}
				defer w.Stop()

				hup := make(chan os.Signal, 1)
				signal.Notify(hup, syscall.SIGHUP)
				defer signal.Stop(hup)
				go func() {
					for {
						select {
						case <-ctx.Done():
							return
						case <-hup:
							if err := w.Reload(); err != nil {
								slog.Warn("config reload on SIGHUP rejected", "err", err)
							}
						}
					}
				}()
			}

			slog.Info("server ready, press Ctrl+C to shut down")
			runErr := application.Run(ctx)
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				slog.Error("run error", "err", runErr)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			slog.Info("shutdown signal received, stopping")
			if err := application.Shutdown(shutdownCtx); err != nil {
				return err
			}
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}
			slog.Info("goodbye")
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "reload the config file when it changes or on SIGHUP")
	cmd.Flags().DurationVar(&watchInterval, "watch-interval", config.DefaultWatchInterval, "config file polling interval")
	return cmd
}

func mcpCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the tool catalogue over stdin/stdout",
		Long: `Serve lookup_price, quote_top_up, get_checklist, normalize_speech and,
when a lead store is configured, submit_lead as MCP tools over stdio.
Logs go to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, g.cfg,
				app.WithLogLevel(g.logLevel),
				app.WithVersion(version),
			)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = application.Shutdown(shutdownCtx)
			}()

			if err := application.RunMCP(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

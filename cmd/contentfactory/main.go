package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ContentFactory/internal/app"
	"ContentFactory/internal/config"
	"ContentFactory/internal/logging"
)

var (
	limit     int
	debugMode bool
)

var rootCmd = &cobra.Command{
	Use:           "contentfactory",
	Short:         "Discover trending products and publish avatar videos about them",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduled runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
			return a.Serve(ctx)
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover products and process them once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
			batch, err := a.RunOnce(ctx, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), batch)
		})
	},
}

var processCmd = &cobra.Command{
	Use:   "process <product-id>",
	Short: "Process a previously discovered product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
			result, err := a.ProcessProduct(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover and rank products without processing them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.Application) error {
			outcome, err := a.Discover(ctx, limit)
			if err != nil {
				return err
			}
			out := map[string]interface{}{
				"products": outcome.Products,
				"warnings": outcome.Warnings,
			}
			if outcome.Err != nil {
				out["discovery_error"] = outcome.Err.Error()
			}
			return printJSON(cmd.OutOrStdout(), out)
		})
	},
}

func withApp(ctx context.Context, fn func(context.Context, *app.Application) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level := cfg.Logging.Level
	if debugMode {
		level = "debug"
	}
	logger := logging.NewWithWriter(os.Stderr, level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("close application", "error", err)
		}
	}()

	return fn(ctx, application)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	runCmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of products to process (0 uses the configured default)")
	discoverCmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of products to return (0 uses the configured default)")
	rootCmd.AddCommand(serveCmd, runCmd, processCmd, discoverCmd)
}

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

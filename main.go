package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/seo-optimizer/insights/analyzer"
	"github.com/seo-optimizer/insights/app"
	"github.com/seo-optimizer/insights/config"
	"github.com/seo-optimizer/insights/db"
	"github.com/seo-optimizer/insights/logging"
	"github.com/seo-optimizer/insights/models"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "insights",
	Short: "SEO and AI readability analysis service",
	Long: `insights serves combined performance, SEO and AI readability reports
for client websites, falling back to estimated data when upstream providers
are unavailable.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := build(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		a.RunBackground(ctx)
		srv := &http.Server{
			Addr:              a.Addr(),
			Handler:           a.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			a.Logger.WithField("addr", srv.Addr).Info("server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		a.Logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [URL]",
	Short: "Analyze a single URL and print the report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("strategy")
		strategy, err := models.ParseStrategy(raw)
		if err != nil {
			return err
		}
		a, err := build(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Analyzer.Analyze(cmd.Context(), analyzer.AnalysisRequest{URL: args[0], Strategy: strategy})
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
		return printJSON(res)
	},
}

var bulkCmd = &cobra.Command{
	Use:   "bulk [CLIENT_ID...]",
	Short: "Re-analyze stored clients in batches",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := build(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		run, err := a.Bulk.AnalyzeBulk(cmd.Context(), args)
		if err != nil {
			return err
		}
		return printJSON(run)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return errors.New("DATABASE_URL is not set")
		}
		opts := db.OptionsFromEnv(db.DefaultCLIOptions())
		opts.Logger = logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
		conn, err := db.Connect(cmd.Context(), cfg.Database.URL, opts)
		if err != nil {
			return err
		}
		defer conn.Close()
		if err := db.RunMigrations(cmd.Context(), conn); err != nil {
			return err
		}
		fmt.Println("migrations applied")
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear cached analyses",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [PREFIX]",
	Short: "Drop cached results and payloads, optionally only keys under PREFIX",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := build(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		n := a.Analyzer.ClearCache(cmd.Context(), prefix)
		fmt.Printf("cleared %d entries\n", n)
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := build(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return printJSON(a.Analyzer.CacheStats())
	},
}

func build(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	analyzeCmd.Flags().String("strategy", "mobile", "Device profile (mobile, desktop)")

	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(bulkCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(cacheCmd)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Docdexd is the document indexing and retrieval daemon.
//
// It serves an HTTP API for managing access-controlled collections,
// ingesting file and URL resources through a chunk/embed/index pipeline,
// and running hybrid semantic search over the indexed chunks.
//
// Usage:
//
//	# Start the server with defaults
//	docdexd serve
//
//	# Start with a config file
//	docdexd serve --config /etc/docdex/config.yaml
//
//	# Backfill vector index entries missing for committed chunks
//	docdexd reconcile
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/covelabs/docdex/internal/store"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "docdexd",
	Short:   "Document indexing and retrieval daemon",
	Version: fmt.Sprintf("%s (%s)", version, gitCommit),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(migrateCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	app, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.buildCore(ctx); err != nil {
		return err
	}
	if err := app.buildServices(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Server.Start()
	}()
	app.Logger.Info(ctx, "docdexd started",
		zap.String("host", app.Config.Server.Host),
		zap.Int("port", app.Config.Server.Port),
		zap.String("version", version))

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	app.Logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Warn(shutdownCtx, "server shutdown", zap.Error(err))
	}
	// Let queued index work drain before the pool is torn down.
	app.Runner.Wait()
	return nil
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Backfill index entries for chunks missing from the vector index",
	RunE:  runReconcile,
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	app, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.buildCore(ctx); err != nil {
		return err
	}

	start := time.Now()
	report, err := app.reconciler().Run(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	fmt.Printf("scanned %d chunks, %d missing, %d backfilled in %s\n",
		report.Scanned, report.Missing, report.Backfilled, time.Since(start).Round(time.Millisecond))
	return nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations and exit",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	app, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer app.Close()

	// Opening the store migrates the schema.
	if _, err := store.Open(app.Config.Database.DSN, app.Logger); err != nil {
		return err
	}
	fmt.Println("schema up to date")
	return nil
}

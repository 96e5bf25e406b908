package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/snapdoc/snapdoc/pkg/config"
	"github.com/snapdoc/snapdoc/pkg/logger"
	"github.com/snapdoc/snapdoc/pkg/worker"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapworkerd",
		Short: "snapdoc PDF worker service",
		Long:  "snapworkerd waits for readiness markers, processes image batches into print-ready PDFs, and serves the result over HTTP to the collector.",
	}
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "snapworkerd %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func newServeCmd() *cobra.Command {
	var configPath string
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the worker HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath, listenAddr)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (JSON; env vars override)")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides config)")
	return cmd
}

func serve(configPath, listenAddr string) error {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg)

	if listenAddr == "" {
		listenAddr = cfg.Worker.Listen
	}

	svc, err := worker.NewService(cfg)
	if err != nil {
		return fmt.Errorf("init worker service: %w", err)
	}
	srv := worker.NewServer(svc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(listenAddr)
	}()

	logger.InfoCF("snapworkerd", "Worker up", map[string]interface{}{
		"version": Version,
		"listen":  listenAddr,
		"uploads": cfg.UploadPath(),
		"outputs": svc.OutputRoot(),
	})

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.InfoC("snapworkerd", "Shutdown complete")
	return nil
}

func setupLogging(cfg *config.Config) {
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.FileEnabled && cfg.Logging.FilePath != "" {
		if err := logger.EnableFileLogging(cfg.Logging.FilePath, cfg.Logging.MaxSizeMB, cfg.Logging.MaxAgeDays); err != nil {
			logger.WarnCF("snapworkerd", "File logging unavailable", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/snapdoc/snapdoc/pkg/bus"
	"github.com/snapdoc/snapdoc/pkg/channels"
	"github.com/snapdoc/snapdoc/pkg/cleanup"
	"github.com/snapdoc/snapdoc/pkg/collector"
	"github.com/snapdoc/snapdoc/pkg/config"
	"github.com/snapdoc/snapdoc/pkg/history"
	"github.com/snapdoc/snapdoc/pkg/logger"
	"github.com/snapdoc/snapdoc/pkg/session"
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
		Use:   "snapdocd",
		Short: "snapdoc collector daemon",
		Long:  "snapdocd listens on the configured chat channels, banks incoming images per user, and turns finished batches into PDF documents.",
	}
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "snapdocd %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the collector bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (JSON; env vars override)")
	return cmd
}

func runDaemon(configPath string) error {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := session.NewStore(filepath.Join(cfg.DataPath(), "sessions.json"), cfg.SessionFlushDebounce())
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	hist := history.NewStore(cfg.DataPath())

	// A configured worker URL means batches go to a remote snapworkerd;
	// otherwise the whole pipeline runs in this process.
	var invoker worker.Invoker
	outputRoot := filepath.Join(cfg.DataPath(), "outputs")
	if cfg.Worker.URL != "" {
		client := worker.NewClient(cfg.Worker.URL)
		if cfg.Worker.FallbackLocal {
			svc, err := worker.NewService(cfg)
			if err != nil {
				return fmt.Errorf("init worker service: %w", err)
			}
			invoker = worker.NewFailover(client, worker.Local{Service: svc})
			outputRoot = svc.OutputRoot()
		} else {
			invoker = client
		}
		logger.InfoCF("snapdocd", "Using remote worker", map[string]interface{}{
			"url":            cfg.Worker.URL,
			"fallback_local": cfg.Worker.FallbackLocal,
		})
	} else {
		svc, err := worker.NewService(cfg)
		if err != nil {
			return fmt.Errorf("init worker service: %w", err)
		}
		invoker = worker.Local{Service: svc}
		outputRoot = svc.OutputRoot()
	}

	coll, err := collector.New(cfg, store, hist, invoker)
	if err != nil {
		return fmt.Errorf("init collector: %w", err)
	}

	messageBus := bus.NewMessageBus()
	manager, err := channels.NewManager(cfg.Channels, messageBus)
	if err != nil {
		return fmt.Errorf("init channels: %w", err)
	}
	if manager.Count() == 0 {
		return fmt.Errorf("no channels enabled; enable at least one channel in the config")
	}

	janitor, err := cleanup.NewJanitor(cfg.UploadPath(), outputRoot, cfg.OutputRetention(), cfg.Cleanup.SweepCron, coll.IsLive)
	if err != nil {
		return fmt.Errorf("init janitor: %w", err)
	}
	go janitor.Run(ctx)

	if err := manager.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}

	logger.InfoCF("snapdocd", "Collector up", map[string]interface{}{
		"version":  Version,
		"channels": manager.Names(),
		"uploads":  cfg.UploadPath(),
	})

	loop := collector.NewLoop(coll, messageBus)
	err = loop.Run(ctx)

	loop.Stop()
	manager.StopAll(context.Background())
	logger.InfoC("snapdocd", "Shutdown complete")
	return err
}

func setupLogging(cfg *config.Config) {
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.FileEnabled && cfg.Logging.FilePath != "" {
		if err := logger.EnableFileLogging(cfg.Logging.FilePath, cfg.Logging.MaxSizeMB, cfg.Logging.MaxAgeDays); err != nil {
			logger.WarnCF("snapdocd", "File logging unavailable", map[string]interface{}{
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

package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/relay/internal/control"
	"github.com/vietddude/relay/internal/core/config"
)

var (
	cfgPath       string
	isDebug       bool
	immediateStop bool
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay event delivery service",
	Long:  `Relay accepts analytics events over HTTP and reliably delivers them to a remote ingestion endpoint with batching and retry.`,
	Run:   runRelay,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&immediateStop, "immediate-stop", false, "flush pending retries on shutdown instead of abandoning them")
}

func runRelay(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	// Load Configuration
	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	// Transform config
	controlCfg := control.Config{
		Port:     cfg.Server.Port,
		Upstream: cfg.Upstream,
		Dispatch: cfg.Dispatch,
		Redis:    cfg.Redis,
	}

	// Initialize Relay
	app, err := control.NewRelay(controlCfg)
	if err != nil {
		slog.Error("Failed to initialize Relay", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start Relay", "error", err)
		os.Exit(1)
	}

	slog.Info("Relay started", "config", cfgPath)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// immediateStop abandons scheduled retry delays and gives every
	// stored request one final attempt before exiting.
	if err := app.Stop(shutdownCtx, immediateStop); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}

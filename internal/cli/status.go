package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/relay/internal/core/config"
	redisclient "github.com/vietddude/relay/internal/infra/redis"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dead-lettered requests from the journal",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Redis.URL == "" {
		slog.Error("No redis.url configured, dead-letter journal is disabled")
		os.Exit(1)
	}

	client, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = client.Close()
	}()

	repo := redisclient.NewDeadLetterRepo(client, 24*time.Hour)
	entries, err := repo.GetAll(context.Background())
	if err != nil {
		slog.Error("Failed to read dead-letter journal", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tENDPOINT\tREASON\tRETRIES\tDROPPED\tDETAIL")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.ID, e.Endpoint, e.Reason, e.Retries,
			e.DroppedAt.Format(time.RFC3339), e.Detail)
	}
	_ = w.Flush()
}

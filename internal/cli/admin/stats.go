package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/lexatlas/lexrag/internal/config"
	"github.com/lexatlas/lexrag/internal/database"
	"github.com/lexatlas/lexrag/internal/repository"
	"github.com/lexatlas/lexrag/internal/service"
)

func StatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show corpus and query statistics",
		Long:  "Show document, chunk and query counters for the indexed corpus",
		RunE:  runStats,
	}

	cmd.Flags().String("output", "text", "Output format (text or json)")

	return cmd
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	outputFormat, _ := cmd.Flags().GetString("output")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	documentRepo := repository.NewDocumentRepository(pool)
	queryLogRepo := repository.NewQueryLogRepository(pool)

	systemSvc, err := service.NewSystemService(documentRepo, queryLogRepo, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create system service: %w", err)
	}

	stats, err := systemSvc.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to gather statistics: %w", err)
	}

	if outputFormat == "json" {
		out := struct {
			TotalDocuments   int64  `json:"total_documents"`
			IndexedDocuments int64  `json:"indexed_documents"`
			FailedDocuments  int64  `json:"failed_documents"`
			TotalChunks      int64  `json:"total_chunks"`
			TotalQueries     int64  `json:"total_queries"`
			LastQueryAt      string `json:"last_query_at,omitempty"`
		}{
			TotalDocuments:   stats.TotalDocuments,
			IndexedDocuments: stats.IndexedDocuments,
			FailedDocuments:  stats.FailedDocuments,
			TotalChunks:      stats.TotalChunks,
			TotalQueries:     stats.TotalQueries,
		}
		if stats.LastQueryAt != nil {
			out.LastQueryAt = stats.LastQueryAt.UTC().Format(time.RFC3339)
		}
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("Documents: %d total, %d indexed, %d failed\n", stats.TotalDocuments, stats.IndexedDocuments, stats.FailedDocuments)
	fmt.Printf("Chunks:    %d\n", stats.TotalChunks)
	fmt.Printf("Queries:   %d\n", stats.TotalQueries)
	if stats.LastQueryAt != nil {
		fmt.Printf("Last query: %s\n", stats.LastQueryAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return database.Connect(ctx, database.Config{URL: cfg.DatabaseURL})
}

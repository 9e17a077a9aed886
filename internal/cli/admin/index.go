package admin

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexatlas/lexrag/internal/config"
	"github.com/lexatlas/lexrag/internal/domain"
	"github.com/lexatlas/lexrag/internal/jobs"
	"github.com/lexatlas/lexrag/internal/repository"
	"github.com/lexatlas/lexrag/internal/service"
	"github.com/lexatlas/lexrag/internal/storage"
)

// csvCoreColumns are the CSV columns that map to document fields rather
// than metadata.
var csvCoreColumns = map[string]bool{
	"id":            true,
	"title":         true,
	"document_type": true,
	"court":         true,
	"case_number":   true,
}

func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index a document corpus",
		Long: "Index legal documents from a metadata CSV. Each row names a document id " +
			"whose text is read from <dir>/<id>.txt; columns beyond id, title, " +
			"document_type, court and case_number become document metadata.",
		RunE: runIndex,
	}

	cmd.Flags().StringP("csv", "c", "", "Path to the metadata CSV (required)")
	cmd.Flags().StringP("dir", "d", "", "Directory containing <id>.txt files (defaults to the CSV directory)")
	cmd.Flags().IntP("workers", "w", jobs.DefaultWorkers, "Number of concurrent indexing workers")
	cmd.Flags().String("output", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("csv")

	return cmd
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	csvPath, _ := cmd.Flags().GetString("csv")
	textDir, _ := cmd.Flags().GetString("dir")
	workers, _ := cmd.Flags().GetInt("workers")
	outputFormat, _ := cmd.Flags().GetString("output")

	if textDir == "" {
		textDir = filepath.Dir(csvPath)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasOpenAI() {
		return fmt.Errorf("embedding client not configured: LEXRAG_OPENAI_API_KEY required")
	}

	requests, err := loadIndexRequests(csvPath, textDir)
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		return fmt.Errorf("no documents found in %s", csvPath)
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	documentRepo := repository.NewDocumentRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	normalizer := service.NewTextNormalizer()
	chunker, err := service.NewChunker(service.ChunkConfig{
		Size:    cfg.ChunkSize,
		Overlap: cfg.ChunkOverlap,
		MinSize: cfg.MinChunkSize,
		MaxSize: cfg.MaxChunkSize,
	}, normalizer, nil)
	if err != nil {
		return fmt.Errorf("invalid chunk configuration: %w", err)
	}

	var archive service.DocumentArchive
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		archive = storage.NewDocumentArchive(s3Client)
	}

	indexingSvc, err := service.NewIndexingServiceWithArchive(chunker, buildEmbeddingClient(cfg), txRunner, documentRepo, archive, nil)
	if err != nil {
		return fmt.Errorf("failed to create indexing service: %w", err)
	}

	indexer := jobs.NewBatchIndexer(indexingSvc, workers, nil)
	result := indexer.Run(ctx, requests)

	if outputFormat == "json" {
		printIndexJSON(result)
	} else {
		printIndexText(result)
	}

	if result.Failed > 0 {
		return fmt.Errorf("%d of %d documents failed to index", result.Failed, result.Total)
	}
	return nil
}

// loadIndexRequests reads the metadata CSV and pairs each row with the
// document text at <textDir>/<id>.txt.
func loadIndexRequests(csvPath, textDir string) ([]service.IndexRequest, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["id"]; !ok {
		return nil, fmt.Errorf("CSV %s is missing the required 'id' column", csvPath)
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var requests []service.IndexRequest
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		id := field(row, "id")
		if id == "" {
			return nil, fmt.Errorf("CSV line %d has no document id", line)
		}

		textPath := filepath.Join(textDir, id+".txt")
		text, err := os.ReadFile(textPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read document text for %s: %w", id, err)
		}

		metadata := domain.Metadata{}
		for name, i := range col {
			if csvCoreColumns[name] || i >= len(row) {
				continue
			}
			if v := strings.TrimSpace(row[i]); v != "" {
				metadata[name] = v
			}
		}

		requests = append(requests, service.IndexRequest{
			DocumentID:   id,
			Title:        field(row, "title"),
			DocumentType: field(row, "document_type"),
			Court:        field(row, "court"),
			CaseNumber:   field(row, "case_number"),
			SourcePath:   textPath,
			Text:         string(text),
			Metadata:     metadata,
		})
	}

	return requests, nil
}

func printIndexText(result *jobs.BatchResult) {
	for _, outcome := range result.Results {
		if outcome.Err != nil {
			fmt.Printf("  %s: FAILED (%v)\n", outcome.DocumentID, outcome.Err)
			continue
		}
		fmt.Printf("  %s: %d chunks", outcome.DocumentID, outcome.Result.Chunks)
		if outcome.Result.Truncated > 0 {
			fmt.Printf(" (%d truncated)", outcome.Result.Truncated)
		}
		fmt.Println()
	}
	fmt.Printf("\nIndexed %d/%d documents (%.1f%% success)\n", result.Succeeded, result.Total, result.SuccessRate)
}

func printIndexJSON(result *jobs.BatchResult) {
	type documentReport struct {
		DocumentID string `json:"document_id"`
		Chunks     int    `json:"chunks_indexed,omitempty"`
		Truncated  int    `json:"chunks_truncated,omitempty"`
		Error      string `json:"error,omitempty"`
	}

	out := struct {
		Total       int              `json:"total"`
		Succeeded   int              `json:"succeeded"`
		Failed      int              `json:"failed"`
		SuccessRate float64          `json:"success_rate"`
		Documents   []documentReport `json:"documents"`
	}{
		Total:       result.Total,
		Succeeded:   result.Succeeded,
		Failed:      result.Failed,
		SuccessRate: result.SuccessRate,
		Documents:   make([]documentReport, 0, len(result.Results)),
	}

	for _, outcome := range result.Results {
		report := documentReport{DocumentID: outcome.DocumentID}
		if outcome.Err != nil {
			report.Error = outcome.Err.Error()
		} else {
			report.Chunks = outcome.Result.Chunks
			report.Truncated = outcome.Result.Truncated
		}
		out.Documents = append(out.Documents, report)
	}

	data, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(data))
}

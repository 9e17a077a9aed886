package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexatlas/lexrag/internal/config"
	"github.com/lexatlas/lexrag/internal/domain"
	"github.com/lexatlas/lexrag/internal/gemini"
	"github.com/lexatlas/lexrag/internal/repository"
	"github.com/lexatlas/lexrag/internal/service"
)

func QueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Ask a question against the indexed corpus",
		Long:  "Run one retrieval-augmented query against the indexed corpus and print the response",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuery,
	}

	cmd.Flags().IntP("top-k", "k", 10, "Number of fragments to retrieve")
	cmd.Flags().Bool("no-answer", false, "Skip answer generation and print retrieved context only")
	cmd.Flags().String("output", "text", "Output format (text or json)")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	query := args[0]
	topK, _ := cmd.Flags().GetInt("top-k")
	noAnswer, _ := cmd.Flags().GetBool("no-answer")
	outputFormat, _ := cmd.Flags().GetString("output")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasOpenAI() {
		return fmt.Errorf("embedding client not configured: LEXRAG_OPENAI_API_KEY required")
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	chunkRepo := repository.NewChunkRepository(pool)
	queryLogRepo := repository.NewQueryLogRepository(pool)

	searchSvc, err := service.NewSearchService(buildEmbeddingClient(cfg), chunkRepo)
	if err != nil {
		return fmt.Errorf("failed to create search service: %w", err)
	}

	normalizer := service.NewTextNormalizer()
	patterns := service.DefaultFilterPatterns()
	if cfg.FilterPatternsPath != "" {
		loaded, err := service.LoadFilterPatterns(cfg.FilterPatternsPath)
		if err != nil {
			return fmt.Errorf("failed to load filter patterns: %w", err)
		}
		patterns = loaded
	}
	extractor, err := service.NewFilterExtractor(patterns, normalizer)
	if err != nil {
		return fmt.Errorf("failed to create filter extractor: %w", err)
	}

	correlator, err := service.NewCorrelator(searchSvc, extractor, normalizer, service.DefaultCorrelatorConfig(), nil)
	if err != nil {
		return fmt.Errorf("failed to create correlator: %w", err)
	}

	var generator service.AnswerGenerator
	if cfg.HasGoogleAI() && !noAnswer {
		geminiClient, err := gemini.NewClientWithConfig(ctx, gemini.Config{
			APIKey: cfg.GoogleAIAPIKey,
			Model:  cfg.GeminiModel,
		})
		if err != nil {
			return fmt.Errorf("failed to create Gemini client: %w", err)
		}
		generator = geminiClient
	}

	answerSvc, err := service.NewAnswerService(correlator, generator, service.NewQueryHistoryService(queryLogRepo), nil)
	if err != nil {
		return fmt.Errorf("failed to create answer service: %w", err)
	}

	result, err := answerSvc.Answer(ctx, query, topK)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if outputFormat == "json" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println(result.Response)
	fmt.Printf("\n%d fragments retrieved in %s\n", result.ResultCount, result.Duration.Round(time.Millisecond))
	if len(result.Applied) > 0 {
		fmt.Printf("structured filters: %s\n", formatFilterSet(result.Applied))
	}
	return nil
}

func formatFilterSet(filters domain.FilterSet) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, filters[k]))
	}
	return strings.Join(parts, ", ")
}

package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	openailib "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/lexatlas/lexrag/internal/api/handlers"
	"github.com/lexatlas/lexrag/internal/config"
	"github.com/lexatlas/lexrag/internal/database"
	"github.com/lexatlas/lexrag/internal/gemini"
	"github.com/lexatlas/lexrag/internal/jobs"
	"github.com/lexatlas/lexrag/internal/openai"
	"github.com/lexatlas/lexrag/internal/repository"
	"github.com/lexatlas/lexrag/internal/server"
	"github.com/lexatlas/lexrag/internal/service"
	"github.com/lexatlas/lexrag/internal/storage"
	"github.com/lexatlas/lexrag/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the lexrag API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if LEXRAG_SENTRY_DSN is set
	if cfg.HasSentry() {
		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if cfg.SentryEnvironment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.Connect(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	documentRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	queryLogRepo := repository.NewQueryLogRepository(pool)
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

	patterns := service.DefaultFilterPatterns()
	if cfg.FilterPatternsPath != "" {
		loaded, err := service.LoadFilterPatterns(cfg.FilterPatternsPath)
		if err != nil {
			return fmt.Errorf("failed to load filter patterns: %w", err)
		}
		patterns = loaded
		log.Printf("loaded filter patterns from %s", cfg.FilterPatternsPath)
	}
	extractor, err := service.NewFilterExtractor(patterns, normalizer)
	if err != nil {
		return fmt.Errorf("failed to create filter extractor: %w", err)
	}

	var archive *storage.DocumentArchive
	if cfg.HasS3() {
		s3Config := storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		}
		s3Client, err := storage.NewS3Client(ctx, s3Config)
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		archive = storage.NewDocumentArchive(s3Client)
	}

	var embedder service.EmbeddingClient
	if cfg.HasOpenAI() {
		embedder = buildEmbeddingClient(cfg)
	} else {
		embedder = &NoOpEmbeddingClient{}
		log.Println("no OpenAI key configured, query and indexing endpoints will reject requests")
	}

	searchSvc, err := service.NewSearchService(embedder, chunkRepo)
	if err != nil {
		return fmt.Errorf("failed to create search service: %w", err)
	}

	correlator, err := service.NewCorrelator(searchSvc, extractor, normalizer, service.DefaultCorrelatorConfig(), nil)
	if err != nil {
		return fmt.Errorf("failed to create correlator: %w", err)
	}

	historySvc := service.NewQueryHistoryService(queryLogRepo)

	var generator service.AnswerGenerator
	if cfg.HasGoogleAI() {
		geminiClient, err := gemini.NewClientWithConfig(ctx, gemini.Config{
			APIKey: cfg.GoogleAIAPIKey,
			Model:  cfg.GeminiModel,
		})
		if err != nil {
			return fmt.Errorf("failed to create Gemini client: %w", err)
		}
		generator = geminiClient
		log.Println("answer generation enabled")
	} else {
		log.Println("no Google AI key configured, responses will contain retrieved context only")
	}

	answerSvc, err := service.NewAnswerService(correlator, generator, historySvc, nil)
	if err != nil {
		return fmt.Errorf("failed to create answer service: %w", err)
	}

	var linker service.ArchiveLinker
	if archive != nil {
		linker = archive
	}
	catalogSvc, err := service.NewCatalogService(documentRepo, linker, nil)
	if err != nil {
		return fmt.Errorf("failed to create catalog service: %w", err)
	}

	systemSvc, err := service.NewSystemService(documentRepo, queryLogRepo, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to create system service: %w", err)
	}

	var reindexWorker *jobs.ReindexWorker
	if archive != nil && cfg.HasOpenAI() {
		indexingSvc, err := service.NewIndexingServiceWithArchive(chunker, embedder, txRunner, documentRepo, archive, nil)
		if err != nil {
			return fmt.Errorf("failed to create indexing service: %w", err)
		}
		reindexWorker = jobs.NewReindexWorker(documentRepo, archive, indexingSvc, jobs.DefaultReindexInterval, nil)
		go reindexWorker.Start(ctx)
		log.Println("reindex worker started")
	}

	routerCfg := server.RouterConfig{
		QueryHandler:    handlers.NewQueryHandler(answerSvc),
		HistoryHandler:  handlers.NewHistoryHandler(historySvc),
		MetadataHandler: handlers.NewMetadataHandler(catalogSvc),
		SystemHandler:   handlers.NewSystemHandler(systemSvc),
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if reindexWorker != nil {
		reindexWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func buildEmbeddingClient(cfg *config.Config) *openai.Client {
	return openai.NewClientWithConfig(openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		EmbeddingModel:      openailib.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
	})
}

// NoOpEmbeddingClient stands in when no OpenAI key is configured so the
// server can still serve history and metadata endpoints.
type NoOpEmbeddingClient struct{}

func (c *NoOpEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding client not configured: LEXRAG_OPENAI_API_KEY required")
}

func (c *NoOpEmbeddingClient) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("embedding client not configured: LEXRAG_OPENAI_API_KEY required")
}

func runMigrations(databaseURL string) error {
	// golang-migrate drives a database/sql connection, not the pgx pool
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://migrations", "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	upErr := m.Up()
	if upErr != nil && upErr != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", upErr)
	}

	version, dirty, err := m.Version()
	switch {
	case err == migrate.ErrNilVersion:
		log.Println("migrations: no migrations to apply")
	case err != nil:
		return fmt.Errorf("failed to get migration version: %w", err)
	case dirty:
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	case upErr == migrate.ErrNoChange:
		log.Printf("migrations: database is up to date (version %d)", version)
	default:
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}

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
	openaisdk "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/kaelo-ai/kaelo/internal/api/handlers"
	"github.com/kaelo-ai/kaelo/internal/cache"
	"github.com/kaelo-ai/kaelo/internal/config"
	"github.com/kaelo-ai/kaelo/internal/database"
	"github.com/kaelo-ai/kaelo/internal/jobs"
	"github.com/kaelo-ai/kaelo/internal/openai"
	"github.com/kaelo-ai/kaelo/internal/pipeline"
	"github.com/kaelo-ai/kaelo/internal/repository"
	"github.com/kaelo-ai/kaelo/internal/server"
	"github.com/kaelo-ai/kaelo/internal/service"
	"github.com/kaelo-ai/kaelo/internal/storage"
	"github.com/kaelo-ai/kaelo/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the guidance API server",
		Long:  "Start the kaelo API server on the specified port",
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

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
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

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
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

	chunkRepo := repository.NewKnowledgeChunkRepository(pool)
	guidanceLogRepo := repository.NewGuidanceLogRepository(pool)
	ingestJobRepo := repository.NewIngestJobRepository(pool)

	if !cfg.HasOpenAI() {
		return fmt.Errorf("KAELO_OPENAI_API_KEY is required to serve guidance")
	}
	llmClient := openai.NewClientWithConfig(openai.Config{
		APIKey:         cfg.OpenAIAPIKey,
		EmbeddingModel: openaisdk.EmbeddingModel(cfg.EmbeddingModel),
	})

	var cacheStore cache.Store
	if cfg.HasRedis() {
		redisStore, err := cache.NewRedisStoreFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisStore.Close()
		cacheStore = redisStore
		log.Println("connected to redis cache")
	} else {
		cacheStore = cache.NewMemoryStore()
		log.Println("using in-memory cache")
	}
	outcomeCache := cache.New(cacheStore, cfg.CacheTTL, cfg.CacheVersion)

	retriever := pipeline.NewRetriever(chunkRepo, pipeline.RetrieverConfig{
		Threshold: cfg.SimilarityThreshold,
		Limit:     cfg.RetrievalLimit,
	})
	generator := pipeline.NewDraftGenerator(llmClient, cfg.GenerateModel)
	verifier := pipeline.NewLLMVerifier(llmClient, cfg.VerifyModel)

	guidancePipeline := pipeline.New(
		llmClient,
		retriever,
		generator,
		verifier,
		outcomeCache,
		guidanceLogRepo,
		pipeline.Config{
			SkipLLMVerifyDefault: cfg.SkipLLMVerify,
			EmbedTimeout:         cfg.EmbedTimeout,
			LLMTimeout:           cfg.LLMTimeout,
		},
	)

	var ingestWorker *jobs.Worker
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
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)

		ingestSvc := service.NewIngestionService(s3Client, llmClient, chunkRepo)
		ingestProcessor := jobs.NewIngestWorker(ingestJobRepo, ingestSvc)
		ingestWorker = jobs.NewWorker("ingest", ingestProcessor, 10*time.Second)
		go ingestWorker.Start(ctx)
		log.Println("ingest worker started")
	} else {
		log.Println("S3 not configured, ingest worker disabled")
	}

	guidanceHandler := handlers.NewGuidanceHandler(guidancePipeline)
	adminHandler := handlers.NewAdminHandler(chunkRepo, guidanceLogRepo, outcomeCache, ingestJobRepo)

	router := server.NewRouter(server.RouterConfig{
		GuidanceHandler: guidanceHandler,
		AdminHandler:    adminHandler,
	})

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

	if ingestWorker != nil {
		ingestWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}

package admin

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kaelo-ai/kaelo/internal/config"
	"github.com/kaelo-ai/kaelo/internal/database"
	"github.com/kaelo-ai/kaelo/internal/domain"
	"github.com/kaelo-ai/kaelo/internal/repository"
	"github.com/kaelo-ai/kaelo/internal/storage"
)

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	var (
		category string
		all      bool
		prefix   string
	)

	cmd := &cobra.Command{
		Use:   "ingest [object-key]",
		Short: "Queue corpus documents for ingestion",
		Long:  "Queues one bucket object, or every object under a prefix, for chunking and embedding by the ingest worker",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("provide an object key or use --all")
			}
			if all && len(args) > 0 {
				return fmt.Errorf("--all cannot be combined with an object key")
			}

			objectKey := ""
			if len(args) == 1 {
				objectKey = args[0]
			}
			return runIngest(cmd.Context(), objectKey, category, all, prefix)
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "Category recorded on every chunk from these documents")
	cmd.Flags().BoolVar(&all, "all", false, "Queue every document in the corpus bucket")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Restrict --all to objects under this key prefix")

	return cmd
}

func runIngest(ctx context.Context, objectKey, category string, all bool, prefix string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	jobRepo := repository.NewIngestJobRepository(pool)

	keys := []string{objectKey}
	if all {
		if !cfg.HasS3() {
			return fmt.Errorf("S3 is not configured; set KAELO_S3_ENDPOINT and credentials")
		}
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
		keys, err = s3Client.ListDocuments(ctx, prefix)
		if err != nil {
			return fmt.Errorf("failed to list documents: %w", err)
		}
		if len(keys) == 0 {
			log.Println("no documents found in bucket")
			return nil
		}
	}

	for _, key := range keys {
		job := domain.NewIngestJob(uuid.NewString(), key, category)
		if err := jobRepo.Create(ctx, job); err != nil {
			return fmt.Errorf("failed to queue %s: %w", key, err)
		}
		log.Printf("queued %s (job %s)", key, job.ID)
	}

	log.Printf("queued %d document(s)", len(keys))
	return nil
}

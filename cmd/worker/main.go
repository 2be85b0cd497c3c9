package main

import (
	"context"
	"os/signal"
	"syscall"

	"app/internal/config"
	"app/internal/logger"
	"app/internal/pgmq"
	"app/internal/provider"
	"app/internal/pubsub"
	"app/internal/repository"
	"app/internal/service"
	"app/internal/worker"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	logger := logger.New()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}
	if err := service.ResolveConfigSecrets(context.Background(), cfg); err != nil {
		logger.Fatal().Msgf("Error resolving secrets: %v", err)
	}

	// Initialize DB pool
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		logger.Fatal().Msgf("Failed to create DB pool: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(context.Background()); err != nil {
		logger.Fatal().Msgf("Failed to ping DB: %v", err)
	}
	logger.Info().Msg("Database connection established")

	// Initialize S3 client for export storage
	s3Config, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
	)
	if err != nil {
		logger.Fatal().Msgf("Failed to load S3 config: %v", err)
	}
	s3Client := s3.NewFromConfig(s3Config, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3URL)
		o.UsePathStyle = true
	})

	// Initialize Pub/Sub publisher and signed event emitter
	publisher, err := pubsub.NewPublisher(context.Background(), cfg)
	if err != nil {
		logger.Fatal().Msgf("Failed to create Pub/Sub publisher: %v", err)
	}
	emitter := pubsub.NewEventEmitter(publisher, cfg.JobEventTopic, cfg.WebhookSecret, logger)

	// Wire the worker
	jobRepo := repository.NewJobRepo(pool)
	nicheRepo := repository.NewNicheRepo(pool, logger)
	creditRepo := repository.NewCreditRepo(pool)
	queue := pgmq.New(pool)
	adapter := provider.NewHTTPAdapter(cfg.ProviderBaseURL, cfg.ProviderAPIKey, logger)
	exportSvc := service.NewExportService(s3Client, cfg.S3Bucket, logger)
	store := worker.NewS3Store(s3Client, cfg.S3Bucket, exportSvc.StoreKey, logger)
	dlqSvc := service.NewDLQService(repository.NewDLQRepo(pool), queue, cfg.GenerationQueueName, logger)

	w := worker.New(jobRepo, nicheRepo, creditRepo, queue, adapter, store, emitter, dlqSvc, cfg, logger)

	// Run until interrupted
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := w.Run(ctx); err != nil {
		logger.Fatal().Msgf("Generation worker failed: %v", err)
	}
	logger.Info().Msg("Generation worker stopped gracefully")
}

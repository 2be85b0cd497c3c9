package router

import (
	"context"
	"net/http"
	"strings"

	"app/internal/api/v1/handler"
	"app/internal/config"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/pgmq"
	"app/internal/pubsub"
	"app/internal/repository"
	"app/internal/service"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsmiddleware "github.com/aws/smithy-go/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

func New(cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, error) {
	logger.Info().Str("environment", cfg.Environment).Msg("Router initializing")

	// 1. Open DB connection pool
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create DB pool")
		return nil, nil, err
	}
	if err := pool.Ping(context.Background()); err != nil {
		logger.Error().Err(err).Msg("Failed to ping DB")
		return nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	// 2. Initialize S3 client
	s3Config, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeDisableGzip()}),
	)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load S3 config")
		return nil, nil, err
	}
	s3Client := s3.NewFromConfig(s3Config, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3URL)
		o.UsePathStyle = true
	})

	// 3. Initialize validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 4. Initialize Pub/Sub publisher and signed event emitter
	pubSubPublisher, err := pubsub.NewPublisher(context.Background(), cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create Pub/Sub publisher")
		return nil, nil, err
	}
	emitter := pubsub.NewEventEmitter(pubSubPublisher, cfg.JobEventTopic, cfg.WebhookSecret, logger)

	// 5. Initialize repositories & services & handlers
	queue := pgmq.New(pool)

	userRepo := repository.NewUserRepo(pool)
	nicheRepo := repository.NewNicheRepo(pool, logger)
	jobRepo := repository.NewJobRepo(pool)
	creditRepo := repository.NewCreditRepo(pool)
	subRepo := repository.NewSubscriptionRepo(pool)

	userSvc := service.NewUserService(userRepo)
	nicheSvc := service.NewNicheService(nicheRepo, logger)
	creditSvc := service.NewCreditService(creditRepo, logger)
	jobSvc := service.NewJobService(jobRepo, nicheRepo, userRepo, creditRepo, queue, cfg.GenerationQueueName, emitter, logger)
	exportSvc := service.NewExportService(s3Client, cfg.S3Bucket, logger)
	subSvc := service.NewSubscriptionService(subRepo, userRepo, creditRepo, logger)
	stripeSvc := service.NewStripeService(cfg, userRepo, creditRepo, subSvc, logger)
	dlqSvc := service.NewDLQService(repository.NewDLQRepo(pool), queue, cfg.GenerationQueueName, logger)

	userHandler := handler.NewUserHandler(userSvc, creditSvc, subSvc, validate)
	nicheHandler := handler.NewNicheHandler(nicheSvc, validate)
	jobHandler := handler.NewJobHandler(jobSvc, exportSvc, validate)
	billingHandler := handler.NewSubscriptionHandler(stripeSvc, subSvc, creditSvc, validate)
	dlqHandler := handler.NewDLQHandler(dlqSvc)

	// 6. Initialize middleware
	authMiddleware := middleware.AuthMiddleware(cfg.JWTSecret)
	rateLimiter := middleware.NewRateLimiter()
	authed := func(next http.Handler) http.Handler {
		return authMiddleware(rateLimiter.Middleware(next))
	}
	adminOnly := func(next http.Handler) http.Handler {
		return authMiddleware(middleware.RequireRole(model.RoleAdmin)(next))
	}

	// 7. Create ServeMux router
	mux := http.NewServeMux()

	apiV1Mux := http.NewServeMux()
	userHandler.RegisterRoutes(apiV1Mux, authed)
	nicheHandler.RegisterRoutes(apiV1Mux, authed, adminOnly)
	jobHandler.RegisterRoutes(apiV1Mux, authed)
	billingHandler.RegisterRoutes(apiV1Mux, authed)
	dlqHandler.RegisterRoutes(apiV1Mux, adminOnly)

	// Stripe signs webhook deliveries itself; no bearer auth here.
	apiV1Mux.HandleFunc("/webhooks/stripe", stripeSvc.HandleWebhook)

	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	// Swagger documentation
	mux.HandleFunc("/swagger/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./docs/swagger/swagger.json")
	})
	mux.Handle("/swagger/", http.StripPrefix("/swagger/", http.FileServer(http.Dir("./docs/swagger/swagger-ui"))))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Redirect root-level requests to /v1/{path}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") || strings.HasPrefix(r.URL.Path, "/swagger/") {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/v1"+r.URL.Path, http.StatusMovedPermanently)
	})

	// 8. Apply CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return middleware.LoggerMiddleware(c.Handler(mux)), pool, nil
}

// removeDisableGzip is a workaround for S3 signature errors with some
// S3-compatible services.
// See: https://github.com/supabase/storage/issues/577
func removeDisableGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		if _, ok := stack.Finalize.Get("DisableAcceptEncodingGzip"); ok {
			_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
			return err
		}
		return nil
	}
}

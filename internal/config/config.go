package config

import (
	"fmt"
	"net/url"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENV" default:"development"`
	Port        string `envconfig:"PORT" default:"8080"`

	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	JWTSecret     string `envconfig:"JWT_SECRET" required:"true"`
	WebhookSecret string `envconfig:"WEBHOOK_SIGNING_SECRET" required:"true"`

	// S3-compatible export storage (R2)
	S3URL       string `envconfig:"S3_URL" required:"true"`
	S3Bucket    string `envconfig:"S3_BUCKET" required:"true"`
	S3Region    string `envconfig:"S3_REGION" default:"auto"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY" required:"true"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY" required:"true"`

	// External AI provider service executing individual pipeline steps.
	// The API key may instead live in Secret Manager under provider-api-key.
	ProviderBaseURL string `envconfig:"PROVIDER_BASE_URL" required:"true"`
	ProviderAPIKey  string `envconfig:"PROVIDER_API_KEY"`

	// Outbound webhook events (job.completed / job.failed)
	GCPProjectID  string `envconfig:"GCP_PROJECT_ID"`
	JobEventTopic string `envconfig:"JOB_EVENT_TOPIC" default:"job-events"`

	// Stripe billing
	StripeSecretKey       string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret   string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripeSuccessURL      string `envconfig:"STRIPE_SUCCESS_URL" default:"http://localhost:3000/dashboard?checkout=success"`
	StripeCancelURL       string `envconfig:"STRIPE_CANCEL_URL" default:"http://localhost:3000/credits?checkout=cancelled"`
	StripePortalReturnURL string `envconfig:"STRIPE_PORTAL_RETURN_URL" default:"http://localhost:3000/account"`
	StripePriceStarter    string `envconfig:"STRIPE_PRICE_STARTER"`
	StripePricePro        string `envconfig:"STRIPE_PRICE_PRO"`
	StripePriceAgency     string `envconfig:"STRIPE_PRICE_AGENCY"`

	// Generation worker settings
	GenerationQueueName           string `envconfig:"GENERATION_QUEUE_NAME" default:"generation_queue"`
	GenerationDeadLetterQueueName string `envconfig:"GENERATION_DEAD_LETTER_QUEUE_NAME" default:"generation_queue_dlq"`
	GenerationPollTimeoutSec      int    `envconfig:"GENERATION_POLL_TIMEOUT_SEC" default:"30"`
	GenerationPollMaxMsg          int    `envconfig:"GENERATION_POLL_MAX_MSG" default:"1"`
	StepMaxRetries                int    `envconfig:"STEP_MAX_RETRIES" default:"3"`
	StepBackoffInitialSec         int    `envconfig:"STEP_BACKOFF_INITIAL_SEC" default:"1"`
	StepBackoffMaxSec             int    `envconfig:"STEP_BACKOFF_MAX_SEC" default:"60"`
}

// DSN builds the Postgres connection string. Local development disables SSL;
// anything else inherits the server default.
func (c *Config) DSN() string {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		url.QueryEscape(c.DBUser), url.QueryEscape(c.DBPassword), c.DBHost, c.DBPort, c.DBName)
	if c.Environment == "development" {
		dsn += "?sslmode=disable"
	}
	return dsn
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

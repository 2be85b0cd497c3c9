package service

import (
	"context"
	"fmt"

	"app/internal/config"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// SecretManagerService resolves deploy-time secrets from GCP Secret Manager.
// Deployed environments keep the Stripe and provider keys there and leave the
// corresponding env values empty; local development sets them in .env.
type SecretManagerService interface {
	GetSecret(ctx context.Context, name string) (string, error)
	Close() error
}

type secretManagerService struct {
	client    *secretmanager.Client
	projectID string
}

// NewSecretManagerService creates a Secret Manager backed resolver.
func NewSecretManagerService(ctx context.Context, projectID string) (SecretManagerService, error) {
	if projectID == "" {
		return nil, fmt.Errorf("GCP project ID is not set")
	}
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	return &secretManagerService{client: client, projectID: projectID}, nil
}

func (s *secretManagerService) GetSecret(ctx context.Context, name string) (string, error) {
	resourceName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.projectID, name)
	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resourceName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", name, err)
	}
	return string(result.Payload.Data), nil
}

func (s *secretManagerService) Close() error {
	return s.client.Close()
}

// Secret Manager entry names for platform credentials.
const (
	SecretStripeKey   = "stripe-secret-key"
	SecretProviderKey = "provider-api-key"
)

// ResolveConfigSecrets fills credentials that were not provided through the
// environment from Secret Manager. A missing GCP project ID leaves the config
// untouched so local setups work without GCP access.
func ResolveConfigSecrets(ctx context.Context, cfg *config.Config) error {
	if cfg.GCPProjectID == "" {
		return nil
	}
	if cfg.StripeSecretKey != "" && cfg.ProviderAPIKey != "" {
		return nil
	}

	sm, err := NewSecretManagerService(ctx, cfg.GCPProjectID)
	if err != nil {
		return err
	}
	defer sm.Close()

	if cfg.StripeSecretKey == "" {
		key, err := sm.GetSecret(ctx, SecretStripeKey)
		if err != nil {
			return err
		}
		cfg.StripeSecretKey = key
	}
	if cfg.ProviderAPIKey == "" {
		key, err := sm.GetSecret(ctx, SecretProviderKey)
		if err != nil {
			return err
		}
		cfg.ProviderAPIKey = key
	}
	return nil
}

package service

import (
	"context"
	"time"

	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// SubscriptionService defines business logic methods for subscriptions. Tier
// changes keep the user's role and monthly credit grant in sync with the
// billing state.
type SubscriptionService interface {
	GetActiveSubscription(ctx context.Context, userID string) (*model.UserSubscription, error)
	GetSubscription(ctx context.Context, userID string) (*model.UserSubscription, error)
	GetTier(ctx context.Context, tierID string) (*model.SubscriptionTier, error)
	ListTiers(ctx context.Context) ([]model.SubscriptionTier, error)
	UpsertStripeSubscription(ctx context.Context, userID, tierID string, startsAt, endsAt time.Time, status, stripeSubscriptionID string) error
	DowngradeUserToFreeTier(ctx context.Context, userID string) error
}

type subscriptionService struct {
	repo       repository.SubscriptionRepository
	userRepo   repository.UserRepository
	creditRepo repository.CreditRepository
	logger     zerolog.Logger
}

// NewSubscriptionService creates a new SubscriptionService with a scoped logger.
func NewSubscriptionService(
	repo repository.SubscriptionRepository,
	userRepo repository.UserRepository,
	creditRepo repository.CreditRepository,
	logger zerolog.Logger,
) SubscriptionService {
	return &subscriptionService{
		repo:       repo,
		userRepo:   userRepo,
		creditRepo: creditRepo,
		logger:     logger.With().Str("service", "SubscriptionService").Logger(),
	}
}

// GetActiveSubscription returns the current active subscription for a user.
func (s *subscriptionService) GetActiveSubscription(ctx context.Context, userID string) (*model.UserSubscription, error) {
	sub, err := s.repo.GetActiveSubscription(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch active subscription")
		return nil, err
	}
	return sub, nil
}

// GetSubscription returns the user's subscription regardless of status.
func (s *subscriptionService) GetSubscription(ctx context.Context, userID string) (*model.UserSubscription, error) {
	sub, err := s.repo.GetSubscription(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch subscription")
		return nil, err
	}
	return sub, nil
}

// GetTier returns the details of a subscription tier.
func (s *subscriptionService) GetTier(ctx context.Context, tierID string) (*model.SubscriptionTier, error) {
	tier, err := s.repo.GetTierByID(ctx, tierID)
	if err != nil {
		s.logger.Error().Err(err).Str("tier_id", tierID).Msg("Failed to fetch subscription tier")
	}
	return tier, err
}

func (s *subscriptionService) ListTiers(ctx context.Context) ([]model.SubscriptionTier, error) {
	tiers, err := s.repo.ListTiers(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list subscription tiers")
		return nil, err
	}
	return tiers, nil
}

// UpsertStripeSubscription saves the billing state and syncs the user's role
// and monthly credit grant. The grant is recorded once per period; renewals
// arrive as fresh period bounds so double-delivered webhooks are harmless
// within a period.
func (s *subscriptionService) UpsertStripeSubscription(ctx context.Context, userID, tierID string, startsAt, endsAt time.Time, status, stripeSubscriptionID string) error {
	prior, err := s.repo.GetSubscription(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to read prior subscription state")
		return err
	}

	if err := s.repo.UpsertStripeSubscription(ctx, userID, tierID, startsAt, endsAt, status, stripeSubscriptionID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("tier_id", tierID).Str("status", status).Msg("Failed to upsert stripe subscription")
		return err
	}

	if err := s.userRepo.UpdateRole(ctx, userID, model.Role(tierID)); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Str("tier_id", tierID).Msg("Failed to sync user role with subscription tier")
		return err
	}

	if status != "active" {
		return nil
	}
	newPeriod := prior == nil || prior.TierID != tierID || !prior.StartsAt.Equal(startsAt)
	if !newPeriod {
		return nil
	}
	tier, err := s.repo.GetTierByID(ctx, tierID)
	if err != nil {
		s.logger.Error().Err(err).Str("tier_id", tierID).Msg("Failed to fetch tier for credit grant")
		return err
	}
	if tier == nil || tier.CreditsPerMonth <= 0 {
		return nil
	}
	if _, err := s.creditRepo.GrantCredits(ctx, userID, model.TxnSubscriptionGrant, tier.CreditsPerMonth, "Monthly subscription credits"); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Int("credits", tier.CreditsPerMonth).Msg("Failed to grant subscription credits")
		return err
	}
	return nil
}

// DowngradeUserToFreeTier downgrades a user when their subscription is deleted.
// Remaining purchased credits are kept; only the role and tier change.
func (s *subscriptionService) DowngradeUserToFreeTier(ctx context.Context, userID string) error {
	if err := s.repo.DowngradeUserToFreeTier(ctx, userID); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to downgrade user to free tier")
		return err
	}
	if err := s.userRepo.UpdateRole(ctx, userID, model.RoleFree); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to reset user role on downgrade")
		return err
	}
	return nil
}

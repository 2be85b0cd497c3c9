package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRepository defines methods for accessing subscription data.
type SubscriptionRepository interface {
	GetActiveSubscription(ctx context.Context, userID string) (*model.UserSubscription, error)
	GetSubscription(ctx context.Context, userID string) (*model.UserSubscription, error)
	GetTierByID(ctx context.Context, tierID string) (*model.SubscriptionTier, error)
	ListTiers(ctx context.Context) ([]model.SubscriptionTier, error)
	UpsertStripeSubscription(ctx context.Context, userID, tierID string, startsAt, endsAt time.Time, status, stripeSubscriptionID string) error
	DowngradeUserToFreeTier(ctx context.Context, userID string) error
}

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepo creates a new SubscriptionRepository.
func NewSubscriptionRepo(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `user_id, tier_id, stripe_subscription_id, starts_at, ends_at, status, created_at, updated_at`

func scanSubscription(row pgx.Row) (*model.UserSubscription, error) {
	var us model.UserSubscription
	err := row.Scan(
		&us.UserID,
		&us.TierID,
		&us.StripeSubscriptionID,
		&us.StartsAt,
		&us.EndsAt,
		&us.Status,
		&us.CreatedAt,
		&us.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &us, nil
}

// GetActiveSubscription returns the current active subscription for a user.
func (r *subscriptionRepo) GetActiveSubscription(ctx context.Context, userID string) (*model.UserSubscription, error) {
	const q = `
        SELECT ` + subscriptionColumns + `
        FROM user_subscriptions
        WHERE user_id = $1
          AND status IN ('active', 'cancelled') -- cancelled users keep access until period end
          AND (ends_at + INTERVAL '6 hours') > NOW() -- grace period for webhook delays around renewal
    `
	us, err := scanSubscription(r.pool.QueryRow(ctx, q, userID))
	if err != nil {
		return nil, fmt.Errorf("fetch active subscription for user %s: %w", userID, err)
	}
	return us, nil
}

// GetSubscription returns the user's subscription regardless of status.
func (r *subscriptionRepo) GetSubscription(ctx context.Context, userID string) (*model.UserSubscription, error) {
	const q = `
        SELECT ` + subscriptionColumns + `
        FROM user_subscriptions
        WHERE user_id = $1
    `
	us, err := scanSubscription(r.pool.QueryRow(ctx, q, userID))
	if err != nil {
		return nil, fmt.Errorf("fetch subscription for user %s: %w", userID, err)
	}
	return us, nil
}

// GetTierByID returns the subscription tier with its limits.
func (r *subscriptionRepo) GetTierByID(ctx context.Context, tierID string) (*model.SubscriptionTier, error) {
	const q = `
        SELECT id, name, price_monthly_cents, price_yearly_cents,
               credits_per_month, max_concurrent_jobs, max_resolution, features
        FROM subscription_tiers
        WHERE id = $1
    `
	var st model.SubscriptionTier
	var rawFeatures []byte
	err := r.pool.QueryRow(ctx, q, tierID).Scan(
		&st.ID,
		&st.Name,
		&st.PriceMonthlyCents,
		&st.PriceYearlyCents,
		&st.CreditsPerMonth,
		&st.MaxConcurrentJobs,
		&st.MaxResolution,
		&rawFeatures,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch tier %s: %w", tierID, err)
	}
	if err := json.Unmarshal(rawFeatures, &st.Features); err != nil {
		return nil, fmt.Errorf("unmarshal features for tier %s: %w", tierID, err)
	}
	return &st, nil
}

func (r *subscriptionRepo) ListTiers(ctx context.Context) ([]model.SubscriptionTier, error) {
	const q = `
        SELECT id, name, price_monthly_cents, price_yearly_cents,
               credits_per_month, max_concurrent_jobs, max_resolution, features
        FROM subscription_tiers
        ORDER BY price_monthly_cents
    `
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing tiers: %w", err)
	}
	defer rows.Close()

	var tiers []model.SubscriptionTier
	for rows.Next() {
		var st model.SubscriptionTier
		var rawFeatures []byte
		if err := rows.Scan(
			&st.ID, &st.Name, &st.PriceMonthlyCents, &st.PriceYearlyCents,
			&st.CreditsPerMonth, &st.MaxConcurrentJobs, &st.MaxResolution, &rawFeatures,
		); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		if err := json.Unmarshal(rawFeatures, &st.Features); err != nil {
			return nil, fmt.Errorf("unmarshal features for tier %s: %w", st.ID, err)
		}
		tiers = append(tiers, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tier rows: %w", err)
	}
	return tiers, nil
}

func (r *subscriptionRepo) UpsertStripeSubscription(ctx context.Context, userID, tierID string, startsAt, endsAt time.Time, status, stripeSubscriptionID string) error {
	var subID *string
	if stripeSubscriptionID != "" {
		subID = &stripeSubscriptionID
	}
	const q = `
        INSERT INTO user_subscriptions (user_id, tier_id, stripe_subscription_id, starts_at, ends_at, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
        ON CONFLICT (user_id) DO UPDATE
        SET tier_id = EXCLUDED.tier_id,
            stripe_subscription_id = EXCLUDED.stripe_subscription_id,
            starts_at = EXCLUDED.starts_at,
            ends_at = EXCLUDED.ends_at,
            status = EXCLUDED.status,
            updated_at = NOW();
    `
	if _, err := r.pool.Exec(ctx, q, userID, tierID, subID, startsAt, endsAt, status); err != nil {
		return fmt.Errorf("upsert stripe subscription for user %s: %w", userID, err)
	}
	return nil
}

// DowngradeUserToFreeTier resets a user to the free tier when their Stripe
// subscription is deleted.
func (r *subscriptionRepo) DowngradeUserToFreeTier(ctx context.Context, userID string) error {
	const q = `
        UPDATE user_subscriptions
        SET
            tier_id = 'free',
            status = 'active',
            starts_at = NOW(),
            ends_at = NOW() + INTERVAL '31 days',
            stripe_subscription_id = NULL,
            updated_at = NOW()
        WHERE
            user_id = $1;
    `
	if _, err := r.pool.Exec(ctx, q, userID); err != nil {
		return fmt.Errorf("downgrade user %s to free tier: %w", userID, err)
	}
	return nil
}

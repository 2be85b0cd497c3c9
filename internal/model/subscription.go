package model

import "time"

// UserSubscription is the billing-period state bound to Stripe.
type UserSubscription struct {
	UserID               string     `db:"user_id" json:"user_id"`
	TierID               string     `db:"tier_id" json:"tier_id"`
	StripeSubscriptionID *string    `db:"stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	StartsAt             time.Time  `db:"starts_at" json:"starts_at"`
	EndsAt               time.Time  `db:"ends_at" json:"ends_at"`
	Status               string     `db:"status" json:"status"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// SubscriptionTier defines the limits applied to the owning user. These
// mirror the role configuration table; the tier row is the billing-facing
// record while entitlement.Config is the enforcement-facing one.
type SubscriptionTier struct {
	ID                string   `db:"id" json:"id"`
	Name              string   `db:"name" json:"name"`
	PriceMonthlyCents int      `db:"price_monthly_cents" json:"price_monthly_cents"`
	PriceYearlyCents  int      `db:"price_yearly_cents" json:"price_yearly_cents"`
	CreditsPerMonth   int      `db:"credits_per_month" json:"credits_per_month"`
	MaxConcurrentJobs int      `db:"max_concurrent_jobs" json:"max_concurrent_jobs"`
	MaxResolution     string   `db:"max_resolution" json:"max_resolution"`
	Features          []string `db:"features" json:"features"`
}

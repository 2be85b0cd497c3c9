package dto

import "app/internal/model"

// CreditsResponseDTO is returned by GET /user/credits.
type CreditsResponseDTO struct {
	Balance            model.CreditBalance       `json:"balance"`
	RecentTransactions []model.CreditTransaction `json:"recent_transactions"`
}

// SubscriptionCheckoutRequestDTO is the body for POST /billing/subscription/checkout.
type SubscriptionCheckoutRequestDTO struct {
	Tier string `json:"tier" validate:"required,oneof=starter pro agency"`
}

// CheckoutRequestDTO is the body for POST /billing/credits/checkout.
type CheckoutRequestDTO struct {
	PackageID string `json:"package_id" validate:"required"`
}

// CheckoutResponseDTO carries the Stripe-hosted checkout URL.
type CheckoutResponseDTO struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id,omitempty"`
}

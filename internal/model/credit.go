package model

import "time"

// TransactionType classifies a ledger entry. Refunds are new transactions,
// never mutations of the original charge.
type TransactionType string

const (
	TxnSubscriptionGrant TransactionType = "subscription_grant"
	TxnPurchase          TransactionType = "purchase"
	TxnJobCharge         TransactionType = "job_charge"
	TxnJobRefund         TransactionType = "job_refund"
	TxnAdminAdjustment   TransactionType = "admin_adjustment"
	TxnRollover          TransactionType = "rollover"
)

// CreditTransaction is one immutable entry in the append-only credit ledger.
// Amount is positive for grants/refunds and negative for charges.
type CreditTransaction struct {
	ID           string          `db:"id" json:"id"`
	UserID       string          `db:"user_id" json:"user_id"`
	Type         TransactionType `db:"type" json:"type"`
	Amount       int             `db:"amount" json:"amount"`
	BalanceAfter int             `db:"balance_after" json:"balance_after"`
	JobID        *string         `db:"job_id" json:"job_id,omitempty"`
	Description  string          `db:"description" json:"description"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// CreditBalance is the derived current-balance snapshot reconciled by every
// transaction: Available = LifetimeGranted - LifetimeUsed + RolledOver.
type CreditBalance struct {
	UserID          string    `db:"user_id" json:"user_id"`
	Available       int       `db:"available" json:"available"`
	Pending         int       `db:"pending" json:"pending"`
	LifetimeGranted int       `db:"lifetime_granted" json:"lifetime_granted"`
	LifetimeUsed    int       `db:"lifetime_used" json:"lifetime_used"`
	RolledOver      int       `db:"rolled_over" json:"rolled_over"`
	PeriodStart     time.Time `db:"period_start" json:"period_start"`
	PeriodEnd       time.Time `db:"period_end" json:"period_end"`
	PeriodGrant     int       `db:"period_grant" json:"period_grant"`
	PeriodUsed      int       `db:"period_used" json:"period_used"`
}

// CreditEstimate is the read-only cost projection for a prospective job.
type CreditEstimate struct {
	Breakdown     CostBreakdown `json:"breakdown"`
	TotalCredits  int           `json:"total_credits"`
	TotalUSD      float64       `json:"total_usd"`
	UserCredits   int           `json:"user_credits"`
	CanAfford     bool          `json:"can_afford"`
	CreditsNeeded int           `json:"credits_needed"`
}

// CreditPackage is a one-time purchasable credit bundle.
type CreditPackage struct {
	ID         string `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	Credits    int    `db:"credits" json:"credits"`
	PriceCents int    `db:"price_cents" json:"price_cents"`
	IsActive   bool   `db:"is_active" json:"is_active"`
}

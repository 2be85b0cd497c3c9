package model

import "time"

// Role is the user's entitlement tier, ordered from most to least restrictive.
type Role string

const (
	RoleFree    Role = "free"
	RoleStarter Role = "starter"
	RolePro     Role = "pro"
	RoleAgency  Role = "agency"
	RoleAdmin   Role = "admin"
)

// roleOrder positions each role on the free < starter < pro < agency < admin
// ladder. Unknown roles map below free.
var roleOrder = map[Role]int{
	RoleFree:    0,
	RoleStarter: 1,
	RolePro:     2,
	RoleAgency:  3,
	RoleAdmin:   4,
}

// AtLeast reports whether r sits at or above other on the tier ladder.
func (r Role) AtLeast(other Role) bool {
	ri, ok := roleOrder[r]
	if !ok {
		ri = -1
	}
	oi, ok := roleOrder[other]
	if !ok {
		oi = -1
	}
	return ri >= oi
}

type UserStatus string

const (
	UserPendingVerification UserStatus = "pending_verification"
	UserActive              UserStatus = "active"
	UserSuspended           UserStatus = "suspended"
	UserDeleted             UserStatus = "deleted"
)

// User represents a user account with its entitlement snapshot.
// Users are soft-deleted via status; rows are never removed while jobs or
// credit transactions still reference them.
type User struct {
	UserID           string          `db:"user_id" json:"user_id"`
	Email            string          `db:"email" json:"email"`
	DisplayName      string          `db:"display_name" json:"display_name"`
	Role             Role            `db:"role" json:"role"`
	Status           UserStatus      `db:"status" json:"status"`
	Credits          int             `db:"credits" json:"credits"`
	LifetimeCredits  int             `db:"lifetime_credits" json:"lifetime_credits"`
	StripeCustomerID *string         `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	Preferences      UserPreferences `db:"preferences" json:"preferences"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// UserPreferences holds export and notification configuration.
type UserPreferences struct {
	DefaultPlatform   Platform `json:"default_platform,omitempty"`
	DefaultResolution string   `json:"default_resolution,omitempty"`
	NotifyOnComplete  bool     `json:"notify_on_complete"`
	NotifyOnFailure   bool     `json:"notify_on_failure"`
}

// ConnectedAccount is an OAuth grant for an export destination.
type ConnectedAccount struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Provider  string    `db:"provider" json:"provider"`
	AccountID string    `db:"account_id" json:"account_id"`
	Scopes    []string  `db:"scopes" json:"scopes"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

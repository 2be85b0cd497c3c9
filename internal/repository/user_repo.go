package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository accesses user accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error)
	UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error
	UpdateRole(ctx context.Context, userID string, role model.Role) error
	UpdateStatus(ctx context.Context, userID string, status model.UserStatus) error
	UpdatePreferences(ctx context.Context, userID string, prefs model.UserPreferences) error
}

type userRepo struct {
	pool *pgxpool.Pool
}

// NewUserRepo creates a new UserRepository.
func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepo{pool: pool}
}

func (r *userRepo) CreateUser(ctx context.Context, u *model.User) error {
	prefs, err := json.Marshal(u.Preferences)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	const q = `
        INSERT INTO users (user_id, email, display_name, role, status, credits, lifetime_credits, preferences)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING created_at, updated_at
    `
	err = r.pool.QueryRow(ctx, q,
		u.UserID, u.Email, u.DisplayName, u.Role, u.Status, u.Credits, u.LifetimeCredits, prefs,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating user %s: %w", u.UserID, err)
	}
	return nil
}

const userColumns = `user_id, email, display_name, role, status, credits, lifetime_credits, stripe_customer_id, preferences, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var rawPrefs []byte
	err := row.Scan(
		&u.UserID, &u.Email, &u.DisplayName, &u.Role, &u.Status,
		&u.Credits, &u.LifetimeCredits, &u.StripeCustomerID, &rawPrefs,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if len(rawPrefs) > 0 {
		if err := json.Unmarshal(rawPrefs, &u.Preferences); err != nil {
			return nil, fmt.Errorf("unmarshal preferences for user %s: %w", u.UserID, err)
		}
	}
	return &u, nil
}

func (r *userRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("fetch user %s: %w", id, err)
	}
	return u, nil
}

func (r *userRepo) GetUserByStripeCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, q, customerID))
	if err != nil {
		return nil, fmt.Errorf("fetch user by stripe customer %s: %w", customerID, err)
	}
	return u, nil
}

func (r *userRepo) UpdateStripeCustomerID(ctx context.Context, userID, customerID string) error {
	const q = `UPDATE users SET stripe_customer_id = $2, updated_at = NOW() WHERE user_id = $1`
	if _, err := r.pool.Exec(ctx, q, userID, customerID); err != nil {
		return fmt.Errorf("update stripe customer for user %s: %w", userID, err)
	}
	return nil
}

func (r *userRepo) UpdateRole(ctx context.Context, userID string, role model.Role) error {
	const q = `UPDATE users SET role = $2, updated_at = NOW() WHERE user_id = $1`
	if _, err := r.pool.Exec(ctx, q, userID, role); err != nil {
		return fmt.Errorf("update role for user %s: %w", userID, err)
	}
	return nil
}

func (r *userRepo) UpdateStatus(ctx context.Context, userID string, status model.UserStatus) error {
	const q = `UPDATE users SET status = $2, updated_at = NOW() WHERE user_id = $1`
	if _, err := r.pool.Exec(ctx, q, userID, status); err != nil {
		return fmt.Errorf("update status for user %s: %w", userID, err)
	}
	return nil
}

func (r *userRepo) UpdatePreferences(ctx context.Context, userID string, prefs model.UserPreferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	const q = `UPDATE users SET preferences = $2, updated_at = NOW() WHERE user_id = $1`
	if _, err := r.pool.Exec(ctx, q, userID, raw); err != nil {
		return fmt.Errorf("update preferences for user %s: %w", userID, err)
	}
	return nil
}

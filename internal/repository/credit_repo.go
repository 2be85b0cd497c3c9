package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInsufficientCredits is returned when a charge would take the user's
// balance below zero.
var ErrInsufficientCredits = errors.New("insufficient_credits")

// CreditRepository maintains the append-only credit ledger. Ledger rows are
// never updated or deleted; refunds and corrections are new transactions.
type CreditRepository interface {
	// ChargeCredits atomically verifies the user's balance covers amount and
	// appends a job_charge transaction. Returns ErrInsufficientCredits when
	// the balance is short; no row is written in that case.
	ChargeCredits(ctx context.Context, userID, jobID string, amount int, description string) (*model.CreditTransaction, error)
	// RefundCredits appends a job_refund transaction crediting amount back.
	RefundCredits(ctx context.Context, userID, jobID string, amount int, description string) (*model.CreditTransaction, error)
	// GrantCredits appends a positive transaction of the given type
	// (subscription_grant, purchase, admin_adjustment, rollover).
	GrantCredits(ctx context.Context, userID string, txnType model.TransactionType, amount int, description string) (*model.CreditTransaction, error)
	GetBalance(ctx context.Context, userID string) (*model.CreditBalance, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error)
	GetCreditPackageByID(ctx context.Context, id string) (*model.CreditPackage, error)
	ListCreditPackages(ctx context.Context) ([]model.CreditPackage, error)
}

type creditRepo struct {
	pool *pgxpool.Pool
}

// NewCreditRepo creates a new CreditRepository.
func NewCreditRepo(pool *pgxpool.Pool) CreditRepository {
	return &creditRepo{pool: pool}
}

const txnColumns = `id, user_id, type, amount, balance_after, job_id, description, created_at`

func scanTransaction(row pgx.Row) (*model.CreditTransaction, error) {
	var t model.CreditTransaction
	err := row.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.BalanceAfter, &t.JobID, &t.Description, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// appendTransaction writes one ledger row and mirrors the new balance onto the
// users row inside tx. amount is signed.
func appendTransaction(ctx context.Context, tx pgx.Tx, userID string, txnType model.TransactionType, amount int, jobID *string, description string) (*model.CreditTransaction, error) {
	var balance int
	const balanceQ = `SELECT credits FROM users WHERE user_id = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, balanceQ, userID).Scan(&balance); err != nil {
		return nil, fmt.Errorf("locking balance for user %s: %w", userID, err)
	}
	newBalance := balance + amount
	if newBalance < 0 {
		return nil, ErrInsufficientCredits
	}
	const insertQ = `
        INSERT INTO credit_transactions (user_id, type, amount, balance_after, job_id, description)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING ` + txnColumns
	t, err := scanTransaction(tx.QueryRow(ctx, insertQ, userID, txnType, amount, newBalance, jobID, description))
	if err != nil {
		return nil, fmt.Errorf("appending %s transaction for user %s: %w", txnType, userID, err)
	}
	const updateQ = `
        UPDATE users
        SET credits = $2,
            lifetime_credits = lifetime_credits + GREATEST($3, 0),
            updated_at = NOW()
        WHERE user_id = $1
    `
	if _, err := tx.Exec(ctx, updateQ, userID, newBalance, amount); err != nil {
		return nil, fmt.Errorf("updating balance for user %s: %w", userID, err)
	}
	return t, nil
}

func (r *creditRepo) runLedgerTx(ctx context.Context, userID string, txnType model.TransactionType, amount int, jobID *string, description string) (*model.CreditTransaction, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("starting ledger transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	t, err := appendTransaction(ctx, tx, userID, txnType, amount, jobID, description)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing ledger transaction for user %s: %w", userID, err)
	}
	return t, nil
}

func (r *creditRepo) ChargeCredits(ctx context.Context, userID, jobID string, amount int, description string) (*model.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("charge amount must be positive, got %d", amount)
	}
	return r.runLedgerTx(ctx, userID, model.TxnJobCharge, -amount, &jobID, description)
}

func (r *creditRepo) RefundCredits(ctx context.Context, userID, jobID string, amount int, description string) (*model.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("refund amount must be positive, got %d", amount)
	}
	return r.runLedgerTx(ctx, userID, model.TxnJobRefund, amount, &jobID, description)
}

func (r *creditRepo) GrantCredits(ctx context.Context, userID string, txnType model.TransactionType, amount int, description string) (*model.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("grant amount must be positive, got %d", amount)
	}
	return r.runLedgerTx(ctx, userID, txnType, amount, nil, description)
}

// GetBalance derives the balance snapshot from the ledger so it always
// reconciles with the transaction history.
func (r *creditRepo) GetBalance(ctx context.Context, userID string) (*model.CreditBalance, error) {
	const q = `
        SELECT
            COALESCE(SUM(amount), 0) AS available,
            COALESCE(SUM(amount) FILTER (WHERE amount > 0 AND type <> 'rollover'), 0) AS lifetime_granted,
            COALESCE(-SUM(amount) FILTER (WHERE amount < 0), 0) AS lifetime_used,
            COALESCE(SUM(amount) FILTER (WHERE type = 'rollover'), 0) AS rolled_over,
            COALESCE(SUM(amount) FILTER (WHERE amount > 0 AND created_at >= date_trunc('month', NOW())), 0) AS period_grant,
            COALESCE(-SUM(amount) FILTER (WHERE amount < 0 AND created_at >= date_trunc('month', NOW())), 0) AS period_used
        FROM credit_transactions
        WHERE user_id = $1
    `
	b := model.CreditBalance{UserID: userID}
	err := r.pool.QueryRow(ctx, q, userID).Scan(
		&b.Available, &b.LifetimeGranted, &b.LifetimeUsed, &b.RolledOver, &b.PeriodGrant, &b.PeriodUsed,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching balance for user %s: %w", userID, err)
	}
	const periodQ = `SELECT date_trunc('month', NOW()), date_trunc('month', NOW()) + INTERVAL '1 month'`
	if err := r.pool.QueryRow(ctx, periodQ).Scan(&b.PeriodStart, &b.PeriodEnd); err != nil {
		return nil, fmt.Errorf("fetching period bounds: %w", err)
	}
	return &b, nil
}

func (r *creditRepo) ListTransactions(ctx context.Context, userID string, limit int) ([]model.CreditTransaction, error) {
	q := `SELECT ` + txnColumns + ` FROM credit_transactions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing transactions for user %s: %w", userID, err)
	}
	defer rows.Close()

	var txns []model.CreditTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transaction rows: %w", err)
	}
	return txns, nil
}

func (r *creditRepo) GetCreditPackageByID(ctx context.Context, id string) (*model.CreditPackage, error) {
	const q = `SELECT id, name, credits, price_cents, is_active FROM credit_packages WHERE id = $1`
	var p model.CreditPackage
	err := r.pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.Name, &p.Credits, &p.PriceCents, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching credit package %s: %w", id, err)
	}
	return &p, nil
}

func (r *creditRepo) ListCreditPackages(ctx context.Context) ([]model.CreditPackage, error) {
	const q = `SELECT id, name, credits, price_cents, is_active FROM credit_packages WHERE is_active ORDER BY credits`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing credit packages: %w", err)
	}
	defer rows.Close()

	var pkgs []model.CreditPackage
	for rows.Next() {
		var p model.CreditPackage
		if err := rows.Scan(&p.ID, &p.Name, &p.Credits, &p.PriceCents, &p.IsActive); err != nil {
			return nil, fmt.Errorf("scan credit package: %w", err)
		}
		pkgs = append(pkgs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("credit package rows: %w", err)
	}
	return pkgs, nil
}

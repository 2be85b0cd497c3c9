package repository

import (
	"context"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DLQRepository persists generation messages the worker dead-lettered.
type DLQRepository interface {
	Create(ctx context.Context, message *model.DeadLetterMessage) error
	GetByID(ctx context.Context, id int64) (*model.DeadLetterMessage, error)
	// List returns dead letters newest first, optionally filtered by status.
	List(ctx context.Context, status model.DeadLetterStatus, limit int) ([]model.DeadLetterMessage, error)
	UpdateStatus(ctx context.Context, id int64, status model.DeadLetterStatus) error
}

type dlqRepo struct {
	pool *pgxpool.Pool
}

// NewDLQRepo creates a new DLQRepository.
func NewDLQRepo(pool *pgxpool.Pool) DLQRepository {
	return &dlqRepo{pool: pool}
}

const dlqColumns = `id, queue, job_id, payload, reason, status, created_at, updated_at`

func (r *dlqRepo) Create(ctx context.Context, m *model.DeadLetterMessage) error {
	query := `
        INSERT INTO dead_letter_messages (queue, job_id, payload, reason, status)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		m.Queue, m.JobID, m.Payload, m.Reason, m.Status,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting dead letter: %w", err)
	}
	return nil
}

func (r *dlqRepo) GetByID(ctx context.Context, id int64) (*model.DeadLetterMessage, error) {
	query := `SELECT ` + dlqColumns + ` FROM dead_letter_messages WHERE id = $1`
	var m model.DeadLetterMessage
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.Queue, &m.JobID, &m.Payload, &m.Reason, &m.Status, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching dead letter %d: %w", id, err)
	}
	return &m, nil
}

func (r *dlqRepo) List(ctx context.Context, status model.DeadLetterStatus, limit int) ([]model.DeadLetterMessage, error) {
	query := `SELECT ` + dlqColumns + ` FROM dead_letter_messages`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing dead letters: %w", err)
	}
	defer rows.Close()

	var out []model.DeadLetterMessage
	for rows.Next() {
		var m model.DeadLetterMessage
		if err := rows.Scan(&m.ID, &m.Queue, &m.JobID, &m.Payload, &m.Reason, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning dead letter: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *dlqRepo) UpdateStatus(ctx context.Context, id int64, status model.DeadLetterStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE dead_letter_messages SET status = $1, updated_at = now() WHERE id = $2`,
		status, id)
	if err != nil {
		return fmt.Errorf("updating dead letter %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dead letter %d not found", id)
	}
	return nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"app/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// NicheRepository accesses the niche catalog and its version snapshots.
type NicheRepository interface {
	GetNicheByID(ctx context.Context, id string) (*model.Niche, error)
	ListNiches(ctx context.Context, category model.NicheCategory, platform model.Platform, limit int, after *string) ([]model.Niche, error)
	// UpdateNiche persists the niche with its version already bumped and
	// snapshots the prior content in the same transaction.
	UpdateNiche(ctx context.Context, n *model.Niche, priorSnapshot []byte) error
	// TouchPools persists updated pool usage counters without bumping the
	// version; counter updates are not content-affecting edits.
	TouchPools(ctx context.Context, nicheID string, pools model.RandomizationPools) error
}

type nicheRepo struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewNicheRepo creates a new NicheRepository.
func NewNicheRepo(pool *pgxpool.Pool, logger zerolog.Logger) NicheRepository {
	return &nicheRepo{pool: pool, logger: logger}
}

const nicheColumns = `id, slug, name, version, description, category, content_style, target_audience,
        platforms, prompts, pools, anti_repetition, estimated_credit_cost, average_duration,
        is_active, is_premium, tags, created_at, updated_at`

func scanNiche(row pgx.Row) (*model.Niche, error) {
	var n model.Niche
	var rawPlatforms, rawPrompts, rawPools, rawAnti []byte
	err := row.Scan(
		&n.ID, &n.Slug, &n.Name, &n.Version, &n.Description, &n.Category, &n.ContentStyle,
		&n.TargetAudience, &rawPlatforms, &rawPrompts, &rawPools, &rawAnti,
		&n.EstimatedCreditCost, &n.AverageDuration, &n.IsActive, &n.IsPremium, &n.Tags,
		&n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{rawPlatforms, &n.Platforms},
		{rawPrompts, &n.Prompts},
		{rawPools, &n.Pools},
		{rawAnti, &n.AntiRepetition},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("unmarshal niche %s config: %w", n.ID, err)
		}
	}
	return &n, nil
}

func (r *nicheRepo) GetNicheByID(ctx context.Context, id string) (*model.Niche, error) {
	q := `SELECT ` + nicheColumns + ` FROM niches WHERE id = $1`
	n, err := scanNiche(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("fetch niche %s: %w", id, err)
	}
	return n, nil
}

// ListNiches returns active niches after the given ID in slug order, cursor
// style. Category and platform filters are optional.
func (r *nicheRepo) ListNiches(ctx context.Context, category model.NicheCategory, platform model.Platform, limit int, after *string) ([]model.Niche, error) {
	q := `SELECT ` + nicheColumns + ` FROM niches WHERE is_active = TRUE`
	args := []any{}
	if category != "" {
		args = append(args, category)
		q += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if platform != "" {
		args = append(args, string(platform))
		q += fmt.Sprintf(" AND platforms ? $%d", len(args))
	}
	if after != nil {
		args = append(args, *after)
		q += fmt.Sprintf(" AND slug > (SELECT slug FROM niches WHERE id = $%d)", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY slug ASC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list niches: %w", err)
	}
	defer rows.Close()

	var niches []model.Niche
	for rows.Next() {
		n, err := scanNiche(rows)
		if err != nil {
			return nil, fmt.Errorf("scan niche: %w", err)
		}
		niches = append(niches, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list niches rows: %w", err)
	}
	return niches, nil
}

func (r *nicheRepo) UpdateNiche(ctx context.Context, n *model.Niche, priorSnapshot []byte) error {
	rawPlatforms, err := json.Marshal(n.Platforms)
	if err != nil {
		return fmt.Errorf("marshal platforms: %w", err)
	}
	rawPrompts, err := json.Marshal(n.Prompts)
	if err != nil {
		return fmt.Errorf("marshal prompts: %w", err)
	}
	rawPools, err := json.Marshal(n.Pools)
	if err != nil {
		return fmt.Errorf("marshal pools: %w", err)
	}
	rawAnti, err := json.Marshal(n.AntiRepetition)
	if err != nil {
		return fmt.Errorf("marshal anti_repetition: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin niche update: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if priorSnapshot != nil {
		const snapQ = `INSERT INTO niche_versions (niche_id, version, snapshot) VALUES ($1, $2, $3)`
		if _, err := tx.Exec(ctx, snapQ, n.ID, n.Version-1, priorSnapshot); err != nil {
			return fmt.Errorf("snapshot niche %s v%d: %w", n.ID, n.Version-1, err)
		}
	}

	const q = `
        UPDATE niches
        SET name = $2, version = $3, description = $4, content_style = $5,
            target_audience = $6, platforms = $7, prompts = $8, pools = $9,
            anti_repetition = $10, is_active = $11, is_premium = $12, tags = $13,
            updated_at = NOW()
        WHERE id = $1
    `
	if _, err := tx.Exec(ctx, q,
		n.ID, n.Name, n.Version, n.Description, n.ContentStyle,
		n.TargetAudience, rawPlatforms, rawPrompts, rawPools,
		rawAnti, n.IsActive, n.IsPremium, n.Tags,
	); err != nil {
		return fmt.Errorf("update niche %s: %w", n.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit niche update %s: %w", n.ID, err)
	}
	return nil
}

func (r *nicheRepo) TouchPools(ctx context.Context, nicheID string, pools model.RandomizationPools) error {
	raw, err := json.Marshal(pools)
	if err != nil {
		return fmt.Errorf("marshal pools: %w", err)
	}
	const q = `UPDATE niches SET pools = $2 WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, nicheID, raw); err != nil {
		return fmt.Errorf("touch pools for niche %s: %w", nicheID, err)
	}
	return nil
}

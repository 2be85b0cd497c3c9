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

// JobFilter narrows ListJobs.
type JobFilter struct {
	Status   model.JobStatus
	NicheID  string
	Platform model.Platform
	From     *time.Time
	To       *time.Time
}

// JobCursor is the keyset position for job listing, newest first.
type JobCursor struct {
	CreatedAt time.Time
	ID        string
}

// JobRepository accesses generation jobs. Jobs are created by the API and
// mutated by the worker; historical rows are never deleted.
type JobRepository interface {
	CreateJob(ctx context.Context, j *model.Job) error
	GetJobByID(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, userID string, filter JobFilter, limit int, cursor *JobCursor) ([]model.Job, error)
	// CountActiveJobs counts the user's non-terminal jobs; the per-user
	// concurrency ceiling is enforced against this at creation time.
	CountActiveJobs(ctx context.Context, userID string) (int, error)
	QueueDepthBefore(ctx context.Context, priority model.JobPriority, createdAt time.Time) (int, error)
	// UpdateJob persists every worker-mutable field of the job.
	UpdateJob(ctx context.Context, j *model.Job) error
	// CancelIfNotStarted finalizes j only while the row is still pending or
	// queued, reporting whether this caller won. Exactly one of the API and
	// the worker finalizes a cancelled job, so credits refund once.
	CancelIfNotStarted(ctx context.Context, j *model.Job) (bool, error)
	RequestCancel(ctx context.Context, jobID string) error
}

type jobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo creates a new JobRepository.
func NewJobRepo(pool *pgxpool.Pool) JobRepository {
	return &jobRepo{pool: pool}
}

const jobColumns = `id, user_id, niche_id, parent_job_id, platform, status, progress, priority,
        options, idea, script, scenes, audio_url, final_video_url, export_url,
        estimated_cost, actual_cost, credits_charged, credits_refunded,
        checkpoints, errors, retry_count, max_retries, cancel_requested,
        created_at, updated_at, started_at, completed_at`

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var rawOptions, rawIdea, rawScript, rawScenes, rawEstCost, rawActCost, rawCheckpoints, rawErrors []byte
	err := row.Scan(
		&j.ID, &j.UserID, &j.NicheID, &j.ParentJobID, &j.Platform, &j.Status, &j.Progress, &j.Priority,
		&rawOptions, &rawIdea, &rawScript, &rawScenes, &j.AudioURL, &j.FinalVideoURL, &j.ExportURL,
		&rawEstCost, &rawActCost, &j.CreditsCharged, &j.CreditsRefunded,
		&rawCheckpoints, &rawErrors, &j.RetryCount, &j.MaxRetries, &j.CancelRequested,
		&j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt,
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
		{rawOptions, &j.Options},
		{rawIdea, &j.Idea},
		{rawScript, &j.Script},
		{rawScenes, &j.Scenes},
		{rawEstCost, &j.EstimatedCost},
		{rawActCost, &j.ActualCost},
		{rawCheckpoints, &j.Checkpoints},
		{rawErrors, &j.Errors},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("unmarshal job %s payload: %w", j.ID, err)
		}
	}
	return &j, nil
}

func marshalJobFields(j *model.Job) (options, idea, script, scenes, estCost, actCost, checkpoints, jobErrors []byte, err error) {
	fields := []struct {
		src any
		dst *[]byte
	}{
		{j.Options, &options},
		{j.Idea, &idea},
		{j.Script, &script},
		{j.Scenes, &scenes},
		{j.EstimatedCost, &estCost},
		{j.ActualCost, &actCost},
		{j.Checkpoints, &checkpoints},
		{j.Errors, &jobErrors},
	}
	for _, f := range fields {
		raw, mErr := json.Marshal(f.src)
		if mErr != nil {
			err = fmt.Errorf("marshal job field: %w", mErr)
			return
		}
		*f.dst = raw
	}
	return
}

func (r *jobRepo) CreateJob(ctx context.Context, j *model.Job) error {
	options, idea, script, scenes, estCost, actCost, checkpoints, jobErrors, err := marshalJobFields(j)
	if err != nil {
		return err
	}
	const q = `
        INSERT INTO jobs (id, user_id, niche_id, parent_job_id, platform, status, progress, priority,
                          options, idea, script, scenes, estimated_cost, actual_cost,
                          credits_charged, credits_refunded, checkpoints, errors,
                          retry_count, max_retries, cancel_requested)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
        RETURNING created_at, updated_at
    `
	err = r.pool.QueryRow(ctx, q,
		j.ID, j.UserID, j.NicheID, j.ParentJobID, j.Platform, j.Status, j.Progress, j.Priority,
		options, idea, script, scenes, estCost, actCost,
		j.CreditsCharged, j.CreditsRefunded, checkpoints, jobErrors,
		j.RetryCount, j.MaxRetries, j.CancelRequested,
	).Scan(&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating job %s: %w", j.ID, err)
	}
	return nil
}

func (r *jobRepo) GetJobByID(ctx context.Context, id string) (*model.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	j, err := scanJob(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("fetch job %s: %w", id, err)
	}
	return j, nil
}

// ListJobs pages through a user's jobs newest first using a (created_at, id)
// keyset so pages never duplicate or skip rows for a stable backing set.
func (r *jobRepo) ListJobs(ctx context.Context, userID string, filter JobFilter, limit int, cursor *JobCursor) ([]model.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE user_id = $1`
	args := []any{userID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.NicheID != "" {
		args = append(args, filter.NicheID)
		q += fmt.Sprintf(" AND niche_id = $%d", len(args))
	}
	if filter.Platform != "" {
		args = append(args, filter.Platform)
		q += fmt.Sprintf(" AND platform = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		q += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		q += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	if cursor != nil {
		args = append(args, cursor.CreatedAt, cursor.ID)
		q += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs for user %s: %w", userID, err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs rows: %w", err)
	}
	return jobs, nil
}

func (r *jobRepo) CountActiveJobs(ctx context.Context, userID string) (int, error) {
	const q = `
        SELECT COUNT(*)
        FROM jobs
        WHERE user_id = $1
          AND status NOT IN ('completed', 'partial', 'failed', 'cancelled')
    `
	var count int
	if err := r.pool.QueryRow(ctx, q, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting active jobs for user %s: %w", userID, err)
	}
	return count, nil
}

// QueueDepthBefore counts queued jobs that will be dispatched ahead of a job
// created at the given time with the given priority.
func (r *jobRepo) QueueDepthBefore(ctx context.Context, priority model.JobPriority, createdAt time.Time) (int, error) {
	const q = `
        SELECT COUNT(*)
        FROM jobs
        WHERE status IN ('pending', 'queued')
          AND (priority > $1 OR (priority = $1 AND created_at < $2))
    `
	var count int
	if err := r.pool.QueryRow(ctx, q, priority, createdAt).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting queue depth: %w", err)
	}
	return count, nil
}

func (r *jobRepo) UpdateJob(ctx context.Context, j *model.Job) error {
	options, idea, script, scenes, estCost, actCost, checkpoints, jobErrors, err := marshalJobFields(j)
	if err != nil {
		return err
	}
	const q = `
        UPDATE jobs
        SET status = $2, progress = $3, options = $4, idea = $5, script = $6, scenes = $7,
            audio_url = $8, final_video_url = $9, export_url = $10,
            estimated_cost = $11, actual_cost = $12, credits_charged = $13, credits_refunded = $14,
            checkpoints = $15, errors = $16, retry_count = $17, cancel_requested = $18,
            started_at = $19, completed_at = $20, updated_at = NOW()
        WHERE id = $1
    `
	if _, err := r.pool.Exec(ctx, q,
		j.ID, j.Status, j.Progress, options, idea, script, scenes,
		j.AudioURL, j.FinalVideoURL, j.ExportURL,
		estCost, actCost, j.CreditsCharged, j.CreditsRefunded,
		checkpoints, jobErrors, j.RetryCount, j.CancelRequested,
		j.StartedAt, j.CompletedAt,
	); err != nil {
		return fmt.Errorf("updating job %s: %w", j.ID, err)
	}
	return nil
}

func (r *jobRepo) CancelIfNotStarted(ctx context.Context, j *model.Job) (bool, error) {
	const q = `
        UPDATE jobs
        SET status = $2, credits_refunded = $3, cancel_requested = TRUE,
            completed_at = $4, updated_at = NOW()
        WHERE id = $1 AND status IN ('pending', 'queued')
    `
	tag, err := r.pool.Exec(ctx, q, j.ID, j.Status, j.CreditsRefunded, j.CompletedAt)
	if err != nil {
		return false, fmt.Errorf("cancelling job %s: %w", j.ID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// RequestCancel flags the job for cooperative cancellation; the worker stops
// dispatching further steps and finalizes the status.
func (r *jobRepo) RequestCancel(ctx context.Context, jobID string) error {
	const q = `UPDATE jobs SET cancel_requested = TRUE, updated_at = NOW() WHERE id = $1`
	if _, err := r.pool.Exec(ctx, q, jobID); err != nil {
		return fmt.Errorf("requesting cancel for job %s: %w", jobID, err)
	}
	return nil
}

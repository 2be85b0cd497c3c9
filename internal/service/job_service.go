package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"app/internal/apierr"
	"app/internal/credit"
	"app/internal/entitlement"
	"app/internal/model"
	"app/internal/pipeline"
	"app/internal/pubsub"
	"app/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// QueueMessage is the payload enqueued per job for the generation worker.
type QueueMessage struct {
	JobID string `json:"job_id"`
}

// Queue is the subset of the pgmq client the job service needs.
type Queue interface {
	Send(ctx context.Context, queue string, payload []byte) error
}

// Emitter publishes signed domain events.
type Emitter interface {
	Emit(ctx context.Context, event string, data any)
}

// JobService owns the job lifecycle visible to API clients: submission with
// the charge-before-enqueue guarantee, status projection, cancellation with
// refund, and retry of failed work.
type JobService interface {
	CreateJob(ctx context.Context, userID string, nicheID string, platform model.Platform, opts model.JobOptions) (*model.Job, *model.CreditEstimate, int, int, error)
	EstimateJob(ctx context.Context, userID, nicheID string, platform model.Platform, opts model.JobOptions) (*model.CreditEstimate, error)
	GetJob(ctx context.Context, userID, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, userID string, filter repository.JobFilter, limit int, cursor *repository.JobCursor) ([]model.Job, error)
	// CancelJob requests cancellation. Jobs that have not started are
	// finalized and fully refunded immediately; running jobs are flagged and
	// the worker finalizes them, so the returned refund is zero for those.
	CancelJob(ctx context.Context, userID, jobID string) (*model.Job, int, error)
	// RetryJob clones a failed or partial job into a new one that resumes
	// from the parent's last checkpoint, charging only for the remaining work.
	RetryJob(ctx context.Context, userID, jobID string) (*model.Job, error)
}

type jobService struct {
	jobRepo     repository.JobRepository
	nicheRepo   repository.NicheRepository
	userRepo    repository.UserRepository
	creditRepo  repository.CreditRepository
	queue       Queue
	queueName   string
	emitter     Emitter
	estimateCfg credit.EstimateConfig
	jobLogger   zerolog.Logger
}

// NewJobService creates a new JobService.
func NewJobService(
	jobRepo repository.JobRepository,
	nicheRepo repository.NicheRepository,
	userRepo repository.UserRepository,
	creditRepo repository.CreditRepository,
	queue Queue,
	queueName string,
	emitter Emitter,
	logger zerolog.Logger,
) JobService {
	return &jobService{
		jobRepo:     jobRepo,
		nicheRepo:   nicheRepo,
		userRepo:    userRepo,
		creditRepo:  creditRepo,
		queue:       queue,
		queueName:   queueName,
		emitter:     emitter,
		estimateCfg: credit.DefaultConfig,
		jobLogger:   logger.With().Str("service", "JobService").Logger(),
	}
}

// rolePriority maps subscription roles to dispatch priority.
var rolePriority = map[model.Role]model.JobPriority{
	model.RoleFree:    model.PriorityLow,
	model.RoleStarter: model.PriorityNormal,
	model.RolePro:     model.PriorityHigh,
	model.RoleAgency:  model.PriorityUrgent,
	model.RoleAdmin:   model.PriorityUrgent,
}

// validateRequest loads the user and niche and checks entitlements. Returns
// apierr errors for client-facing rejections.
func (s *jobService) validateRequest(ctx context.Context, userID, nicheID string, platform model.Platform, opts model.JobOptions) (*model.User, *model.Niche, error) {
	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching user: %w", err)
	}
	if user == nil {
		return nil, nil, apierr.New(apierr.CodeUnauthorized, "User not found")
	}
	if user.Status == model.UserSuspended || user.Status == model.UserDeleted {
		return nil, nil, apierr.New(apierr.CodeForbidden, "Account is not active")
	}

	niche, err := s.nicheRepo.GetNicheByID(ctx, nicheID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching niche: %w", err)
	}
	if niche == nil || !niche.IsActive {
		return nil, nil, apierr.New(apierr.CodeNotFound, "Niche not found")
	}
	if _, ok := niche.Platforms[platform]; !ok {
		return nil, nil, apierr.New(apierr.CodeInvalidInput, "Niche does not support this platform")
	}

	cfg := entitlement.ForRole(user.Role)
	if niche.IsPremium && !user.Role.AtLeast(model.RolePro) {
		return nil, nil, apierr.New(apierr.CodeSubscriptionRequired, "This niche requires a Pro subscription")
	}
	if !cfg.PlatformAllowed(platform) {
		return nil, nil, apierr.New(apierr.CodeSubscriptionRequired, "Platform not available on current plan")
	}
	if opts.Resolution != "" && !cfg.ResolutionAllowed(opts.Resolution) {
		return nil, nil, apierr.New(apierr.CodeSubscriptionRequired, "Resolution not available on current plan")
	}
	return user, niche, nil
}

// CreateJob validates entitlements, charges the estimate, persists the job,
// and enqueues it. Credits are charged before the job row exists; on any
// later failure the charge is refunded so the ledger stays balanced.
func (s *jobService) CreateJob(ctx context.Context, userID string, nicheID string, platform model.Platform, opts model.JobOptions) (*model.Job, *model.CreditEstimate, int, int, error) {
	user, niche, err := s.validateRequest(ctx, userID, nicheID, platform, opts)
	if err != nil {
		return nil, nil, 0, 0, err
	}

	cfg := entitlement.ForRole(user.Role)
	active, err := s.jobRepo.CountActiveJobs(ctx, userID)
	if err != nil {
		return nil, nil, 0, 0, fmt.Errorf("counting active jobs: %w", err)
	}
	if !entitlement.WithinLimit(active, cfg.MaxConcurrentJobs) {
		return nil, nil, 0, 0, apierr.New(apierr.CodeMaxConcurrentJobs,
			fmt.Sprintf("Concurrent job limit of %d reached", cfg.MaxConcurrentJobs))
	}

	estimate := credit.Estimate(s.estimateCfg, niche, opts, user.Credits)
	if !estimate.CanAfford {
		return nil, nil, 0, 0, apierr.New(apierr.CodeInsufficientCredits,
			fmt.Sprintf("Need %d more credits for this job", estimate.CreditsNeeded))
	}

	jobID := uuid.NewString()
	if _, err := s.creditRepo.ChargeCredits(ctx, userID, jobID, estimate.TotalCredits, "Video generation"); err != nil {
		if errors.Is(err, repository.ErrInsufficientCredits) {
			return nil, nil, 0, 0, apierr.New(apierr.CodeInsufficientCredits, "Insufficient credits")
		}
		s.jobLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to charge credits for job")
		return nil, nil, 0, 0, apierr.New(apierr.CodeCreditChargeFailed, "Could not charge credits")
	}

	job := &model.Job{
		ID:             jobID,
		UserID:         userID,
		NicheID:        nicheID,
		Platform:       platform,
		Status:         model.JobQueued,
		Priority:       rolePriority[user.Role],
		Options:        opts,
		EstimatedCost:  estimate.Breakdown,
		CreditsCharged: estimate.TotalCredits,
		MaxRetries:     3,
	}
	if err := s.jobRepo.CreateJob(ctx, job); err != nil {
		s.refund(ctx, userID, jobID, estimate.TotalCredits, "Refund: job creation failed")
		s.jobLogger.Error().Err(err).Str("job_id", jobID).Msg("Failed to create job record")
		return nil, nil, 0, 0, fmt.Errorf("failed to create job: %w", err)
	}

	payload, _ := json.Marshal(QueueMessage{JobID: jobID})
	if err := s.queue.Send(ctx, s.queueName, payload); err != nil {
		s.refund(ctx, userID, jobID, estimate.TotalCredits, "Refund: job enqueue failed")
		job.Status = model.JobFailed
		now := time.Now()
		job.CompletedAt = &now
		job.CreditsRefunded = estimate.TotalCredits
		_ = s.jobRepo.UpdateJob(ctx, job)
		s.jobLogger.Error().Err(err).Str("job_id", jobID).Msg("Failed to enqueue job")
		return nil, nil, 0, 0, apierr.New(apierr.CodeServiceUnavailable, "Could not queue job, credits refunded")
	}

	queuePos, err := s.jobRepo.QueueDepthBefore(ctx, job.Priority, job.CreatedAt)
	if err != nil {
		s.jobLogger.Warn().Err(err).Str("job_id", jobID).Msg("Could not compute queue position")
		queuePos = 0
	}
	eta := s.estimateSeconds(niche, opts, queuePos)

	s.emitter.Emit(ctx, pubsub.EventJobCreated, job)
	s.emitter.Emit(ctx, pubsub.EventCreditsCharged, map[string]any{
		"user_id": userID, "job_id": jobID, "amount": estimate.TotalCredits,
	})
	return job, &estimate, queuePos, eta, nil
}

func (s *jobService) refund(ctx context.Context, userID, jobID string, amount int, reason string) {
	if _, err := s.creditRepo.RefundCredits(ctx, userID, jobID, amount, reason); err != nil {
		s.jobLogger.Error().Err(err).
			Str("job_id", jobID).
			Int("amount", amount).
			Msg("Failed to refund credits, ledger needs reconciliation")
	}
}

// estimateSeconds projects wall-clock time from scene count plus queue wait.
func (s *jobService) estimateSeconds(niche *model.Niche, opts model.JobOptions, queuePos int) int {
	scenes := credit.SceneCount(niche, opts)
	return 90 + scenes*45 + queuePos*120
}

func (s *jobService) EstimateJob(ctx context.Context, userID, nicheID string, platform model.Platform, opts model.JobOptions) (*model.CreditEstimate, error) {
	user, niche, err := s.validateRequest(ctx, userID, nicheID, platform, opts)
	if err != nil {
		return nil, err
	}
	estimate := credit.Estimate(s.estimateCfg, niche, opts, user.Credits)
	return &estimate, nil
}

// GetJob returns a job owned by the user. Admins can read any job.
func (s *jobService) GetJob(ctx context.Context, userID, jobID string) (*model.Job, error) {
	job, err := s.jobRepo.GetJobByID(ctx, jobID)
	if err != nil {
		s.jobLogger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		return nil, err
	}
	if job == nil {
		return nil, apierr.New(apierr.CodeJobNotFound, "Job not found")
	}
	if job.UserID != userID {
		user, err := s.userRepo.GetUserByID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("fetching user: %w", err)
		}
		if user == nil || !user.Role.AtLeast(model.RoleAdmin) {
			// Hide the job's existence from non-owners.
			return nil, apierr.New(apierr.CodeJobNotFound, "Job not found")
		}
	}
	return job, nil
}

func (s *jobService) ListJobs(ctx context.Context, userID string, filter repository.JobFilter, limit int, cursor *repository.JobCursor) ([]model.Job, error) {
	jobs, err := s.jobRepo.ListJobs(ctx, userID, filter, limit, cursor)
	if err != nil {
		s.jobLogger.Error().Err(err).Str("user_id", userID).Msg("Failed to list jobs")
		return nil, err
	}
	return jobs, nil
}

func (s *jobService) CancelJob(ctx context.Context, userID, jobID string) (*model.Job, int, error) {
	job, err := s.GetJob(ctx, userID, jobID)
	if err != nil {
		return nil, 0, err
	}
	if pipeline.IsTerminal(job.Status) {
		return nil, 0, apierr.New(apierr.CodeJobAlreadyCompleted, "Job already finished")
	}

	// Not yet picked up: finalize and refund everything here. The update is
	// conditional on the row still being pending or queued so the worker and
	// the API never both refund the same job.
	if job.Status == model.JobPending || job.Status == model.JobQueued {
		job.Status = model.JobCancelled
		job.CancelRequested = true
		job.CreditsRefunded = job.CreditsCharged
		now := time.Now()
		job.CompletedAt = &now
		won, err := s.jobRepo.CancelIfNotStarted(ctx, job)
		if err != nil {
			return nil, 0, err
		}
		if won {
			if job.CreditsCharged > 0 {
				s.refund(ctx, job.UserID, jobID, job.CreditsCharged, "Refund: job cancelled before start")
				s.emitter.Emit(ctx, pubsub.EventCreditsRefunded, map[string]any{
					"user_id": job.UserID, "job_id": jobID, "amount": job.CreditsCharged,
				})
			}
			s.emitter.Emit(ctx, pubsub.EventJobCancelled, job)
			return job, job.CreditsRefunded, nil
		}

		// The worker picked the job up first; re-read and fall through to the
		// cooperative path.
		job, err = s.jobRepo.GetJobByID(ctx, jobID)
		if err != nil {
			return nil, 0, err
		}
		if job == nil || pipeline.IsTerminal(job.Status) {
			return nil, 0, apierr.New(apierr.CodeJobAlreadyCompleted, "Job already finished")
		}
	}

	// In flight: the worker observes the flag between steps and finalizes
	// with a proportional refund.
	if err := s.jobRepo.RequestCancel(ctx, jobID); err != nil {
		return nil, 0, fmt.Errorf("requesting cancel for job %s: %w", jobID, err)
	}
	job.CancelRequested = true
	return job, 0, nil
}

// RemainingCharge computes the credit cost of the steps a retry still has to
// run, from the estimate breakdown and the completed checkpoints.
func RemainingCharge(estimate model.CostBreakdown, checkpoints []model.Checkpoint) int {
	done := make(map[model.JobStatus]bool, len(checkpoints))
	for _, cp := range checkpoints {
		done[cp.Step] = true
	}
	charge := 0
	if !done[model.JobScriptGeneration] {
		charge += estimate.ScriptGeneration
	}
	if !done[model.JobImageGeneration] {
		charge += estimate.ImageGeneration
	}
	if !done[model.JobVideoGeneration] {
		charge += estimate.VideoGeneration
	}
	if !done[model.JobAudioSelection] {
		charge += estimate.AudioSelection
	}
	// Assembly work is never checkpointed separately; retries always redo it.
	charge += estimate.Assembly
	return charge
}

func (s *jobService) RetryJob(ctx context.Context, userID, jobID string) (*model.Job, error) {
	parent, err := s.GetJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if parent.Status != model.JobFailed && parent.Status != model.JobPartial {
		return nil, apierr.New(apierr.CodeConflict, "Only failed or partial jobs can be retried")
	}

	user, err := s.userRepo.GetUserByID(ctx, parent.UserID)
	if err != nil {
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	cfg := entitlement.ForRole(user.Role)
	active, err := s.jobRepo.CountActiveJobs(ctx, parent.UserID)
	if err != nil {
		return nil, fmt.Errorf("counting active jobs: %w", err)
	}
	if !entitlement.WithinLimit(active, cfg.MaxConcurrentJobs) {
		return nil, apierr.New(apierr.CodeMaxConcurrentJobs,
			fmt.Sprintf("Concurrent job limit of %d reached", cfg.MaxConcurrentJobs))
	}

	charge := RemainingCharge(parent.EstimatedCost, parent.Checkpoints)
	newID := uuid.NewString()
	if charge > 0 {
		if _, err := s.creditRepo.ChargeCredits(ctx, parent.UserID, newID, charge, "Video generation retry"); err != nil {
			if errors.Is(err, repository.ErrInsufficientCredits) {
				return nil, apierr.New(apierr.CodeInsufficientCredits, "Insufficient credits for retry")
			}
			return nil, apierr.New(apierr.CodeCreditChargeFailed, "Could not charge credits")
		}
	}

	// Carry over checkpointed work so the worker resumes instead of
	// starting from scratch.
	retry := &model.Job{
		ID:             newID,
		UserID:         parent.UserID,
		NicheID:        parent.NicheID,
		ParentJobID:    &parent.ID,
		Platform:       parent.Platform,
		Status:         model.JobQueued,
		Priority:       parent.Priority,
		Options:        parent.Options,
		Idea:           parent.Idea,
		Script:         parent.Script,
		Scenes:         resetFailedScenes(parent.Scenes),
		EstimatedCost:  parent.EstimatedCost,
		CreditsCharged: charge,
		Checkpoints:    parent.Checkpoints,
		MaxRetries:     parent.MaxRetries,
	}
	if err := s.jobRepo.CreateJob(ctx, retry); err != nil {
		if charge > 0 {
			s.refund(ctx, parent.UserID, newID, charge, "Refund: retry creation failed")
		}
		return nil, fmt.Errorf("failed to create retry job: %w", err)
	}

	payload, _ := json.Marshal(QueueMessage{JobID: newID})
	if err := s.queue.Send(ctx, s.queueName, payload); err != nil {
		if charge > 0 {
			s.refund(ctx, parent.UserID, newID, charge, "Refund: retry enqueue failed")
		}
		retry.Status = model.JobFailed
		now := time.Now()
		retry.CompletedAt = &now
		retry.CreditsRefunded = charge
		_ = s.jobRepo.UpdateJob(ctx, retry)
		return nil, apierr.New(apierr.CodeServiceUnavailable, "Could not queue retry, credits refunded")
	}

	s.emitter.Emit(ctx, pubsub.EventJobCreated, retry)
	return retry, nil
}

// resetFailedScenes keeps completed scene renders and clears failed ones so
// only the failed portion is regenerated.
func resetFailedScenes(scenes []model.Scene) []model.Scene {
	out := make([]model.Scene, len(scenes))
	for i, sc := range scenes {
		if sc.Status == model.SceneFailed || sc.Status == model.SceneProcessing {
			sc.Status = model.ScenePending
			sc.Error = ""
			sc.ImageURL = ""
			sc.VideoURL = ""
		}
		out[i] = sc
	}
	return out
}

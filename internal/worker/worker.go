// Package worker runs the generation pipeline. It consumes queued jobs,
// drives each step against the provider with per-step retries and
// checkpointing, and finalizes terminal status, refunds, and events.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"app/internal/config"
	"app/internal/model"
	"app/internal/pgmq"
	"app/internal/pipeline"
	"app/internal/provider"
	"app/internal/pubsub"
	"app/internal/repository"
	"app/internal/service"

	"github.com/rs/zerolog"
)

// QueueClient is the subset of the pgmq client the worker needs.
type QueueClient interface {
	Send(ctx context.Context, queue string, payload []byte) error
	ReadWithPoll(ctx context.Context, queue string, timeoutSec, maxMessages int) ([]*pgmq.Message, error)
	Delete(ctx context.Context, queue string, msgIDs []int64) error
}

// ExportStore uploads a finished render to durable storage and returns its key.
type ExportStore interface {
	Upload(ctx context.Context, jobID, srcURL string) (string, error)
}

// Worker consumes the generation queue and executes jobs end to end.
type Worker struct {
	jobRepo    repository.JobRepository
	nicheRepo  repository.NicheRepository
	creditRepo repository.CreditRepository
	queue      QueueClient
	adapter    provider.Adapter
	store      ExportStore
	emitter    service.Emitter
	dlq        service.DLQService
	cfg        *config.Config
	logger     zerolog.Logger
	picker     *pipeline.Picker
	rng        *rand.Rand
	sleep      func(time.Duration)
}

// New creates a Worker.
func New(
	jobRepo repository.JobRepository,
	nicheRepo repository.NicheRepository,
	creditRepo repository.CreditRepository,
	queue QueueClient,
	adapter provider.Adapter,
	store ExportStore,
	emitter service.Emitter,
	dlq service.DLQService,
	cfg *config.Config,
	logger zerolog.Logger,
) *Worker {
	seed := time.Now().UnixNano()
	return &Worker{
		jobRepo:    jobRepo,
		nicheRepo:  nicheRepo,
		creditRepo: creditRepo,
		queue:      queue,
		adapter:    adapter,
		store:      store,
		emitter:    emitter,
		dlq:        dlq,
		cfg:        cfg,
		logger:     logger.With().Str("component", "worker").Logger(),
		picker:     pipeline.NewPicker(seed),
		rng:        rand.New(rand.NewSource(seed)),
		sleep:      time.Sleep,
	}
}

// Run polls the generation queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	queue := w.cfg.GenerationQueueName
	w.logger.Info().Str("queue", queue).Msg("Starting generation worker")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Shutting down generation worker")
			return nil
		default:
		}
		msgs, err := w.queue.ReadWithPoll(ctx, queue, w.cfg.GenerationPollTimeoutSec, w.cfg.GenerationPollMaxMsg)
		if err != nil {
			w.logger.Error().Err(err).Msg("Error reading generation queue")
			w.sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			w.handleMessage(ctx, msg)
		}
	}
}

// handleMessage processes one queue message end to end and acknowledges it.
// The message is only left unacknowledged when the context is cancelled
// mid-job, so a crashed or drained worker hands the job to the next one.
func (w *Worker) handleMessage(ctx context.Context, msg *pgmq.Message) {
	queue := w.cfg.GenerationQueueName

	var payload service.QueueMessage
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		w.logger.Error().Err(err).Int64("msg_id", msg.ID).Msg("Failed to unmarshal queue payload; deleting message")
		w.ack(ctx, queue, msg.ID)
		return
	}
	log := w.logger.With().Str("job_id", payload.JobID).Logger()

	job, err := w.jobRepo.GetJobByID(ctx, payload.JobID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load job; leaving message for redelivery")
		return
	}
	if job == nil {
		log.Warn().Msg("Job not found for queue message; deleting")
		w.ack(ctx, queue, msg.ID)
		return
	}
	if pipeline.IsTerminal(job.Status) {
		log.Info().Str("status", string(job.Status)).Msg("Job already terminal; deleting message")
		w.ack(ctx, queue, msg.ID)
		return
	}
	if job.CancelRequested {
		w.finalizeCancelled(ctx, job)
		w.ack(ctx, queue, msg.ID)
		return
	}

	niche, err := w.nicheRepo.GetNicheByID(ctx, job.NicheID)
	if err != nil || niche == nil {
		log.Error().Err(err).Msg("Failed to load niche for job")
		w.failJob(ctx, job, job.Status, "niche_unavailable", "Niche configuration could not be loaded", false)
		w.deadLetter(ctx, job.ID, msg.Data, "niche_unavailable")
		w.ack(ctx, queue, msg.ID)
		return
	}

	if job.StartedAt == nil {
		now := time.Now()
		job.StartedAt = &now
	}

	err = w.runPipeline(ctx, job, niche)
	switch {
	case err == nil:
		w.ack(ctx, queue, msg.ID)
	case ctx.Err() != nil:
		// Shutdown mid-job: leave the message invisible until its timeout
		// lapses and another worker resumes from the last checkpoint.
		log.Info().Msg("Context cancelled mid-job; leaving message for redelivery")
	default:
		log.Error().Err(err).Msg("Job failed")
		w.deadLetter(ctx, job.ID, msg.Data, err.Error())
		w.ack(ctx, queue, msg.ID)
	}
}

func (w *Worker) ack(ctx context.Context, queue string, id int64) {
	if err := w.queue.Delete(ctx, queue, []int64{id}); err != nil {
		w.logger.Error().Err(err).Int64("msg_id", id).Msg("Error deleting queue message")
	}
}

func (w *Worker) deadLetter(ctx context.Context, jobID string, data []byte, reason string) {
	if err := w.dlq.Record(ctx, w.cfg.GenerationDeadLetterQueueName, jobID, data, reason); err != nil {
		w.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to record dead letter")
	}
}

// resumeFrom returns the first step that still has to run, honoring the
// checkpoints a retried job inherited from its parent.
func resumeFrom(job *model.Job) (pipeline.StepDef, bool) {
	if len(job.Checkpoints) == 0 {
		return pipeline.Steps[0], true
	}
	last := job.Checkpoints[len(job.Checkpoints)-1].Step
	return pipeline.NextStep(last)
}

// runPipeline executes every remaining step. A nil return means the job
// reached a terminal success status (completed or partial); a non-nil return
// means it was marked failed.
func (w *Worker) runPipeline(ctx context.Context, job *model.Job, niche *model.Niche) error {
	step, ok := resumeFrom(job)
	if !ok {
		// Everything checkpointed already; finalize straight away.
		return w.finalizeSuccess(ctx, job)
	}

	for {
		// Cooperative cancellation between steps. The fresh row is
		// authoritative: the API may have finalized and refunded the job
		// already, in which case there is nothing left to do here.
		fresh, err := w.jobRepo.GetJobByID(ctx, job.ID)
		if err == nil && fresh != nil {
			if pipeline.IsTerminal(fresh.Status) {
				return nil
			}
			if fresh.CancelRequested {
				w.finalizeCancelled(ctx, fresh)
				return nil
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := w.enterStep(ctx, job, step); err != nil {
			return err
		}
		if err := w.runStep(ctx, job, niche, step); err != nil {
			w.failJob(ctx, job, step.Status, "step_failed", err.Error(), provider.IsRecoverable(err))
			return err
		}
		if err := w.checkpoint(ctx, job, step); err != nil {
			return err
		}

		next, ok := pipeline.NextStep(step.Status)
		if !ok {
			return w.finalizeSuccess(ctx, job)
		}
		step = next
	}
}

// enterStep moves the job into the step's status and persists the projection.
func (w *Worker) enterStep(ctx context.Context, job *model.Job, step pipeline.StepDef) error {
	if err := pipeline.ValidateTransition(job.Status, step.Status, job.Scenes); err != nil {
		return fmt.Errorf("invalid transition %s -> %s: %w", job.Status, step.Status, err)
	}
	job.Status = step.Status
	job.Progress = pipeline.ProgressAt(step.Status)
	if err := w.jobRepo.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("persisting step entry: %w", err)
	}
	w.emitter.Emit(ctx, pubsub.EventJobStatusChanged, map[string]any{
		"job_id": job.ID, "status": job.Status, "progress": job.Progress,
	})
	return nil
}

// runStep executes one step with the step's retry budget and per-attempt
// timeout. Backoff grows exponentially with jitter.
func (w *Worker) runStep(ctx context.Context, job *model.Job, niche *model.Niche, step pipeline.StepDef) error {
	backoff := time.Duration(w.cfg.StepBackoffInitialSec) * time.Second
	maxBackoff := time.Duration(w.cfg.StepBackoffMaxSec) * time.Second
	maxAttempts := step.MaxRetries
	if w.cfg.StepMaxRetries > 0 && w.cfg.StepMaxRetries < maxAttempts {
		maxAttempts = w.cfg.StepMaxRetries
	}
	if job.MaxRetries > 0 && job.MaxRetries < maxAttempts {
		maxAttempts = job.MaxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		stepCtx, cancel := context.WithTimeout(ctx, step.Timeout)
		err := w.executeStep(stepCtx, job, niche, step)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		recoverable := provider.IsRecoverable(err) && ctx.Err() == nil
		job.Errors = append(job.Errors, model.JobError{
			Step:        step.Status,
			Code:        "step_failed",
			Message:     err.Error(),
			Recoverable: recoverable,
			RetryCount:  attempt - 1,
			OccurredAt:  time.Now(),
		})
		if err := w.jobRepo.UpdateJob(ctx, job); err != nil {
			w.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist step error")
		}
		if !recoverable {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}
		job.RetryCount++
		w.logger.Warn().Err(err).
			Str("job_id", job.ID).
			Str("step", step.Name).
			Int("attempt", attempt).
			Msg("Step failed, retrying")

		jitter := time.Duration(w.rng.Int63n(int64(backoff)/2 + 1))
		w.sleep(backoff + jitter)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return fmt.Errorf("step %s exhausted %d attempts: %w", step.Name, maxAttempts, lastErr)
}

// checkpoint records the step's durable output so a retry never redoes it.
func (w *Worker) checkpoint(ctx context.Context, job *model.Job, step pipeline.StepDef) error {
	data, err := checkpointData(job, step.Status)
	if err != nil {
		return fmt.Errorf("building checkpoint for %s: %w", step.Name, err)
	}
	cps, err := pipeline.AppendCheckpoint(job.Checkpoints, model.Checkpoint{
		Step:      step.Status,
		Data:      data,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("appending checkpoint for %s: %w", step.Name, err)
	}
	job.Checkpoints = cps
	job.Progress = pipeline.ProgressAt(step.Status) + step.Weight
	if err := w.jobRepo.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("persisting checkpoint: %w", err)
	}
	return nil
}

// checkpointData captures the step's output for resumability. Large artifacts
// stay behind URLs; the checkpoint holds references only.
func checkpointData(job *model.Job, step model.JobStatus) ([]byte, error) {
	switch step {
	case model.JobIdeaGeneration:
		return json.Marshal(job.Idea)
	case model.JobScriptGeneration:
		return json.Marshal(job.Script)
	case model.JobSceneBreakdown, model.JobImageGeneration,
		model.JobVideoGeneration, model.JobTextOverlay:
		return json.Marshal(job.Scenes)
	case model.JobAudioSelection:
		return json.Marshal(map[string]string{"audio_url": job.AudioURL})
	case model.JobVideoAssembly, model.JobPlatformFormatting:
		return json.Marshal(map[string]string{"video_url": job.FinalVideoURL})
	case model.JobExporting:
		return json.Marshal(map[string]string{"export_url": job.ExportURL})
	}
	return json.Marshal(struct{}{})
}

// finalizeSuccess closes the job as completed, or partial when some scenes
// failed, refunding the failed scenes' share of the charge.
func (w *Worker) finalizeSuccess(ctx context.Context, job *model.Job) error {
	completed, failed := sceneOutcome(job.Scenes)
	now := time.Now()
	job.CompletedAt = &now
	job.Progress = 100
	job.ActualCost = job.EstimatedCost

	if failed > 0 && completed > 0 {
		job.Status = model.JobPartial
		refund := sceneRefund(job.EstimatedCost, completed, failed)
		if refund > 0 {
			job.CreditsRefunded += refund
			w.refund(ctx, job, refund, "Refund: partial completion")
		}
	} else {
		job.Status = model.JobCompleted
	}

	if err := w.jobRepo.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("persisting terminal status: %w", err)
	}
	event := pubsub.EventJobCompleted
	if job.Status == model.JobPartial {
		event = pubsub.EventJobFailed
	}
	w.emitter.Emit(ctx, event, job)
	w.logger.Info().
		Str("job_id", job.ID).
		Str("status", string(job.Status)).
		Msg("Job finished")
	return nil
}

// failJob marks the job failed and refunds the share of the charge for work
// that never ran.
func (w *Worker) failJob(ctx context.Context, job *model.Job, step model.JobStatus, code, message string, recoverable bool) {
	now := time.Now()
	job.Status = model.JobFailed
	job.CompletedAt = &now
	job.Errors = append(job.Errors, model.JobError{
		Step:        step,
		Code:        code,
		Message:     message,
		Recoverable: recoverable,
		OccurredAt:  now,
	})
	refund := remainingRefund(job)
	if refund > 0 {
		job.CreditsRefunded += refund
		w.refund(ctx, job, refund, "Refund: job failed")
	}
	if err := w.jobRepo.UpdateJob(ctx, job); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist failed status")
	}
	w.emitter.Emit(ctx, pubsub.EventJobFailed, job)
}

// finalizeCancelled closes a cancel-requested job and refunds the unconsumed
// share of the charge.
func (w *Worker) finalizeCancelled(ctx context.Context, job *model.Job) {
	now := time.Now()
	job.Status = model.JobCancelled
	job.CompletedAt = &now
	refund := remainingRefund(job)
	if refund > 0 {
		job.CreditsRefunded += refund
		w.refund(ctx, job, refund, "Refund: job cancelled")
	}
	if err := w.jobRepo.UpdateJob(ctx, job); err != nil {
		w.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist cancelled status")
	}
	w.emitter.Emit(ctx, pubsub.EventJobCancelled, job)
	w.logger.Info().Str("job_id", job.ID).Int("refunded", refund).Msg("Job cancelled")
}

func (w *Worker) refund(ctx context.Context, job *model.Job, amount int, reason string) {
	if _, err := w.creditRepo.RefundCredits(ctx, job.UserID, job.ID, amount, reason); err != nil {
		w.logger.Error().Err(err).
			Str("job_id", job.ID).
			Int("amount", amount).
			Msg("Failed to refund credits, ledger needs reconciliation")
		return
	}
	w.emitter.Emit(ctx, pubsub.EventCreditsRefunded, map[string]any{
		"user_id": job.UserID, "job_id": job.ID, "amount": amount,
	})
}

// remainingRefund is the charge share for progress never made, rounded down.
func remainingRefund(job *model.Job) int {
	remaining := 100 - job.Progress
	if remaining <= 0 {
		return 0
	}
	refund := job.CreditsCharged * remaining / 100
	// Never refund past what is still held for the job.
	if left := job.CreditsCharged - job.CreditsRefunded; refund > left {
		refund = left
	}
	if refund < 0 {
		refund = 0
	}
	return refund
}

func sceneOutcome(scenes []model.Scene) (completed, failed int) {
	for _, sc := range scenes {
		switch sc.Status {
		case model.SceneCompleted:
			completed++
		case model.SceneFailed:
			failed++
		}
	}
	return completed, failed
}

// sceneRefund returns the failed scenes' share of the per-scene costs.
func sceneRefund(cost model.CostBreakdown, completed, failed int) int {
	total := completed + failed
	if total == 0 {
		return 0
	}
	perScene := cost.ImageGeneration + cost.VideoGeneration
	return perScene * failed / total
}

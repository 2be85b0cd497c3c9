package service

import (
	"context"
	"encoding/json"
	"fmt"

	"app/internal/apierr"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
)

// DLQService records generation messages the worker gave up on and lets
// operators replay or discard them.
type DLQService interface {
	Record(ctx context.Context, queue, jobID string, payload []byte, reason string) error
	ListDeadLetters(ctx context.Context, status model.DeadLetterStatus, limit int) ([]model.DeadLetterMessage, error)
	// Replay re-enqueues the original payload on the generation queue and
	// marks the dead letter replayed.
	Replay(ctx context.Context, id int64) (*model.DeadLetterMessage, error)
	Discard(ctx context.Context, id int64) (*model.DeadLetterMessage, error)
}

type dlqService struct {
	repo      repository.DLQRepository
	queue     Queue
	queueName string
	dlqLogger zerolog.Logger
}

// NewDLQService creates a new DLQService.
func NewDLQService(repo repository.DLQRepository, queue Queue, queueName string, logger zerolog.Logger) DLQService {
	return &dlqService{
		repo:      repo,
		queue:     queue,
		queueName: queueName,
		dlqLogger: logger.With().Str("service", "DLQService").Logger(),
	}
}

func (s *dlqService) Record(ctx context.Context, queue, jobID string, payload []byte, reason string) error {
	if !json.Valid(payload) {
		raw, _ := json.Marshal(string(payload))
		payload = raw
	}
	m := &model.DeadLetterMessage{
		Queue:   queue,
		JobID:   jobID,
		Payload: payload,
		Reason:  reason,
		Status:  model.DeadLetterPending,
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return err
	}
	s.dlqLogger.Warn().Str("job_id", jobID).Str("reason", reason).Msg("Recorded dead letter")
	return nil
}

func (s *dlqService) ListDeadLetters(ctx context.Context, status model.DeadLetterStatus, limit int) ([]model.DeadLetterMessage, error) {
	return s.repo.List(ctx, status, limit)
}

func (s *dlqService) Replay(ctx context.Context, id int64) (*model.DeadLetterMessage, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apierr.New(apierr.CodeNotFound, "Dead letter not found")
	}
	if m.Status != model.DeadLetterPending {
		return nil, apierr.New(apierr.CodeConflict, "Dead letter already resolved")
	}
	if err := s.queue.Send(ctx, s.queueName, m.Payload); err != nil {
		return nil, fmt.Errorf("re-enqueueing dead letter %d: %w", id, err)
	}
	if err := s.repo.UpdateStatus(ctx, id, model.DeadLetterReplayed); err != nil {
		return nil, err
	}
	m.Status = model.DeadLetterReplayed
	s.dlqLogger.Info().Int64("id", id).Str("job_id", m.JobID).Msg("Replayed dead letter")
	return m, nil
}

func (s *dlqService) Discard(ctx context.Context, id int64) (*model.DeadLetterMessage, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apierr.New(apierr.CodeNotFound, "Dead letter not found")
	}
	if m.Status != model.DeadLetterPending {
		return nil, apierr.New(apierr.CodeConflict, "Dead letter already resolved")
	}
	if err := s.repo.UpdateStatus(ctx, id, model.DeadLetterDiscarded); err != nil {
		return nil, err
	}
	m.Status = model.DeadLetterDiscarded
	return m, nil
}

package service

import (
	"context"
	"encoding/json"
	"testing"

	"app/internal/apierr"
	"app/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDLQRepo struct {
	nextID int64
	rows   map[int64]*model.DeadLetterMessage
}

func newStubDLQRepo() *stubDLQRepo {
	return &stubDLQRepo{rows: map[int64]*model.DeadLetterMessage{}}
}

func (s *stubDLQRepo) Create(_ context.Context, m *model.DeadLetterMessage) error {
	s.nextID++
	m.ID = s.nextID
	cp := *m
	s.rows[m.ID] = &cp
	return nil
}

func (s *stubDLQRepo) GetByID(_ context.Context, id int64) (*model.DeadLetterMessage, error) {
	m, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *stubDLQRepo) List(_ context.Context, status model.DeadLetterStatus, limit int) ([]model.DeadLetterMessage, error) {
	var out []model.DeadLetterMessage
	for _, m := range s.rows {
		if status == "" || m.Status == status {
			out = append(out, *m)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *stubDLQRepo) UpdateStatus(_ context.Context, id int64, status model.DeadLetterStatus) error {
	s.rows[id].Status = status
	return nil
}

func TestDLQRecordWrapsNonJSONPayload(t *testing.T) {
	repo := newStubDLQRepo()
	svc := NewDLQService(repo, &stubQueue{}, "generation_queue", zerolog.Nop())

	err := svc.Record(context.Background(), "generation_queue_dlq", "job-1", []byte("not json"), "boom")
	require.NoError(t, err)

	row := repo.rows[1]
	assert.True(t, json.Valid(row.Payload))
	assert.Equal(t, "job-1", row.JobID)
	assert.Equal(t, model.DeadLetterPending, row.Status)
}

func TestDLQReplayReenqueuesOnce(t *testing.T) {
	repo := newStubDLQRepo()
	queue := &stubQueue{}
	svc := NewDLQService(repo, queue, "generation_queue", zerolog.Nop())

	payload := []byte(`{"job_id":"job-1"}`)
	require.NoError(t, svc.Record(context.Background(), "generation_queue_dlq", "job-1", payload, "boom"))

	m, err := svc.Replay(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.DeadLetterReplayed, m.Status)
	require.Len(t, queue.sent, 1)
	assert.JSONEq(t, string(payload), string(queue.sent[0]))

	// Replaying a resolved dead letter is rejected.
	_, err = svc.Replay(context.Background(), 1)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.CodeConflict, apiErr.Code)
}

func TestDLQDiscard(t *testing.T) {
	repo := newStubDLQRepo()
	svc := NewDLQService(repo, &stubQueue{}, "generation_queue", zerolog.Nop())

	require.NoError(t, svc.Record(context.Background(), "generation_queue_dlq", "job-1", []byte(`{}`), "boom"))

	m, err := svc.Discard(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, model.DeadLetterDiscarded, m.Status)

	_, err = svc.Replay(context.Background(), 1)
	assert.Error(t, err)

	_, err = svc.Discard(context.Background(), 99)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.CodeNotFound, apiErr.Code)
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"app/internal/config"
	"app/internal/model"
	"app/internal/pgmq"
	"app/internal/pipeline"
	"app/internal/provider"
	"app/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobs struct {
	jobs map[string]*model.Job
	// onGet, when set, may replace the stored row before a read returns it.
	onGet func(call int, j *model.Job) *model.Job
	gets  int
}

func newFakeJobs(jobs ...*model.Job) *fakeJobs {
	m := map[string]*model.Job{}
	for _, j := range jobs {
		cp := *j
		m[j.ID] = &cp
	}
	return &fakeJobs{jobs: m}
}

func (f *fakeJobs) CreateJob(_ context.Context, j *model.Job) error {
	cp := *j
	f.jobs[j.ID] = &cp
	return nil
}

func (f *fakeJobs) GetJobByID(_ context.Context, id string) (*model.Job, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, nil
	}
	f.gets++
	if f.onGet != nil {
		if replaced := f.onGet(f.gets, j); replaced != nil {
			cp := *replaced
			f.jobs[id] = &cp
			j = &cp
		}
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobs) ListJobs(_ context.Context, _ string, _ repository.JobFilter, _ int, _ *repository.JobCursor) ([]model.Job, error) {
	return nil, nil
}

func (f *fakeJobs) CountActiveJobs(_ context.Context, _ string) (int, error) { return 0, nil }

func (f *fakeJobs) QueueDepthBefore(_ context.Context, _ model.JobPriority, _ time.Time) (int, error) {
	return 0, nil
}

func (f *fakeJobs) UpdateJob(_ context.Context, j *model.Job) error {
	cp := *j
	f.jobs[j.ID] = &cp
	return nil
}

func (f *fakeJobs) CancelIfNotStarted(_ context.Context, j *model.Job) (bool, error) {
	stored, ok := f.jobs[j.ID]
	if !ok || (stored.Status != model.JobPending && stored.Status != model.JobQueued) {
		return false, nil
	}
	cp := *j
	f.jobs[j.ID] = &cp
	return true, nil
}

func (f *fakeJobs) RequestCancel(_ context.Context, jobID string) error {
	f.jobs[jobID].CancelRequested = true
	return nil
}

type fakeNiches struct {
	niche *model.Niche
}

func (f *fakeNiches) GetNicheByID(_ context.Context, _ string) (*model.Niche, error) {
	cp := *f.niche
	return &cp, nil
}

func (f *fakeNiches) ListNiches(_ context.Context, _ model.NicheCategory, _ model.Platform, _ int, _ *string) ([]model.Niche, error) {
	return nil, nil
}

func (f *fakeNiches) UpdateNiche(_ context.Context, _ *model.Niche, _ []byte) error { return nil }

func (f *fakeNiches) TouchPools(_ context.Context, _ string, _ model.RandomizationPools) error {
	return nil
}

type refundCall struct {
	jobID  string
	amount int
}

type fakeCredits struct {
	refunds []refundCall
}

func (f *fakeCredits) ChargeCredits(_ context.Context, _, _ string, _ int, _ string) (*model.CreditTransaction, error) {
	return &model.CreditTransaction{}, nil
}

func (f *fakeCredits) RefundCredits(_ context.Context, _, jobID string, amount int, _ string) (*model.CreditTransaction, error) {
	f.refunds = append(f.refunds, refundCall{jobID: jobID, amount: amount})
	return &model.CreditTransaction{}, nil
}

func (f *fakeCredits) GrantCredits(_ context.Context, _ string, _ model.TransactionType, _ int, _ string) (*model.CreditTransaction, error) {
	return &model.CreditTransaction{}, nil
}

func (f *fakeCredits) GetBalance(_ context.Context, _ string) (*model.CreditBalance, error) {
	return nil, nil
}

func (f *fakeCredits) ListTransactions(_ context.Context, _ string, _ int) ([]model.CreditTransaction, error) {
	return nil, nil
}

func (f *fakeCredits) GetCreditPackageByID(_ context.Context, _ string) (*model.CreditPackage, error) {
	return nil, nil
}

func (f *fakeCredits) ListCreditPackages(_ context.Context) ([]model.CreditPackage, error) {
	return nil, nil
}

type fakeQueue struct {
	sent    map[string][][]byte
	deleted []int64
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{sent: map[string][][]byte{}}
}

func (f *fakeQueue) Send(_ context.Context, queue string, payload []byte) error {
	f.sent[queue] = append(f.sent[queue], payload)
	return nil
}

func (f *fakeQueue) ReadWithPoll(_ context.Context, _ string, _, _ int) ([]*pgmq.Message, error) {
	return nil, nil
}

func (f *fakeQueue) Delete(_ context.Context, _ string, msgIDs []int64) error {
	f.deleted = append(f.deleted, msgIDs...)
	return nil
}

// fakeAdapter answers every step with canned output and counts calls.
// Individual methods can be made to fail via the err fields.
type fakeAdapter struct {
	calls      map[string]int
	scriptErr  error
	imageErr   error
	videoErrOn string // image URL whose animation fails unrecoverably
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{calls: map[string]int{}}
}

func (f *fakeAdapter) GenerateIdea(_ context.Context, _ provider.IdeaRequest) (*model.GeneratedIdea, error) {
	f.calls["idea"]++
	return &model.GeneratedIdea{Topic: "morning routines", Hook: "nobody tells you this", VisualStyle: "cinematic"}, nil
}

func (f *fakeAdapter) GenerateScript(_ context.Context, _ provider.ScriptRequest) (*model.GeneratedScript, error) {
	f.calls["script"]++
	if f.scriptErr != nil {
		return nil, f.scriptErr
	}
	return &model.GeneratedScript{Title: "Morning Routines", TotalDuration: 15}, nil
}

func (f *fakeAdapter) BreakdownScenes(_ context.Context, req provider.SceneRequest) ([]model.Scene, error) {
	f.calls["scenes"]++
	scenes := make([]model.Scene, req.SceneCount)
	for i := range scenes {
		scenes[i] = model.Scene{Duration: 5, VisualDescription: fmt.Sprintf("scene %d", i+1)}
	}
	return scenes, nil
}

func (f *fakeAdapter) GenerateImage(_ context.Context, _, _, _ string) (string, error) {
	f.calls["image"]++
	if f.imageErr != nil {
		return "", f.imageErr
	}
	return fmt.Sprintf("https://cdn.test/img-%d", f.calls["image"]), nil
}

func (f *fakeAdapter) GenerateVideo(_ context.Context, imageURL, _ string, _ float64) (string, error) {
	f.calls["video"]++
	if f.videoErrOn != "" && imageURL == f.videoErrOn {
		return "", &provider.Error{StatusCode: 422, Body: "rejected"}
	}
	return imageURL + ".mp4", nil
}

func (f *fakeAdapter) SelectAudio(_ context.Context, _ string, _ float64) (string, error) {
	f.calls["audio"]++
	return "https://cdn.test/track.mp3", nil
}

func (f *fakeAdapter) RenderOverlays(_ context.Context, scenes []model.Scene) ([]model.Scene, error) {
	f.calls["overlays"]++
	return scenes, nil
}

func (f *fakeAdapter) AssembleVideo(_ context.Context, _ provider.AssembleRequest) (string, error) {
	f.calls["assemble"]++
	return "https://cdn.test/final.mp4", nil
}

func (f *fakeAdapter) FormatForPlatform(_ context.Context, videoURL string, _ model.Platform) (string, error) {
	f.calls["format"]++
	return videoURL + "?formatted", nil
}

type fakeStore struct {
	uploads int
}

func (f *fakeStore) Upload(_ context.Context, jobID, _ string) (string, error) {
	f.uploads++
	return "exports/" + jobID + "/final.mp4", nil
}

type capturingEmitter struct {
	events []string
}

func (e *capturingEmitter) Emit(_ context.Context, event string, _ any) {
	e.events = append(e.events, event)
}

func testNiche() *model.Niche {
	return &model.Niche{
		ID:       "niche-1",
		Name:     "Lifestyle",
		IsActive: true,
		Platforms: map[model.Platform]model.PlatformConfig{
			model.PlatformTikTok: {Enabled: true, Duration: model.DurationRange{Min: 15, Max: 60}},
		},
		Pools: model.RandomizationPools{
			Topics:       []model.PoolItem{{Value: "habits", Weight: 1}, {Value: "sleep", Weight: 1}},
			Hooks:        []model.PoolItem{{Value: "wait for it", Weight: 1}},
			CTAs:         []model.PoolItem{{Value: "follow for more", Weight: 1}},
			VisualStyles: []model.PoolItem{{Value: "cinematic", Weight: 1}},
			MusicMoods:   []model.PoolItem{{Value: "upbeat", Weight: 1}},
		},
		AverageDuration: 30,
	}
}

func testJob() *model.Job {
	return &model.Job{
		ID:             "job-1",
		UserID:         "user-1",
		NicheID:        "niche-1",
		Platform:       model.PlatformTikTok,
		Status:         model.JobQueued,
		Priority:       model.PriorityNormal,
		EstimatedCost:  model.CostBreakdown{ScriptGeneration: 5, ImageGeneration: 12, VideoGeneration: 30, AudioSelection: 2, Assembly: 6, Total: 55},
		CreditsCharged: 55,
		MaxRetries:     3,
		CreatedAt:      time.Now(),
	}
}

type deadLetterRecord struct {
	jobID  string
	reason string
}

type fakeDLQ struct {
	records []deadLetterRecord
}

func (f *fakeDLQ) Record(_ context.Context, _ string, jobID string, _ []byte, reason string) error {
	f.records = append(f.records, deadLetterRecord{jobID: jobID, reason: reason})
	return nil
}

func (f *fakeDLQ) ListDeadLetters(_ context.Context, _ model.DeadLetterStatus, _ int) ([]model.DeadLetterMessage, error) {
	return nil, nil
}

func (f *fakeDLQ) Replay(_ context.Context, _ int64) (*model.DeadLetterMessage, error) {
	return nil, nil
}

func (f *fakeDLQ) Discard(_ context.Context, _ int64) (*model.DeadLetterMessage, error) {
	return nil, nil
}

type fixture struct {
	worker  *Worker
	jobs    *fakeJobs
	credits *fakeCredits
	queue   *fakeQueue
	adapter *fakeAdapter
	store   *fakeStore
	emitter *capturingEmitter
	dlq     *fakeDLQ
}

func newFixture(job *model.Job) *fixture {
	f := &fixture{
		jobs:    newFakeJobs(job),
		credits: &fakeCredits{},
		queue:   newFakeQueue(),
		adapter: newFakeAdapter(),
		store:   &fakeStore{},
		emitter: &capturingEmitter{},
		dlq:     &fakeDLQ{},
	}
	cfg := &config.Config{
		GenerationQueueName:           "generation_queue",
		GenerationDeadLetterQueueName: "generation_queue_dlq",
		GenerationPollTimeoutSec:      1,
		GenerationPollMaxMsg:          1,
		StepBackoffInitialSec:         1,
		StepBackoffMaxSec:             2,
	}
	f.worker = New(f.jobs, &fakeNiches{niche: testNiche()}, f.credits, f.queue, f.adapter, f.store, f.emitter, f.dlq, cfg, zerolog.Nop())
	f.worker.sleep = func(time.Duration) {}
	return f
}

func message(t *testing.T, jobID string) *pgmq.Message {
	t.Helper()
	data, err := json.Marshal(map[string]string{"job_id": jobID})
	require.NoError(t, err)
	return &pgmq.Message{ID: 1, Data: data}
}

func TestHandleMessageCompletesJob(t *testing.T) {
	f := newFixture(testJob())

	f.worker.handleMessage(context.Background(), message(t, "job-1"))

	got, _ := f.jobs.GetJobByID(context.Background(), "job-1")
	require.NotNil(t, got)
	assert.Equal(t, model.JobCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "exports/job-1/final.mp4", got.ExportURL)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Len(t, got.Checkpoints, len(pipeline.Steps))
	assert.NoError(t, pipeline.ValidateCheckpoints(got.Checkpoints))

	assert.Empty(t, f.credits.refunds)
	assert.Equal(t, []int64{1}, f.queue.deleted)
	assert.Empty(t, f.dlq.records)
	assert.Contains(t, f.emitter.events, "job.completed")
}

func TestHandleMessageResumesFromCheckpoints(t *testing.T) {
	job := testJob()
	job.Idea = &model.GeneratedIdea{Topic: "habits", VisualStyle: "cinematic"}
	job.Script = &model.GeneratedScript{Title: "Habits", TotalDuration: 15}
	job.Scenes = []model.Scene{
		{SceneNumber: 1, Duration: 5, ImageURL: "img-1", VideoURL: "v-1", Status: model.SceneCompleted},
		{SceneNumber: 2, Duration: 5, ImageURL: "img-2", VideoURL: "v-2", Status: model.SceneCompleted},
	}
	job.AudioURL = "https://cdn.test/track.mp3"
	for _, step := range pipeline.Steps[:6] {
		job.Checkpoints = append(job.Checkpoints, model.Checkpoint{Step: step.Status, CreatedAt: time.Now()})
	}
	f := newFixture(job)

	f.worker.handleMessage(context.Background(), message(t, "job-1"))

	got, _ := f.jobs.GetJobByID(context.Background(), "job-1")
	assert.Equal(t, model.JobCompleted, got.Status)

	// Checkpointed steps never re-run.
	assert.Zero(t, f.adapter.calls["idea"])
	assert.Zero(t, f.adapter.calls["script"])
	assert.Zero(t, f.adapter.calls["image"])
	assert.Zero(t, f.adapter.calls["video"])
	assert.Zero(t, f.adapter.calls["audio"])
	assert.Equal(t, 1, f.adapter.calls["overlays"])
	assert.Equal(t, 1, f.adapter.calls["assemble"])
	assert.Equal(t, 1, f.store.uploads)
}

func TestHandleMessageFailsAndRefundsOnUnrecoverableError(t *testing.T) {
	f := newFixture(testJob())
	f.adapter.scriptErr = &provider.Error{StatusCode: 400, Body: "bad prompt"}

	f.worker.handleMessage(context.Background(), message(t, "job-1"))

	got, _ := f.jobs.GetJobByID(context.Background(), "job-1")
	assert.Equal(t, model.JobFailed, got.Status)
	require.NotEmpty(t, got.Errors)
	assert.False(t, got.Errors[len(got.Errors)-1].Recoverable)

	// Idea (weight 5) completed, so 95% of the charge comes back.
	require.Len(t, f.credits.refunds, 1)
	assert.Equal(t, 55*95/100, f.credits.refunds[0].amount)
	assert.Equal(t, 55*95/100, got.CreditsRefunded)

	// The failure is recorded as a dead letter and the message is acked.
	require.Len(t, f.dlq.records, 1)
	assert.Equal(t, "job-1", f.dlq.records[0].jobID)
	assert.Equal(t, []int64{1}, f.queue.deleted)
	assert.Contains(t, f.emitter.events, "job.failed")
}

func TestHandleMessageRetriesRecoverableErrorThenSucceeds(t *testing.T) {
	f := newFixture(testJob())
	attempts := 0
	f.adapter.scriptErr = &provider.Error{StatusCode: 503, Body: "overloaded"}
	// Clear the failure after the first attempt records it.
	f.worker.sleep = func(time.Duration) {
		attempts++
		f.adapter.scriptErr = nil
	}

	f.worker.handleMessage(context.Background(), message(t, "job-1"))

	got, _ := f.jobs.GetJobByID(context.Background(), "job-1")
	assert.Equal(t, model.JobCompleted, got.Status)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, got.RetryCount)
	require.NotEmpty(t, got.Errors)
	assert.True(t, got.Errors[0].Recoverable)
	assert.Empty(t, f.credits.refunds)
}

func TestHandleMessageHonorsJobRetryBudget(t *testing.T) {
	job := testJob()
	job.MaxRetries = 1
	f := newFixture(job)
	f.adapter.scriptErr = &provider.Error{StatusCode: 503, Body: "overloaded"}
	sleeps := 0
	f.worker.sleep = func(time.Duration) { sleeps++ }

	f.worker.handleMessage(context.Background(), message(t, "job-1"))

	got, _ := f.jobs.GetJobByID(context.Background(), "job-1")
	assert.Equal(t, model.JobFailed, got.Status)
	assert.Zero(t, sleeps)
	assert.Zero(t, got.RetryCount)
}

func TestHandleMessagePartialWhenOneSceneFails(t *testing.T) {
	f := newFixture(testJob())
	// Script of 15s breaks into 3 scenes; the second scene's animation is
	// rejected outright.
	f.adapter.videoErrOn = "https://cdn.test/img-2"

	f.worker.handleMessage(context.Background(), message(t, "job-1"))

	got, _ := f.jobs.GetJobByID(context.Background(), "job-1")
	assert.Equal(t, model.JobPartial, got.Status)
	assert.Equal(t, 100, got.Progress)

	completed, failed := sceneOutcome(got.Scenes)
	assert.Equal(t, 2, completed)
	assert.Equal(t, 1, failed)

	// One of three scenes failed: a third of the per-scene cost comes back.
	require.Len(t, f.credits.refunds, 1)
	assert.Equal(t, (12+30)*1/3, f.credits.refunds[0].amount)
}

func TestHandleMessageCancelRequested(t *testing.T) {
	job := testJob()
	job.CancelRequested = true
	job.CreditsCharged = 50
	f := newFixture(job)

	f.worker.handleMessage(context.Background(), message(t, "job-1"))

	got, _ := f.jobs.GetJobByID(context.Background(), "job-1")
	assert.Equal(t, model.JobCancelled, got.Status)
	require.Len(t, f.credits.refunds, 1)
	assert.Equal(t, 50, f.credits.refunds[0].amount)
	assert.Equal(t, []int64{1}, f.queue.deleted)
	assert.Zero(t, f.adapter.calls["idea"])
	assert.Contains(t, f.emitter.events, "job.cancelled")
}

func TestHandleMessageSkipsJobFinalizedDuringPickup(t *testing.T) {
	job := testJob()
	f := newFixture(job)

	// A queued-job cancel can land between the worker loading the row and its
	// cooperative-cancel check. The second read returns the finalized row; the
	// worker must not refund again.
	f.jobs.onGet = func(call int, j *model.Job) *model.Job {
		if call != 2 {
			return nil
		}
		done := *j
		done.Status = model.JobCancelled
		done.CancelRequested = true
		done.CreditsRefunded = done.CreditsCharged
		now := time.Now()
		done.CompletedAt = &now
		return &done
	}

	f.worker.handleMessage(context.Background(), message(t, "job-1"))

	got, _ := f.jobs.GetJobByID(context.Background(), "job-1")
	assert.Equal(t, model.JobCancelled, got.Status)
	assert.Equal(t, 55, got.CreditsRefunded)
	assert.Empty(t, f.credits.refunds)
	assert.Zero(t, f.adapter.calls["idea"])
	assert.Equal(t, []int64{1}, f.queue.deleted)
	assert.NotContains(t, f.emitter.events, "job.cancelled")
}

func TestRemainingRefundNeverExceedsHeldCredits(t *testing.T) {
	job := &model.Job{CreditsCharged: 55, CreditsRefunded: 55, Progress: 0}
	assert.Zero(t, remainingRefund(job))

	job = &model.Job{CreditsCharged: 55, CreditsRefunded: 50, Progress: 0}
	assert.Equal(t, 5, remainingRefund(job))
}

func TestHandleMessageDeletesUnknownJob(t *testing.T) {
	f := newFixture(testJob())

	f.worker.handleMessage(context.Background(), message(t, "job-missing"))

	assert.Equal(t, []int64{1}, f.queue.deleted)
	assert.Empty(t, f.dlq.records)
}

func TestHandleMessageDeletesTerminalJob(t *testing.T) {
	job := testJob()
	job.Status = model.JobCompleted
	f := newFixture(job)

	f.worker.handleMessage(context.Background(), message(t, "job-1"))

	assert.Equal(t, []int64{1}, f.queue.deleted)
	assert.Zero(t, f.adapter.calls["idea"])
}

func TestRemainingRefund(t *testing.T) {
	assert.Equal(t, 55, remainingRefund(&model.Job{CreditsCharged: 55, Progress: 0}))
	assert.Equal(t, 27, remainingRefund(&model.Job{CreditsCharged: 55, Progress: 50}))
	assert.Zero(t, remainingRefund(&model.Job{CreditsCharged: 55, Progress: 100}))
}

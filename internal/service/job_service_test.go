package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"app/internal/apierr"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJobs struct {
	jobs        map[string]*model.Job
	activeCount int
	cancelled   []string
	// beforeCancel, when set, runs before a conditional cancel checks the
	// stored row, simulating a concurrent writer.
	beforeCancel func()
}

func newStubJobs(jobs ...*model.Job) *stubJobs {
	m := map[string]*model.Job{}
	for _, j := range jobs {
		cp := *j
		m[j.ID] = &cp
	}
	return &stubJobs{jobs: m}
}

func (s *stubJobs) CreateJob(_ context.Context, j *model.Job) error {
	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

func (s *stubJobs) GetJobByID(_ context.Context, id string) (*model.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (s *stubJobs) ListJobs(_ context.Context, _ string, _ repository.JobFilter, _ int, _ *repository.JobCursor) ([]model.Job, error) {
	return nil, nil
}

func (s *stubJobs) CountActiveJobs(_ context.Context, _ string) (int, error) {
	return s.activeCount, nil
}

func (s *stubJobs) QueueDepthBefore(_ context.Context, _ model.JobPriority, _ time.Time) (int, error) {
	return 2, nil
}

func (s *stubJobs) UpdateJob(_ context.Context, j *model.Job) error {
	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

func (s *stubJobs) RequestCancel(_ context.Context, jobID string) error {
	s.cancelled = append(s.cancelled, jobID)
	s.jobs[jobID].CancelRequested = true
	return nil
}

func (s *stubJobs) CancelIfNotStarted(_ context.Context, j *model.Job) (bool, error) {
	if s.beforeCancel != nil {
		s.beforeCancel()
	}
	stored, ok := s.jobs[j.ID]
	if !ok || (stored.Status != model.JobPending && stored.Status != model.JobQueued) {
		return false, nil
	}
	cp := *j
	s.jobs[j.ID] = &cp
	return true, nil
}

type stubNiches struct {
	niche *model.Niche
}

func (s *stubNiches) GetNicheByID(_ context.Context, id string) (*model.Niche, error) {
	if s.niche == nil || s.niche.ID != id {
		return nil, nil
	}
	cp := *s.niche
	return &cp, nil
}

func (s *stubNiches) ListNiches(_ context.Context, _ model.NicheCategory, _ model.Platform, _ int, _ *string) ([]model.Niche, error) {
	return nil, nil
}

func (s *stubNiches) UpdateNiche(_ context.Context, _ *model.Niche, _ []byte) error { return nil }

func (s *stubNiches) TouchPools(_ context.Context, _ string, _ model.RandomizationPools) error {
	return nil
}

type stubUsers struct {
	users map[string]*model.User
}

func (s *stubUsers) CreateUser(_ context.Context, u *model.User) error {
	s.users[u.UserID] = u
	return nil
}

func (s *stubUsers) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *stubUsers) GetUserByStripeCustomerID(_ context.Context, _ string) (*model.User, error) {
	return nil, nil
}

func (s *stubUsers) UpdateStripeCustomerID(_ context.Context, _, _ string) error { return nil }

func (s *stubUsers) UpdateRole(_ context.Context, _ string, _ model.Role) error { return nil }

func (s *stubUsers) UpdateStatus(_ context.Context, _ string, _ model.UserStatus) error { return nil }

func (s *stubUsers) UpdatePreferences(_ context.Context, _ string, _ model.UserPreferences) error {
	return nil
}

type ledgerCall struct {
	jobID  string
	amount int
}

type stubCredits struct {
	charges []ledgerCall
	refunds []ledgerCall
}

func (s *stubCredits) ChargeCredits(_ context.Context, _, jobID string, amount int, _ string) (*model.CreditTransaction, error) {
	s.charges = append(s.charges, ledgerCall{jobID: jobID, amount: amount})
	return &model.CreditTransaction{}, nil
}

func (s *stubCredits) RefundCredits(_ context.Context, _, jobID string, amount int, _ string) (*model.CreditTransaction, error) {
	s.refunds = append(s.refunds, ledgerCall{jobID: jobID, amount: amount})
	return &model.CreditTransaction{}, nil
}

func (s *stubCredits) GrantCredits(_ context.Context, _ string, _ model.TransactionType, _ int, _ string) (*model.CreditTransaction, error) {
	return &model.CreditTransaction{}, nil
}

func (s *stubCredits) GetBalance(_ context.Context, _ string) (*model.CreditBalance, error) {
	return nil, nil
}

func (s *stubCredits) ListTransactions(_ context.Context, _ string, _ int) ([]model.CreditTransaction, error) {
	return nil, nil
}

func (s *stubCredits) GetCreditPackageByID(_ context.Context, _ string) (*model.CreditPackage, error) {
	return nil, nil
}

func (s *stubCredits) ListCreditPackages(_ context.Context) ([]model.CreditPackage, error) {
	return nil, nil
}

type stubQueue struct {
	sent    [][]byte
	sendErr error
}

func (s *stubQueue) Send(_ context.Context, _ string, payload []byte) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, payload)
	return nil
}

type recordingEmitter struct {
	events []string
}

func (e *recordingEmitter) Emitted(event string) bool {
	for _, got := range e.events {
		if got == event {
			return true
		}
	}
	return false
}

func (e *recordingEmitter) Emit(_ context.Context, event string, _ any) {
	e.events = append(e.events, event)
}

func activeNiche() *model.Niche {
	return &model.Niche{
		ID:              "niche-1",
		Name:            "Lifestyle",
		IsActive:        true,
		AverageDuration: 30,
		Platforms: map[model.Platform]model.PlatformConfig{
			model.PlatformTikTok: {Enabled: true, Duration: model.DurationRange{Min: 15, Max: 60}},
		},
		EstimatedCreditCost: 21,
	}
}

func activeUser(role model.Role, credits int) *model.User {
	return &model.User{
		UserID:  "user-1",
		Email:   "u@example.com",
		Role:    role,
		Status:  model.UserActive,
		Credits: credits,
	}
}

type svcFixture struct {
	svc     JobService
	jobs    *stubJobs
	users   *stubUsers
	credits *stubCredits
	queue   *stubQueue
	emitter *recordingEmitter
}

func newSvcFixture(user *model.User, jobs ...*model.Job) *svcFixture {
	f := &svcFixture{
		jobs:    newStubJobs(jobs...),
		users:   &stubUsers{users: map[string]*model.User{user.UserID: user}},
		credits: &stubCredits{},
		queue:   &stubQueue{},
		emitter: &recordingEmitter{},
	}
	f.svc = NewJobService(f.jobs, &stubNiches{niche: activeNiche()}, f.users, f.credits, f.queue, "generation_queue", f.emitter, zerolog.Nop())
	return f
}

func TestCreateJobChargesAndEnqueues(t *testing.T) {
	f := newSvcFixture(activeUser(model.RolePro, 100))

	job, estimate, queuePos, eta, err := f.svc.CreateJob(context.Background(), "user-1", "niche-1", model.PlatformTikTok, model.JobOptions{})
	require.NoError(t, err)

	// 30s at one scene per 5s: 1 script + 6 images + 12 video + 1 audio + 1 assembly.
	assert.Equal(t, 21, estimate.TotalCredits)
	assert.Equal(t, model.JobQueued, job.Status)
	assert.Equal(t, model.PriorityHigh, job.Priority)
	assert.Equal(t, 21, job.CreditsCharged)
	assert.Equal(t, 2, queuePos)
	assert.Greater(t, eta, 0)

	require.Len(t, f.credits.charges, 1)
	assert.Equal(t, ledgerCall{jobID: job.ID, amount: 21}, f.credits.charges[0])
	assert.Len(t, f.queue.sent, 1)
	assert.True(t, f.emitter.Emitted("job.created"))
	assert.True(t, f.emitter.Emitted("credits.charged"))
}

func TestCreateJobInsufficientCredits(t *testing.T) {
	f := newSvcFixture(activeUser(model.RoleFree, 3))

	_, _, _, _, err := f.svc.CreateJob(context.Background(), "user-1", "niche-1", model.PlatformTikTok, model.JobOptions{})

	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.CodeInsufficientCredits, apiErr.Code)
	assert.Empty(t, f.credits.charges)
	assert.Empty(t, f.queue.sent)
	assert.Empty(t, f.jobs.jobs)
}

func TestCreateJobConcurrencyLimit(t *testing.T) {
	f := newSvcFixture(activeUser(model.RoleFree, 100))
	f.jobs.activeCount = 1 // free tier allows one active job

	_, _, _, _, err := f.svc.CreateJob(context.Background(), "user-1", "niche-1", model.PlatformTikTok, model.JobOptions{})

	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.CodeMaxConcurrentJobs, apiErr.Code)
	assert.Empty(t, f.credits.charges)
}

func TestCreateJobPlatformNotOnPlan(t *testing.T) {
	f := newSvcFixture(activeUser(model.RoleFree, 100))
	f.jobs.activeCount = 0
	niche := activeNiche()
	niche.Platforms[model.PlatformInstagramReels] = model.PlatformConfig{Enabled: true}
	f.svc = NewJobService(f.jobs, &stubNiches{niche: niche}, f.users, f.credits, f.queue, "generation_queue", f.emitter, zerolog.Nop())

	_, _, _, _, err := f.svc.CreateJob(context.Background(), "user-1", "niche-1", model.PlatformInstagramReels, model.JobOptions{})

	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.CodeSubscriptionRequired, apiErr.Code)
}

func TestCreateJobRefundsWhenEnqueueFails(t *testing.T) {
	f := newSvcFixture(activeUser(model.RolePro, 100))
	f.queue.sendErr = errors.New("queue down")

	_, _, _, _, err := f.svc.CreateJob(context.Background(), "user-1", "niche-1", model.PlatformTikTok, model.JobOptions{})

	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.CodeServiceUnavailable, apiErr.Code)

	require.Len(t, f.credits.charges, 1)
	require.Len(t, f.credits.refunds, 1)
	assert.Equal(t, f.credits.charges[0].amount, f.credits.refunds[0].amount)

	// The job row survives as failed for auditability.
	for _, j := range f.jobs.jobs {
		assert.Equal(t, model.JobFailed, j.Status)
		assert.Equal(t, 21, j.CreditsRefunded)
	}
}

func TestGetJobHidesOtherUsersJobs(t *testing.T) {
	owner := activeUser(model.RolePro, 100)
	f := newSvcFixture(owner, &model.Job{ID: "job-1", UserID: "someone-else", Status: model.JobQueued})

	_, err := f.svc.GetJob(context.Background(), "user-1", "job-1")

	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.CodeJobNotFound, apiErr.Code)
}

func TestGetJobAdminSeesAll(t *testing.T) {
	admin := activeUser(model.RoleAdmin, 0)
	f := newSvcFixture(admin, &model.Job{ID: "job-1", UserID: "someone-else", Status: model.JobQueued})

	job, err := f.svc.GetJob(context.Background(), "user-1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", job.UserID)
}

func TestCancelQueuedJobRefundsInFull(t *testing.T) {
	user := activeUser(model.RolePro, 100)
	f := newSvcFixture(user, &model.Job{ID: "job-1", UserID: "user-1", Status: model.JobQueued, CreditsCharged: 21})

	job, refunded, err := f.svc.CancelJob(context.Background(), "user-1", "job-1")
	require.NoError(t, err)

	assert.Equal(t, model.JobCancelled, job.Status)
	assert.Equal(t, 21, refunded)
	require.Len(t, f.credits.refunds, 1)
	assert.Equal(t, 21, f.credits.refunds[0].amount)
	assert.True(t, f.emitter.Emitted("job.cancelled"))
}

func TestCancelRunningJobOnlySetsFlag(t *testing.T) {
	user := activeUser(model.RolePro, 100)
	f := newSvcFixture(user, &model.Job{ID: "job-1", UserID: "user-1", Status: model.JobVideoGeneration, CreditsCharged: 21})

	job, refunded, err := f.svc.CancelJob(context.Background(), "user-1", "job-1")
	require.NoError(t, err)

	// The worker finalizes and refunds; nothing happens here.
	assert.True(t, job.CancelRequested)
	assert.Zero(t, refunded)
	assert.Empty(t, f.credits.refunds)
	assert.Equal(t, []string{"job-1"}, f.jobs.cancelled)
}

func TestCancelQueuedJobLostToWorkerFallsBackToFlag(t *testing.T) {
	user := activeUser(model.RolePro, 100)
	f := newSvcFixture(user, &model.Job{ID: "job-1", UserID: "user-1", Status: model.JobQueued, CreditsCharged: 21})
	// The worker picks the job up between the read and the conditional update.
	f.jobs.beforeCancel = func() {
		f.jobs.jobs["job-1"].Status = model.JobScriptGeneration
	}

	job, refunded, err := f.svc.CancelJob(context.Background(), "user-1", "job-1")
	require.NoError(t, err)

	assert.True(t, job.CancelRequested)
	assert.Zero(t, refunded)
	assert.Empty(t, f.credits.refunds)
	assert.Equal(t, []string{"job-1"}, f.jobs.cancelled)
	assert.False(t, f.emitter.Emitted("credits.refunded"))
}

func TestCancelQueuedJobAlreadyFinalizedElsewhere(t *testing.T) {
	user := activeUser(model.RolePro, 100)
	f := newSvcFixture(user, &model.Job{ID: "job-1", UserID: "user-1", Status: model.JobQueued, CreditsCharged: 21})
	f.jobs.beforeCancel = func() {
		stored := f.jobs.jobs["job-1"]
		stored.Status = model.JobCancelled
		stored.CreditsRefunded = 21
	}

	_, _, err := f.svc.CancelJob(context.Background(), "user-1", "job-1")

	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.CodeJobAlreadyCompleted, apiErr.Code)
	assert.Empty(t, f.credits.refunds)
}

func TestCancelFinishedJobRejected(t *testing.T) {
	user := activeUser(model.RolePro, 100)
	f := newSvcFixture(user, &model.Job{ID: "job-1", UserID: "user-1", Status: model.JobCompleted})

	_, _, err := f.svc.CancelJob(context.Background(), "user-1", "job-1")

	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.CodeJobAlreadyCompleted, apiErr.Code)
}

func TestRetryJobChargesOnlyRemainingWork(t *testing.T) {
	user := activeUser(model.RolePro, 100)
	parent := &model.Job{
		ID:       "job-1",
		UserID:   "user-1",
		NicheID:  "niche-1",
		Platform: model.PlatformTikTok,
		Status:   model.JobFailed,
		EstimatedCost: model.CostBreakdown{
			ScriptGeneration: 1, ImageGeneration: 6, VideoGeneration: 12,
			AudioSelection: 1, Assembly: 1, Total: 21,
		},
		Idea:   &model.GeneratedIdea{Topic: "habits"},
		Script: &model.GeneratedScript{Title: "Habits"},
		Checkpoints: []model.Checkpoint{
			{Step: model.JobIdeaGeneration},
			{Step: model.JobScriptGeneration},
			{Step: model.JobSceneBreakdown},
			{Step: model.JobImageGeneration},
		},
		Scenes: []model.Scene{
			{SceneNumber: 1, ImageURL: "img-1", Status: model.SceneCompleted},
			{SceneNumber: 2, ImageURL: "img-2", Status: model.SceneFailed, Error: "boom"},
		},
		MaxRetries: 3,
	}
	f := newSvcFixture(user, parent)

	retry, err := f.svc.RetryJob(context.Background(), "user-1", "job-1")
	require.NoError(t, err)

	// Script and images are checkpointed; video + audio + assembly remain.
	require.Len(t, f.credits.charges, 1)
	assert.Equal(t, 12+1+1, f.credits.charges[0].amount)
	assert.Equal(t, 14, retry.CreditsCharged)

	require.NotNil(t, retry.ParentJobID)
	assert.Equal(t, "job-1", *retry.ParentJobID)
	assert.Equal(t, model.JobQueued, retry.Status)
	assert.Equal(t, parent.Idea, retry.Idea)
	assert.Len(t, retry.Checkpoints, 4)

	// Failed scenes are reset for regeneration, completed ones kept.
	assert.Equal(t, model.SceneCompleted, retry.Scenes[0].Status)
	assert.Equal(t, model.ScenePending, retry.Scenes[1].Status)
	assert.Empty(t, retry.Scenes[1].ImageURL)
	assert.Empty(t, retry.Scenes[1].Error)
	assert.Len(t, f.queue.sent, 1)
}

func TestRetryRequiresFailedOrPartial(t *testing.T) {
	user := activeUser(model.RolePro, 100)
	f := newSvcFixture(user, &model.Job{ID: "job-1", UserID: "user-1", Status: model.JobCompleted})

	_, err := f.svc.RetryJob(context.Background(), "user-1", "job-1")

	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierr.CodeConflict, apiErr.Code)
}

func TestRemainingChargeSkipsCheckpointedSteps(t *testing.T) {
	cost := model.CostBreakdown{ScriptGeneration: 1, ImageGeneration: 6, VideoGeneration: 12, AudioSelection: 1, Assembly: 1, Total: 21}

	assert.Equal(t, 21, RemainingCharge(cost, nil))
	assert.Equal(t, 20, RemainingCharge(cost, []model.Checkpoint{{Step: model.JobScriptGeneration}}))
	// Assembly is always redone, even when everything else is checkpointed.
	assert.Equal(t, 1, RemainingCharge(cost, []model.Checkpoint{
		{Step: model.JobScriptGeneration},
		{Step: model.JobImageGeneration},
		{Step: model.JobVideoGeneration},
		{Step: model.JobAudioSelection},
	}))
}

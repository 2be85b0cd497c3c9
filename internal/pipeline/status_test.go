package pipeline

import (
	"testing"
	"time"

	"app/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransitionForwardOrder(t *testing.T) {
	assert.NoError(t, ValidateTransition(model.JobPending, model.JobQueued, nil))
	assert.NoError(t, ValidateTransition(model.JobQueued, model.JobIdeaGeneration, nil))
	assert.NoError(t, ValidateTransition(model.JobIdeaGeneration, model.JobScriptGeneration, nil))
	// Skipping ahead is allowed (resume from checkpoint).
	assert.NoError(t, ValidateTransition(model.JobQueued, model.JobVideoAssembly, nil))
}

func TestValidateTransitionRejectsRegression(t *testing.T) {
	err := ValidateTransition(model.JobVideoGeneration, model.JobIdeaGeneration, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStatusRegression)
}

func TestValidateTransitionSideExits(t *testing.T) {
	for _, from := range []model.JobStatus{model.JobPending, model.JobQueued, model.JobImageGeneration, model.JobExporting} {
		assert.NoError(t, ValidateTransition(from, model.JobFailed, nil), "from %s", from)
		assert.NoError(t, ValidateTransition(from, model.JobCancelled, nil), "from %s", from)
	}
}

func TestValidateTransitionTerminalIsFinal(t *testing.T) {
	for _, from := range []model.JobStatus{model.JobCompleted, model.JobPartial, model.JobFailed, model.JobCancelled} {
		err := ValidateTransition(from, model.JobQueued, nil)
		assert.ErrorIs(t, err, ErrTerminalStatus, "from %s", from)
	}
}

func TestValidateTransitionPartialNeedsMixedScenes(t *testing.T) {
	mixed := []model.Scene{
		{SceneNumber: 1, Status: model.SceneCompleted},
		{SceneNumber: 2, Status: model.SceneFailed},
	}
	assert.NoError(t, ValidateTransition(model.JobVideoGeneration, model.JobPartial, mixed))

	allDone := []model.Scene{
		{SceneNumber: 1, Status: model.SceneCompleted},
		{SceneNumber: 2, Status: model.SceneCompleted},
	}
	assert.ErrorIs(t, ValidateTransition(model.JobVideoGeneration, model.JobPartial, allDone), ErrPartialRequiresMixedScenes)

	allFailed := []model.Scene{
		{SceneNumber: 1, Status: model.SceneFailed},
	}
	assert.ErrorIs(t, ValidateTransition(model.JobVideoGeneration, model.JobPartial, allFailed), ErrPartialRequiresMixedScenes)
}

func TestValidateTransitionProcessingHasNoPosition(t *testing.T) {
	// The coarse "processing" status is vestigial; it orders like queued.
	assert.NoError(t, ValidateTransition(model.JobProcessing, model.JobIdeaGeneration, nil))
}

func TestValidateProgress(t *testing.T) {
	assert.NoError(t, ValidateProgress(model.JobImageGeneration, 30, 45))
	assert.NoError(t, ValidateProgress(model.JobImageGeneration, 30, 30))
	assert.Error(t, ValidateProgress(model.JobImageGeneration, 45, 30))
	assert.Error(t, ValidateProgress(model.JobQueued, 0, 120))
	// A terminal job may report a lower figure (partial).
	assert.NoError(t, ValidateProgress(model.JobPartial, 90, 80))
}

func TestValidateCheckpointsStrictlyIncreasing(t *testing.T) {
	now := time.Now()
	good := []model.Checkpoint{
		{Step: model.JobIdeaGeneration, CreatedAt: now},
		{Step: model.JobScriptGeneration, CreatedAt: now},
		{Step: model.JobImageGeneration, CreatedAt: now},
	}
	assert.NoError(t, ValidateCheckpoints(good))

	repeated := append(good, model.Checkpoint{Step: model.JobImageGeneration, CreatedAt: now})
	assert.Error(t, ValidateCheckpoints(repeated))

	outOfOrder := []model.Checkpoint{
		{Step: model.JobScriptGeneration, CreatedAt: now},
		{Step: model.JobIdeaGeneration, CreatedAt: now},
	}
	assert.Error(t, ValidateCheckpoints(outOfOrder))
}

func TestAppendCheckpoint(t *testing.T) {
	now := time.Now()
	cps, err := AppendCheckpoint(nil, model.Checkpoint{Step: model.JobIdeaGeneration, CreatedAt: now})
	require.NoError(t, err)
	cps, err = AppendCheckpoint(cps, model.Checkpoint{Step: model.JobScriptGeneration, CreatedAt: now})
	require.NoError(t, err)

	_, err = AppendCheckpoint(cps, model.Checkpoint{Step: model.JobIdeaGeneration, CreatedAt: now})
	assert.Error(t, err)
}

func TestStepTableWeightsSumTo100(t *testing.T) {
	total := 0
	for _, s := range Steps {
		total += s.Weight
	}
	assert.Equal(t, 100, total)
}

func TestProgressAt(t *testing.T) {
	assert.Equal(t, 0, ProgressAt(model.JobIdeaGeneration))
	assert.Equal(t, 100, ProgressAt(model.JobCompleted))
	first := ProgressAt(model.JobScriptGeneration)
	later := ProgressAt(model.JobExporting)
	assert.Greater(t, later, first)
}

func TestNextStep(t *testing.T) {
	next, ok := NextStep(model.JobQueued)
	require.True(t, ok)
	assert.Equal(t, model.JobIdeaGeneration, next.Status)

	next, ok = NextStep(model.JobIdeaGeneration)
	require.True(t, ok)
	assert.Equal(t, model.JobScriptGeneration, next.Status)

	_, ok = NextStep(model.JobExporting)
	assert.False(t, ok)
}

package pipeline

import (
	"errors"
	"fmt"

	"app/internal/model"
)

var (
	// ErrStatusRegression marks a transition that would move a job backward
	// in pipeline order.
	ErrStatusRegression = errors.New("status regression")
	// ErrTerminalStatus marks a transition out of a terminal status.
	ErrTerminalStatus = errors.New("job already terminal")
	// ErrPartialRequiresMixedScenes marks a partial transition without both a
	// completed and a failed scene.
	ErrPartialRequiresMixedScenes = errors.New("partial requires at least one completed and one failed scene")
	// ErrProgressRegression marks a progress update below the current value
	// while the job is still non-terminal.
	ErrProgressRegression = errors.New("progress regression")
)

// ValidateTransition checks a status update against the forward-order rules:
// positions only increase, side exits to failed/cancelled are allowed from any
// non-terminal state, and partial needs a mixed scene outcome.
func ValidateTransition(from, to model.JobStatus, scenes []model.Scene) error {
	if IsTerminal(from) {
		return fmt.Errorf("%w: %s", ErrTerminalStatus, from)
	}
	switch to {
	case model.JobFailed, model.JobCancelled:
		return nil
	case model.JobPartial:
		completed, failed := 0, 0
		for _, sc := range scenes {
			switch sc.Status {
			case model.SceneCompleted:
				completed++
			case model.SceneFailed:
				failed++
			}
		}
		if completed == 0 || failed == 0 {
			return ErrPartialRequiresMixedScenes
		}
		return nil
	case model.JobCompleted:
		return nil
	}

	fromPos, ok := Position(from)
	if !ok {
		// The coarse "processing" status carries no position; treat it as
		// queued for ordering purposes.
		fromPos = 1
	}
	toPos, ok := Position(to)
	if !ok {
		return fmt.Errorf("unknown status %q", to)
	}
	if toPos < fromPos {
		return fmt.Errorf("%w: %s -> %s", ErrStatusRegression, from, to)
	}
	return nil
}

// ValidateProgress enforces the non-decreasing 0-100 progress contract for
// non-terminal jobs.
func ValidateProgress(status model.JobStatus, current, next int) error {
	if next < 0 || next > 100 {
		return fmt.Errorf("progress %d out of range", next)
	}
	if !IsTerminal(status) && next < current {
		return fmt.Errorf("%w: %d -> %d", ErrProgressRegression, current, next)
	}
	return nil
}

// ValidateCheckpoints verifies the checkpoint sequence is strictly increasing
// in pipeline order with no repeated steps.
func ValidateCheckpoints(checkpoints []model.Checkpoint) error {
	last := -1
	for _, cp := range checkpoints {
		pos, ok := Position(cp.Step)
		if !ok {
			return fmt.Errorf("checkpoint step %q is not a pipeline step", cp.Step)
		}
		if pos <= last {
			return fmt.Errorf("checkpoint steps not strictly increasing at %q", cp.Step)
		}
		last = pos
	}
	return nil
}

// AppendCheckpoint adds a checkpoint for step, rejecting out-of-order or
// duplicate entries.
func AppendCheckpoint(checkpoints []model.Checkpoint, cp model.Checkpoint) ([]model.Checkpoint, error) {
	next := append(append([]model.Checkpoint{}, checkpoints...), cp)
	if err := ValidateCheckpoints(next); err != nil {
		return nil, err
	}
	return next, nil
}

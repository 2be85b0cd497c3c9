// Package pipeline declares the generation step order and the client-visible
// status projection rules built on top of it.
package pipeline

import (
	"time"

	"app/internal/model"
)

// StepDef describes one pipeline step: its position, progress weight, per-step
// timeout and retry budget.
type StepDef struct {
	Status     model.JobStatus
	Name       string
	Weight     int // share of overall progress, sums to 100 across steps
	Timeout    time.Duration
	MaxRetries int
	// PerScene marks steps that fan out over scenes and may partially fail.
	PerScene bool
}

// Steps is the ordered step table. Status transitions must follow this order;
// progress is the cumulative weight of completed steps.
var Steps = []StepDef{
	{Status: model.JobIdeaGeneration, Name: "idea_generation", Weight: 5, Timeout: 60 * time.Second, MaxRetries: 3},
	{Status: model.JobScriptGeneration, Name: "script_generation", Weight: 10, Timeout: 120 * time.Second, MaxRetries: 3},
	{Status: model.JobSceneBreakdown, Name: "scene_breakdown", Weight: 5, Timeout: 30 * time.Second, MaxRetries: 2},
	{Status: model.JobImageGeneration, Name: "image_generation", Weight: 20, Timeout: 300 * time.Second, MaxRetries: 3, PerScene: true},
	{Status: model.JobVideoGeneration, Name: "video_generation", Weight: 30, Timeout: 600 * time.Second, MaxRetries: 3, PerScene: true},
	{Status: model.JobAudioSelection, Name: "audio_selection", Weight: 5, Timeout: 60 * time.Second, MaxRetries: 2},
	{Status: model.JobTextOverlay, Name: "text_overlay", Weight: 5, Timeout: 120 * time.Second, MaxRetries: 2},
	{Status: model.JobVideoAssembly, Name: "video_assembly", Weight: 10, Timeout: 300 * time.Second, MaxRetries: 2},
	{Status: model.JobPlatformFormatting, Name: "platform_formatting", Weight: 5, Timeout: 120 * time.Second, MaxRetries: 2},
	{Status: model.JobExporting, Name: "exporting", Weight: 5, Timeout: 180 * time.Second, MaxRetries: 3},
}

// position maps every status to its pipeline position. Terminal statuses and
// the vestigial coarse "processing" status have no position.
var position = func() map[model.JobStatus]int {
	m := map[model.JobStatus]int{
		model.JobPending: 0,
		model.JobQueued:  1,
	}
	for i, s := range Steps {
		m[s.Status] = i + 2
	}
	return m
}()

// Position returns the forward-order position of a status and whether the
// status occupies one. Terminal statuses do not.
func Position(s model.JobStatus) (int, bool) {
	p, ok := position[s]
	return p, ok
}

// StepFor returns the step definition for a status.
func StepFor(s model.JobStatus) (StepDef, bool) {
	for _, def := range Steps {
		if def.Status == s {
			return def, true
		}
	}
	return StepDef{}, false
}

// NextStep returns the step following s, or false when s is the last step or
// not a step at all. From queued the first step is next.
func NextStep(s model.JobStatus) (StepDef, bool) {
	if s == model.JobPending || s == model.JobQueued {
		return Steps[0], true
	}
	for i, def := range Steps {
		if def.Status == s {
			if i+1 < len(Steps) {
				return Steps[i+1], true
			}
			return StepDef{}, false
		}
	}
	return StepDef{}, false
}

// IsTerminal reports whether a status admits no further transitions.
// Partial is terminal but recoverable through a new linked job.
func IsTerminal(s model.JobStatus) bool {
	switch s {
	case model.JobCompleted, model.JobPartial, model.JobFailed, model.JobCancelled:
		return true
	}
	return false
}

// ProgressAt returns the cumulative progress percentage when the given step
// status has been reached (all prior steps complete).
func ProgressAt(s model.JobStatus) int {
	total := 0
	for _, def := range Steps {
		if def.Status == s {
			return total
		}
		total += def.Weight
	}
	if IsTerminal(s) {
		return 100
	}
	return 0
}

package dto

import (
	"time"

	"app/internal/model"
)

// JobCreateDTO is the body for POST /jobs and POST /jobs/estimate.
type JobCreateDTO struct {
	NicheID  string         `json:"niche_id" validate:"required"`
	Platform model.Platform `json:"platform" validate:"required,oneof=tiktok youtube_shorts instagram_reels instagram_stories"`
	Options  JobOptionsDTO  `json:"options"`
}

type JobOptionsDTO struct {
	Resolution    string   `json:"resolution,omitempty" validate:"omitempty,oneof=720p 1080p 4K"`
	Duration      int      `json:"duration,omitempty" validate:"omitempty,min=5,max=180"`
	CustomTopic   string   `json:"custom_topic,omitempty" validate:"omitempty,max=200"`
	ExcludeTopics []string `json:"exclude_topics,omitempty" validate:"omitempty,max=20"`
	VisualStyle   string   `json:"visual_style,omitempty" validate:"omitempty,max=100"`
}

func (d JobOptionsDTO) ToModel() model.JobOptions {
	return model.JobOptions{
		Resolution:    d.Resolution,
		Duration:      d.Duration,
		CustomTopic:   d.CustomTopic,
		ExcludeTopics: d.ExcludeTopics,
		VisualStyle:   d.VisualStyle,
	}
}

// JobCreateResponseDTO is returned by POST /jobs.
type JobCreateResponseDTO struct {
	Job                  *model.Job `json:"job"`
	EstimatedCredits     int        `json:"estimated_credits"`
	EstimatedTimeSeconds int        `json:"estimated_time_seconds"`
	QueuePosition        int        `json:"queue_position"`
}

// JobStatusResponseDTO is the lightweight polling payload for
// GET /jobs/{jobId}/status.
type JobStatusResponseDTO struct {
	JobID                  string           `json:"job_id"`
	Status                 model.JobStatus  `json:"status"`
	Progress               int              `json:"progress"`
	Scenes                 []SceneStatusDTO `json:"scenes,omitempty"`
	EstimatedTimeRemaining int              `json:"estimated_time_remaining"`
	CreditsCharged         int              `json:"credits_charged"`
}

type SceneStatusDTO struct {
	SceneNumber int               `json:"scene_number"`
	Status      model.SceneStatus `json:"status"`
	ImageURL    string            `json:"image_url,omitempty"`
	VideoURL    string            `json:"video_url,omitempty"`
}

// JobListFilterDTO filters GET /jobs.
type JobListFilterDTO struct {
	Status   model.JobStatus `json:"status,omitempty"`
	NicheID  string          `json:"niche_id,omitempty"`
	Platform model.Platform  `json:"platform,omitempty"`
	From     *time.Time      `json:"from,omitempty"`
	To       *time.Time      `json:"to,omitempty"`
}

// JobCancelResponseDTO is returned by POST /jobs/{jobId}/cancel.
type JobCancelResponseDTO struct {
	Job             *model.Job `json:"job"`
	CreditsRefunded int        `json:"credits_refunded"`
}

// JobRetryResponseDTO is returned by POST /jobs/{jobId}/retry.
type JobRetryResponseDTO struct {
	NewJob        *model.Job `json:"new_job"`
	OriginalJobID string     `json:"original_job_id"`
}

// EstimateResponseDTO is returned by POST /jobs/estimate.
type EstimateResponseDTO struct {
	Estimate model.CreditEstimate `json:"estimate"`
}

package model

import "time"

// JobStatus is the client-visible pipeline position of a job. Non-terminal
// statuses advance strictly forward in the order declared by the pipeline
// package; failed/cancelled are reachable from any non-terminal state and
// partial only after a mixed scene outcome.
type JobStatus string

const (
	JobPending            JobStatus = "pending"
	JobQueued             JobStatus = "queued"
	JobProcessing         JobStatus = "processing" // accepted on input, never written by this backend
	JobIdeaGeneration     JobStatus = "idea_generation"
	JobScriptGeneration   JobStatus = "script_generation"
	JobSceneBreakdown     JobStatus = "scene_breakdown"
	JobImageGeneration    JobStatus = "image_generation"
	JobVideoGeneration    JobStatus = "video_generation"
	JobAudioSelection     JobStatus = "audio_selection"
	JobTextOverlay        JobStatus = "text_overlay"
	JobVideoAssembly      JobStatus = "video_assembly"
	JobPlatformFormatting JobStatus = "platform_formatting"
	JobExporting          JobStatus = "exporting"
	JobCompleted          JobStatus = "completed"
	JobPartial            JobStatus = "partial"
	JobFailed             JobStatus = "failed"
	JobCancelled          JobStatus = "cancelled"
)

type JobPriority int

const (
	PriorityLow    JobPriority = 0
	PriorityNormal JobPriority = 5
	PriorityHigh   JobPriority = 10
	PriorityUrgent JobPriority = 15
)

// Job is one end-to-end video generation request and its accumulated state.
// Rows are created by the API on submission and mutated only by the worker as
// steps complete.
type Job struct {
	ID              string           `db:"id" json:"id"`
	UserID          string           `db:"user_id" json:"user_id"`
	NicheID         string           `db:"niche_id" json:"niche_id"`
	ParentJobID     *string          `db:"parent_job_id" json:"parent_job_id,omitempty"`
	Platform        Platform         `db:"platform" json:"platform"`
	Status          JobStatus        `db:"status" json:"status"`
	Progress        int              `db:"progress" json:"progress"`
	Priority        JobPriority      `db:"priority" json:"priority"`
	Options         JobOptions       `db:"options" json:"options"`
	Idea            *GeneratedIdea   `db:"idea" json:"idea,omitempty"`
	Script          *GeneratedScript `db:"script" json:"script,omitempty"`
	Scenes          []Scene          `db:"scenes" json:"scenes"`
	AudioURL        string           `db:"audio_url" json:"audio_url,omitempty"`
	FinalVideoURL   string           `db:"final_video_url" json:"final_video_url,omitempty"`
	ExportURL       string           `db:"export_url" json:"export_url,omitempty"`
	EstimatedCost   CostBreakdown    `db:"estimated_cost" json:"estimated_cost"`
	ActualCost      CostBreakdown    `db:"actual_cost" json:"actual_cost"`
	CreditsCharged  int              `db:"credits_charged" json:"credits_charged"`
	CreditsRefunded int              `db:"credits_refunded" json:"credits_refunded"`
	Checkpoints     []Checkpoint     `db:"checkpoints" json:"checkpoints"`
	Errors          []JobError       `db:"errors" json:"errors"`
	RetryCount      int              `db:"retry_count" json:"retry_count"`
	MaxRetries      int              `db:"max_retries" json:"max_retries"`
	CancelRequested bool             `db:"cancel_requested" json:"cancel_requested"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
	StartedAt       *time.Time       `db:"started_at" json:"started_at,omitempty"`
	CompletedAt     *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
}

// JobOptions are the caller-supplied overrides for a generation request.
type JobOptions struct {
	Resolution    string   `json:"resolution,omitempty"`
	Duration      int      `json:"duration,omitempty"`
	CustomTopic   string   `json:"custom_topic,omitempty"`
	ExcludeTopics []string `json:"exclude_topics,omitempty"`
	VisualStyle   string   `json:"visual_style,omitempty"`
}

type SceneStatus string

const (
	ScenePending    SceneStatus = "pending"
	SceneProcessing SceneStatus = "processing"
	SceneCompleted  SceneStatus = "completed"
	SceneFailed     SceneStatus = "failed"
)

// Scene is one narrated/visual segment of a job's script, independently
// retryable.
type Scene struct {
	SceneNumber       int         `json:"scene_number"`
	Duration          float64     `json:"duration"`
	Narration         string      `json:"narration"`
	VisualDescription string      `json:"visual_description"`
	TextOverlay       string      `json:"text_overlay,omitempty"`
	Transition        string      `json:"transition"`
	ImagePrompt       string      `json:"image_prompt,omitempty"`
	ImageURL          string      `json:"image_url,omitempty"`
	VideoPrompt       string      `json:"video_prompt,omitempty"`
	VideoURL          string      `json:"video_url,omitempty"`
	Status            SceneStatus `json:"status"`
	Error             string      `json:"error,omitempty"`
}

type GeneratedIdea struct {
	Topic         string `json:"topic"`
	Hook          string `json:"hook"`
	Angle         string `json:"angle"`
	Summary       string `json:"summary"`
	TargetEmotion string `json:"target_emotion"`
	KeyMessage    string `json:"key_message"`
	VisualStyle   string `json:"visual_style"`
}

type GeneratedScript struct {
	Title              string  `json:"title"`
	Hook               string  `json:"hook"`
	CallToAction       string  `json:"call_to_action"`
	TotalDuration      float64 `json:"total_duration"`
	EstimatedWordCount int     `json:"estimated_word_count"`
}

// CostBreakdown itemizes credit cost per pipeline concern.
type CostBreakdown struct {
	ScriptGeneration int `json:"script_generation"`
	ImageGeneration  int `json:"image_generation"`
	VideoGeneration  int `json:"video_generation"`
	AudioSelection   int `json:"audio_selection"`
	Assembly         int `json:"assembly"`
	Total            int `json:"total"`
}

// Checkpoint is a durable record of a completed step's output, enabling
// resume after failure. Checkpoint steps are strictly increasing in pipeline
// order and never repeat within a job.
type Checkpoint struct {
	Step      JobStatus `json:"step"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

// JobError records one step failure. Recoverable errors count against the
// job's retry budget; unrecoverable ones terminate it.
type JobError struct {
	Step        JobStatus `json:"step"`
	Code        string    `json:"code"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
	RetryCount  int       `json:"retry_count"`
	OccurredAt  time.Time `json:"occurred_at"`
}

package dto

import (
	"encoding/json"
	"time"

	"app/internal/model"
)

// DeadLetterDTO is the operator-facing view of a dead-lettered generation
// message.
type DeadLetterDTO struct {
	ID        int64           `json:"id"`
	Queue     string          `json:"queue"`
	JobID     string          `json:"job_id"`
	Payload   json.RawMessage `json:"payload"`
	Reason    string          `json:"reason"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewDeadLetterDTO converts a dead letter model to its response DTO.
func NewDeadLetterDTO(m *model.DeadLetterMessage) DeadLetterDTO {
	return DeadLetterDTO{
		ID:        m.ID,
		Queue:     m.Queue,
		JobID:     m.JobID,
		Payload:   m.Payload,
		Reason:    m.Reason,
		Status:    string(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

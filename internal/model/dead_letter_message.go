package model

import (
	"encoding/json"
	"time"
)

type DeadLetterStatus string

const (
	DeadLetterPending   DeadLetterStatus = "pending"
	DeadLetterReplayed  DeadLetterStatus = "replayed"
	DeadLetterDiscarded DeadLetterStatus = "discarded"
)

// DeadLetterMessage is a generation queue message the worker gave up on,
// persisted for operator inspection and replay.
type DeadLetterMessage struct {
	ID        int64            `db:"id" json:"id"`
	Queue     string           `db:"queue" json:"queue"`
	JobID     string           `db:"job_id" json:"job_id"`
	Payload   json.RawMessage  `db:"payload" json:"payload"`
	Reason    string           `db:"reason" json:"reason"`
	Status    DeadLetterStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

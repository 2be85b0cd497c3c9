package pubsub

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Event names delivered to subscriber webhooks and downstream consumers.
const (
	EventJobCreated       = "job.created"
	EventJobStatusChanged = "job.status_changed"
	EventJobCompleted     = "job.completed"
	EventJobFailed        = "job.failed"
	EventJobCancelled     = "job.cancelled"
	EventCreditsCharged   = "credits.charged"
	EventCreditsRefunded  = "credits.refunded"
	EventCreditsLow       = "credits.low"
)

// Envelope is the wire format for every published event. Signature is the
// hex HMAC-SHA256 of "<event>.<timestamp>.<data>" so consumers can verify
// origin without replaying the payload through us.
type Envelope struct {
	Event     string          `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
}

// Sign computes the envelope signature for the given secret.
func Sign(secret, event string, timestamp time.Time, data []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.%d.", event, timestamp.Unix())
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether the envelope's signature matches the secret.
func VerifySignature(secret string, env *Envelope) bool {
	want := Sign(secret, env.Event, env.Timestamp, env.Data)
	return hmac.Equal([]byte(want), []byte(env.Signature))
}

// EventEmitter publishes signed domain events to a single topic. Publish
// failures are logged and swallowed: event delivery is best effort and must
// never fail the operation that produced the event.
type EventEmitter struct {
	publisher Publisher
	topic     string
	secret    string
	logger    zerolog.Logger
	now       func() time.Time
}

// NewEventEmitter creates an EventEmitter for the given topic.
func NewEventEmitter(publisher Publisher, topic, secret string, logger zerolog.Logger) *EventEmitter {
	return &EventEmitter{
		publisher: publisher,
		topic:     topic,
		secret:    secret,
		logger:    logger.With().Str("component", "events").Logger(),
		now:       time.Now,
	}
}

// Emit signs and publishes one event. data must be JSON-marshalable.
func (e *EventEmitter) Emit(ctx context.Context, event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		e.logger.Error().Err(err).Str("event", event).Msg("failed to marshal event payload")
		return
	}
	ts := e.now().UTC()
	env := Envelope{
		Event:     event,
		Timestamp: ts,
		Data:      raw,
		Signature: Sign(e.secret, event, ts, raw),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		e.logger.Error().Err(err).Str("event", event).Msg("failed to marshal event envelope")
		return
	}
	if _, err := e.publisher.Publish(ctx, e.topic, payload); err != nil {
		e.logger.Error().Err(err).Str("event", event).Msg("failed to publish event")
	}
}

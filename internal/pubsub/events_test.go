package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingPublisher struct {
	topic   string
	payload []byte
	err     error
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, payload []byte) (string, error) {
	p.topic = topic
	p.payload = payload
	return "msg-1", p.err
}

func TestEmitSignsEnvelope(t *testing.T) {
	pub := &capturingPublisher{}
	em := NewEventEmitter(pub, "job-events", "topsecret", zerolog.Nop())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	em.now = func() time.Time { return fixed }

	em.Emit(context.Background(), EventJobCompleted, map[string]string{"job_id": "j-1"})

	require.NotNil(t, pub.payload)
	assert.Equal(t, "job-events", pub.topic)

	var env Envelope
	require.NoError(t, json.Unmarshal(pub.payload, &env))
	assert.Equal(t, EventJobCompleted, env.Event)
	assert.Equal(t, fixed, env.Timestamp)
	assert.True(t, VerifySignature("topsecret", &env))
	assert.False(t, VerifySignature("wrong", &env))

	var data map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "j-1", data["job_id"])
}

func TestSignDeterministic(t *testing.T) {
	ts := time.Unix(1_700_000_000, 0)
	a := Sign("s", EventJobCreated, ts, []byte(`{"a":1}`))
	b := Sign("s", EventJobCreated, ts, []byte(`{"a":1}`))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Sign("s", EventJobCreated, ts, []byte(`{"a":2}`)))
	assert.NotEqual(t, a, Sign("s2", EventJobCreated, ts, []byte(`{"a":1}`)))
}

func TestEmitSwallowsPublishError(t *testing.T) {
	pub := &capturingPublisher{err: assert.AnError}
	em := NewEventEmitter(pub, "job-events", "s", zerolog.Nop())
	// must not panic or propagate
	em.Emit(context.Background(), EventJobFailed, map[string]string{"job_id": "j-2"})
	assert.NotNil(t, pub.payload)
}

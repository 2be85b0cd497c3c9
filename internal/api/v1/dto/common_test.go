package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC), ID: "job_abc123"}
	token := EncodeCursor(c)
	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, c.ID, decoded.ID)
}

func TestDecodeCursorMalformed(t *testing.T) {
	_, err := DecodeCursor("not base64 at all!!!")
	assert.Error(t, err)

	_, err = DecodeCursor(EncodeCursor(Cursor{}) + "x")
	assert.Error(t, err)
}

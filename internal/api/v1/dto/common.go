package dto

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"app/internal/apierr"
)

// APIResponse is the discriminated result envelope every endpoint returns:
// {success:true, data} or {success:false, error:{code, message}}.
type APIResponse struct {
	Success bool          `json:"success"`
	Data    any           `json:"data,omitempty"`
	Error   *apierr.Error `json:"error,omitempty"`
}

// PageRequest is the cursor-based pagination input shared by list endpoints.
type PageRequest struct {
	Limit     int    `json:"limit" validate:"omitempty,min=1,max=100"`
	Cursor    string `json:"cursor,omitempty"`
	SortBy    string `json:"sort_by,omitempty" validate:"omitempty,oneof=created_at updated_at"`
	SortOrder string `json:"sort_order,omitempty" validate:"omitempty,oneof=asc desc"`
}

// PageResponse is the cursor-based pagination output.
type PageResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
	Total      *int   `json:"total,omitempty"`
}

// Cursor is an opaque keyset position over (created_at, id).
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// EncodeCursor renders a cursor as an opaque base64 token.
func EncodeCursor(c Cursor) string {
	raw := fmt.Sprintf("%s|%s", c.CreatedAt.UTC().Format(time.RFC3339Nano), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor token produced by EncodeCursor.
func DecodeCursor(token string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("decoding cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return Cursor{}, fmt.Errorf("malformed cursor")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return Cursor{}, fmt.Errorf("malformed cursor timestamp: %w", err)
	}
	return Cursor{CreatedAt: ts, ID: parts[1]}, nil
}

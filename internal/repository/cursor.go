package repository

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/zfogg/sparkfeed/internal/errors"
)

// Cursor is a keyset position in a feed ordered by (created_at, id) descending
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode renders the cursor as an opaque token
func (c Cursor) Encode() string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by Encode. The empty token is the
// start of the feed.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, errors.ValidationError("cursor", "malformed cursor")
	}
	at, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, errors.ValidationError("cursor", "malformed cursor")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, errors.ValidationError("cursor", "malformed cursor")
	}
	return &Cursor{CreatedAt: createdAt.UTC(), ID: id}, nil
}

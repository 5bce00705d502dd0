// Package persistence contains helpers shared by repository implementations.
package persistence

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"example.com/plansync/internal/domain"
)

// Cursor tokens pack the creation timestamp and row id of the last item of a
// page, so the next query can resume strictly after it.

// EncodeCursor renders a cursor as an opaque URL-safe token. A nil cursor
// encodes to the empty string.
func EncodeCursor(c *domain.Cursor) string {
	if c == nil {
		return ""
	}
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor. An empty token maps
// to a nil cursor rather than an error.
func DecodeCursor(token string) (*domain.Cursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}

	timestamp, id, found := strings.Cut(string(decoded), "|")
	if !found || id == "" {
		return nil, fmt.Errorf("malformed cursor: missing id")
	}

	createdAt, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}

	return &domain.Cursor{CreatedAt: createdAt, ID: id}, nil
}

package ledger

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Mo-Nouir/database-tests/internal/core/domain"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor marks the last row of a history page. Rows strictly older than
// (CreatedAt, ID) come next.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

func CursorFor(tx domain.Transaction) Cursor {
	return Cursor{CreatedAt: tx.CreatedAt, ID: tx.ID}
}

// Before reports whether tx sorts after the cursor in newest-first order.
func (c Cursor) Before(tx domain.Transaction) bool {
	if tx.CreatedAt.Equal(c.CreatedAt) {
		return tx.ID < c.ID
	}
	return tx.CreatedAt.Before(c.CreatedAt)
}

// Encode returns the cursor as an opaque base64 JSON token.
func (c Cursor) Encode() (string, error) {
	if c.ID == "" {
		return "", ErrInvalidCursor
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(token string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: decode failed: %w", ErrInvalidCursor, err)
	}

	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, fmt.Errorf("%w: unmarshal failed: %w", ErrInvalidCursor, err)
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		return Cursor{}, fmt.Errorf("%w: missing fields", ErrInvalidCursor)
	}
	return c, nil
}

// NormalizeLimit clamps a requested page size to [1, MaxPageSize].
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}

package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidToken is returned for tokens that cannot be decoded or do not fit the query.
var ErrInvalidToken = errors.New("invalid pagination token")

// ErrTokenMismatch is returned when a token minted for one filter is replayed on another.
var ErrTokenMismatch = fmt.Errorf("%w: issued for another filter", ErrInvalidToken)

// Cursor is the opaque pagination state we encode/decode.
// Ledger rows are listed newest first, so the last served row id is enough
// to resume: the next page holds ids strictly below it.
type Cursor struct {
	LastID uint64 `json:"last_id"`
	UserID string `json:"user_id,omitempty"`
}

// Encode converts a Cursor into a Base64 string.
func Encode(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Decode parses a Base64 string into a Cursor.
// Empty token → empty cursor (first page).
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}

	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidToken
	}

	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return Cursor{}, ErrInvalidToken
	}
	return c, nil
}

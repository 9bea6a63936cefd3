// Package cursor provides opaque pagination token encoding/decoding.
package cursor

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Cursor represents the internal state of a pagination cursor.
//
// Listings page newest-first, so the cursor records the sort key of the last
// row on the previous page; the next page resumes strictly after it.
type Cursor struct {
	// CreatedAtMillis is the creation timestamp of the last row returned.
	CreatedAtMillis int64 `json:"at"`
	// ID breaks ties between rows created in the same millisecond.
	ID string `json:"id"`
	// FilterHash ensures tokens are invalidated if the filter changes.
	FilterHash string `json:"filter_hash,omitempty"`
}

// Encode encodes a cursor to an opaque base64 string.
func Encode(c Cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// Decode decodes an opaque base64 string to a cursor.
// Returns an error if the token is invalid or malformed.
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, fmt.Errorf("empty token")
	}

	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode base64: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, fmt.Errorf("unmarshal cursor: %w", err)
	}
	if c.ID == "" {
		return Cursor{}, fmt.Errorf("cursor is missing a row id")
	}
	return c, nil
}

// HashFilter computes a short hash of the filter string for cursor validation.
// Returns empty string for empty filter.
func HashFilter(filter string) string {
	if filter == "" {
		return ""
	}
	h := sha256.Sum256([]byte(filter))
	return hex.EncodeToString(h[:8]) // 64-bit hash is sufficient for validation
}

// ValidateFilterHash checks if the cursor's filter hash matches the current filter.
// Returns an error if the filter has changed since the cursor was created.
func ValidateFilterHash(c Cursor, currentFilter string) error {
	if c.FilterHash != HashFilter(currentFilter) {
		return fmt.Errorf("filter changed since cursor was created")
	}
	return nil
}

// NewNextPageCursor creates a cursor resuming after the given row.
func NewNextPageCursor(createdAtMillis int64, id string, filter string) Cursor {
	return Cursor{
		CreatedAtMillis: createdAtMillis,
		ID:              id,
		FilterHash:      HashFilter(filter),
	}
}

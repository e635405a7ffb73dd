package common

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// timeLayout is a fixed-width UTC format so TEXT timestamps sort
// lexicographically in the same order they were minted.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// NewULID mints a sortable row id.
func NewULID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewRequestID mints an opaque per-request token.
func NewRequestID() string {
	return uuid.NewString()
}

// Now returns the current UTC instant in the canonical column format.
func Now() string {
	return time.Now().UTC().Format(timeLayout)
}

// FormatTime renders t in the canonical column format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

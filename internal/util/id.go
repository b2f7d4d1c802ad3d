package util

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewRequestID returns a lexically sortable id for correlating gateway calls in logs.
func NewRequestID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// IsUUID reports whether value is a canonical UUID, the id format used for cases, users and orgs.
func IsUUID(value string) bool {
	_, err := uuid.Parse(strings.TrimSpace(value))
	return err == nil
}

// NewObjectID returns a lowercase ULID for naming stored attachments and archive snapshots.
func NewObjectID() string {
	return strings.ToLower(NewRequestID())
}

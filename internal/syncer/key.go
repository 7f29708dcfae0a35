package syncer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/guilherme-santos/calsync/internal"
)

// Key correlates a source event with its copy on the target calendar.
type Key string

const (
	sourceKeyPrefix   = "k1:"
	fingerprintPrefix = "fp:"
)

func (k Key) String() string { return string(k) }

// SourceKey derives the key from the source identity only, so it survives
// edits of the subject or of the time of the event.
func SourceKey(e *Event) Key {
	return Key(sourceKeyPrefix + digest(e.CalendarID, e.ID))
}

// Fingerprint derives a key from subject and time range. It is used for
// target events that were not stamped with a SourceKey.
func Fingerprint(e *Event) Key {
	return Key(fingerprintPrefix + digest(
		strings.ToLower(internal.CollapseSpace(e.Subject)),
		e.StartsAt.UTC().Format(time.RFC3339),
		e.EndsAt.UTC().Format(time.RFC3339),
	))
}

func digest(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:16])
}

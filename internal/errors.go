package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired means the backend refused the credentials or none are cached.
	ErrAuthRequired = errors.New("authentication required")

	// ErrNotSupported is returned by backends for operations they can't perform.
	ErrNotSupported = errors.New("operation not supported")

	// ErrThrottled means the backend kept rate limiting after all retries.
	ErrThrottled = errors.New("throttled by backend")
)

// ValidationError is returned when a raw event can't be normalized.
type ValidationError struct {
	EventID string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.EventID == "" {
		return "invalid event: " + e.Reason
	}
	return fmt.Sprintf("invalid event %s: %s", e.EventID, e.Reason)
}

// FetchError is returned when listing calendars or events fails.
type FetchError struct {
	Op         string
	CalendarID string
	Err        error
}

func (e *FetchError) Error() string {
	if e.CalendarID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.CalendarID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// WriteError is returned when creating or updating a single event fails.
type WriteError struct {
	Op         string
	CalendarID string
	EventID    string
	Err        error
}

func (e *WriteError) Error() string {
	if e.EventID == "" {
		return fmt.Sprintf("%s on %s: %v", e.Op, e.CalendarID, e.Err)
	}
	return fmt.Sprintf("%s %s on %s: %v", e.Op, e.EventID, e.CalendarID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsFetchError reports whether err carries a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

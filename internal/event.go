package internal

import (
	"strings"
	"time"
)

const noSubject = "(No Subject)"

// Event is a calendar event normalized from any backend.
type Event struct {
	ID           string
	CalendarID   string
	Subject      string
	Body         string
	Location     string
	Organizer    string
	Attendees    []string
	StartsAt     time.Time
	EndsAt       time.Time
	IsAllDay     bool
	IsRecurring  bool
	Recurrence   string
	Categories   []string
	LastModified time.Time

	// SyncKey is the key stamped on a copy written by calsync. It is
	// empty for source events and for target events nobody stamped.
	SyncKey string
}

func (e Event) String() string {
	return e.Subject + " (" + e.StartsAt.UTC().Format(time.RFC3339) + ")"
}

// Normalize returns a copy of e with UTC instants and cleaned up text fields.
// All-day events keep their calendar date: start and end become UTC midnight
// of the day they fall on in their own location, so backends must hand them
// over in the mailbox timezone. It fails with *ValidationError when the event
// has no usable time range.
func Normalize(e Event) (*Event, error) {
	if e.StartsAt.IsZero() {
		return nil, &ValidationError{EventID: e.ID, Reason: "missing start"}
	}
	if e.EndsAt.IsZero() {
		return nil, &ValidationError{EventID: e.ID, Reason: "missing end"}
	}
	if e.StartsAt.After(e.EndsAt) {
		return nil, &ValidationError{EventID: e.ID, Reason: "start is after end"}
	}

	n := e
	n.StartsAt = e.StartsAt.UTC()
	n.EndsAt = e.EndsAt.UTC()
	if e.IsAllDay {
		n.StartsAt = dateOf(e.StartsAt)
		n.EndsAt = dateOf(e.EndsAt)
		if !n.EndsAt.After(n.StartsAt) {
			n.EndsAt = n.StartsAt.AddDate(0, 0, 1)
		}
	}
	if !e.LastModified.IsZero() {
		n.LastModified = e.LastModified.UTC()
	}
	n.Subject = strings.TrimSpace(e.Subject)
	if n.Subject == "" {
		n.Subject = noSubject
	}
	n.Location = strings.TrimSpace(e.Location)
	n.Organizer = strings.TrimSpace(e.Organizer)

	n.Attendees = nil
	for _, a := range e.Attendees {
		if a = strings.TrimSpace(a); a != "" {
			n.Attendees = append(n.Attendees, a)
		}
	}
	n.Categories = append([]string(nil), e.Categories...)
	return &n, nil
}

// dateOf returns UTC midnight of the day t falls on in its own location.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ContentEqual reports whether a and b carry the same visible content:
// subject, start, end, location and body. Whitespace is collapsed and
// instants are compared in UTC.
//
// Attendees, organizer, recurrence and categories are not compared.
func ContentEqual(a, b *Event) bool {
	if a == nil || b == nil {
		return a == b
	}
	return CollapseSpace(a.Subject) == CollapseSpace(b.Subject) &&
		a.StartsAt.UTC().Equal(b.StartsAt.UTC()) &&
		a.EndsAt.UTC().Equal(b.EndsAt.UTC()) &&
		CollapseSpace(a.Location) == CollapseSpace(b.Location) &&
		CollapseSpace(a.Body) == CollapseSpace(b.Body)
}

// CollapseSpace trims s and folds every whitespace run into a single space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package internal

import (
	"context"
)

// Reader lists calendars and events of a backend. Failures are reported
// as *FetchError.
type Reader interface {
	ListCalendars(context.Context) ([]*CalendarInfo, error)
	ListEvents(_ context.Context, calendarID string, _ Window) ([]*Event, error)
}

// Writer creates and updates events of a backend. Failures are reported as
// *WriteError and only concern the event at hand. Implementations stamp
// Event.SyncKey on the copy they write.
type Writer interface {
	CreateEvent(_ context.Context, calendarID string, _ *Event) (string, error)
	UpdateEvent(_ context.Context, calendarID, eventID string, _ *Event) error
}

type ReadWriter interface {
	Reader
	Writer
}

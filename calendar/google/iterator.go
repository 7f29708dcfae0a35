package google

import (
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/guilherme-santos/calsync/internal"
)

type eventOrError struct {
	e   *internal.Event
	err error
}

type eventIterator struct {
	events  chan eventOrError
	current eventOrError
}

func newEventIterator() *eventIterator {
	return &eventIterator{
		events: make(chan eventOrError),
	}
}

func (it *eventIterator) Next() (ok bool) {
	it.current, ok = <-it.events
	if it.current.err != nil {
		return false
	}
	return ok
}

func (it *eventIterator) Event() *internal.Event {
	c := it.current
	if c.e == nil && c.err == nil {
		panic("google: Event() called before Next()")
	}
	return c.e
}

func (it *eventIterator) Err() error {
	return it.current.err
}

func newEvent(calendarID string, event *calendar.Event) *internal.Event {
	e := &internal.Event{
		ID:          event.Id,
		CalendarID:  calendarID,
		Subject:     event.Summary,
		Body:        event.Description,
		Location:    event.Location,
		IsRecurring: event.RecurringEventId != "" || len(event.Recurrence) > 0,
	}
	if len(event.Recurrence) > 0 {
		e.Recurrence = event.Recurrence[0]
	}
	if event.Organizer != nil {
		e.Organizer = event.Organizer.Email
	}
	for _, a := range event.Attendees {
		e.Attendees = append(e.Attendees, a.Email)
	}
	e.StartsAt, e.IsAllDay = parseEventDateTime(event.Start)
	e.EndsAt, _ = parseEventDateTime(event.End)
	e.LastModified, _ = time.Parse(time.RFC3339, event.Updated)
	if event.ExtendedProperties != nil {
		e.SyncKey = event.ExtendedProperties.Private[SyncKeyProperty]
	}
	return e
}

func parseEventDateTime(dt *calendar.EventDateTime) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.Date != "" {
		t, _ := time.Parse(time.DateOnly, dt.Date)
		return t, true
	}
	t, _ := time.Parse(time.RFC3339, dt.DateTime)
	return t, false
}

func newGoogleEvent(event *internal.Event) *calendar.Event {
	gevent := &calendar.Event{
		Summary:     event.Subject,
		Description: event.Body,
		Location:    event.Location,
		Reminders: &calendar.EventReminders{
			UseDefault: true,
		},
	}
	if event.IsAllDay {
		// Normalized all-day events sit on UTC midnight of their date.
		gevent.Start = &calendar.EventDateTime{Date: event.StartsAt.Format(time.DateOnly)}
		gevent.End = &calendar.EventDateTime{Date: event.EndsAt.Format(time.DateOnly)}
	} else {
		gevent.Start = &calendar.EventDateTime{DateTime: event.StartsAt.Format(time.RFC3339)}
		gevent.End = &calendar.EventDateTime{DateTime: event.EndsAt.Format(time.RFC3339)}
	}
	if event.SyncKey != "" {
		gevent.ExtendedProperties = &calendar.EventExtendedProperties{
			Private: map[string]string{SyncKeyProperty: event.SyncKey},
		}
	}
	return gevent
}

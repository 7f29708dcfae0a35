package google

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"

	"github.com/guilherme-santos/calsync/internal"
)

func TestEventIterator(t *testing.T) {
	it := newEventIterator()
	go func() {
		defer close(it.events)
		it.events <- eventOrError{e: &internal.Event{ID: "1"}}
		it.events <- eventOrError{e: &internal.Event{ID: "2"}}
	}()

	var ids []string
	for it.Next() {
		ids = append(ids, it.Event().ID)
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []string{"1", "2"}, ids)
}

func TestEventIterator_Error(t *testing.T) {
	boom := errors.New("boom")

	it := newEventIterator()
	go func() {
		defer close(it.events)
		it.events <- eventOrError{e: &internal.Event{ID: "1"}}
		it.events <- eventOrError{err: boom}
	}()

	var n int
	for it.Next() {
		n++
	}
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, it.Err(), boom)
}

func TestEventIterator_EventBeforeNext(t *testing.T) {
	assert.Panics(t, func() { newEventIterator().Event() })
}

func TestNewEvent(t *testing.T) {
	e := newEvent("primary", &calendar.Event{
		Id:               "g-1",
		Summary:          "Standup",
		Description:      "Daily sync",
		Location:         "Room 1",
		RecurringEventId: "g-series",
		Organizer:        &calendar.EventOrganizer{Email: "boss@example.com"},
		Attendees:        []*calendar.EventAttendee{{Email: "a@example.com"}, {Email: "b@example.com"}},
		Start:            &calendar.EventDateTime{DateTime: "2026-02-04T10:00:00+01:00"},
		End:              &calendar.EventDateTime{DateTime: "2026-02-04T10:15:00+01:00"},
		Updated:          "2026-02-01T10:00:00.000Z",
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{SyncKeyProperty: "k1:abc"},
		},
	})

	assert.Equal(t, "g-1", e.ID)
	assert.Equal(t, "primary", e.CalendarID)
	assert.Equal(t, "Standup", e.Subject)
	assert.Equal(t, "Daily sync", e.Body)
	assert.Equal(t, "Room 1", e.Location)
	assert.Equal(t, "boss@example.com", e.Organizer)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, e.Attendees)
	assert.True(t, e.IsRecurring)
	assert.False(t, e.IsAllDay)
	assert.Equal(t, "k1:abc", e.SyncKey)
	assert.True(t, e.StartsAt.Equal(time.Date(2026, 2, 4, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, 15*time.Minute, e.EndsAt.Sub(e.StartsAt))
	assert.False(t, e.LastModified.IsZero())
}

func TestNewEvent_AllDay(t *testing.T) {
	e := newEvent("primary", &calendar.Event{
		Id:         "g-2",
		Summary:    "Holiday",
		Start:      &calendar.EventDateTime{Date: "2026-02-04"},
		End:        &calendar.EventDateTime{Date: "2026-02-05"},
		Recurrence: []string{"RRULE:FREQ=YEARLY"},
	})

	assert.True(t, e.IsAllDay)
	assert.True(t, e.IsRecurring)
	assert.Equal(t, "RRULE:FREQ=YEARLY", e.Recurrence)
	assert.Equal(t, 24*time.Hour, e.EndsAt.Sub(e.StartsAt))
	assert.Empty(t, e.SyncKey)
}

func TestNewGoogleEvent(t *testing.T) {
	cest := time.FixedZone("CEST", 2*60*60)

	gevent := newGoogleEvent(&internal.Event{
		Subject:  "Review",
		Body:     "Agenda",
		Location: "Room 2",
		StartsAt: time.Date(2026, 6, 4, 16, 0, 0, 0, cest),
		EndsAt:   time.Date(2026, 6, 4, 17, 0, 0, 0, cest),
		SyncKey:  "k1:abc",
	})
	assert.Equal(t, "Review", gevent.Summary)
	assert.Equal(t, "Agenda", gevent.Description)
	assert.Equal(t, "Room 2", gevent.Location)
	assert.Equal(t, "2026-06-04T16:00:00+02:00", gevent.Start.DateTime)
	assert.Equal(t, "2026-06-04T17:00:00+02:00", gevent.End.DateTime)
	assert.Empty(t, gevent.Start.Date)
	assert.Equal(t, "k1:abc", gevent.ExtendedProperties.Private[SyncKeyProperty])
	assert.True(t, gevent.Reminders.UseDefault)

	allDay := newGoogleEvent(&internal.Event{
		Subject:  "Holiday",
		StartsAt: time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC),
		IsAllDay: true,
	})
	assert.Equal(t, "2026-02-04", allDay.Start.Date)
	assert.Equal(t, "2026-02-05", allDay.End.Date)
	assert.Nil(t, allDay.ExtendedProperties)
}

func TestNewGoogleEvent_RoundTrip(t *testing.T) {
	src := &internal.Event{
		ID:       "src-1",
		Subject:  "Review",
		Location: "Room 2",
		StartsAt: time.Date(2026, 6, 4, 14, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 6, 4, 15, 0, 0, 0, time.UTC),
		SyncKey:  "k1:abc",
	}
	e := newEvent("primary", newGoogleEvent(src))

	assert.True(t, internal.ContentEqual(src, e))
	assert.Equal(t, src.SyncKey, e.SyncKey)
}

func TestNewGoogleEvent_LocalDates(t *testing.T) {
	cet := time.FixedZone("CET", 60*60)

	holiday, err := internal.Normalize(internal.Event{
		Subject:  "Holiday",
		StartsAt: time.Date(2026, 2, 9, 0, 0, 0, 0, cet),
		EndsAt:   time.Date(2026, 2, 10, 0, 0, 0, 0, cet),
		IsAllDay: true,
	})
	require.NoError(t, err)
	gevent := newGoogleEvent(holiday)
	assert.Equal(t, "2026-02-09", gevent.Start.Date)
	assert.Equal(t, "2026-02-10", gevent.End.Date)

	early, err := internal.Normalize(internal.Event{
		Subject:  "Early call",
		StartsAt: time.Date(2026, 2, 9, 0, 30, 0, 0, cet),
		EndsAt:   time.Date(2026, 2, 9, 1, 0, 0, 0, cet),
	})
	require.NoError(t, err)
	gevent = newGoogleEvent(early)
	assert.Empty(t, gevent.Start.Date)
	assert.Equal(t, "2026-02-08T23:30:00Z", gevent.Start.DateTime)
	assert.Equal(t, "2026-02-09T00:00:00Z", gevent.End.DateTime)
}

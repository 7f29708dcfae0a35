package internal_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilherme-santos/calsync/internal"
)

var (
	cest     = time.FixedZone("CEST", 2*60*60)
	startsAt = time.Date(2026, 2, 4, 10, 0, 0, 0, time.UTC)
)

func TestNormalize(t *testing.T) {
	e, err := internal.Normalize(internal.Event{
		ID:         "1",
		Subject:    "  Standup ",
		Location:   " Room 1 ",
		Attendees:  []string{" a@example.com", "", "  "},
		StartsAt:   startsAt.In(cest),
		EndsAt:     startsAt.Add(30 * time.Minute).In(cest),
		Categories: []string{"Work"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Standup", e.Subject)
	assert.Equal(t, "Room 1", e.Location)
	assert.Equal(t, []string{"a@example.com"}, e.Attendees)
	assert.Equal(t, time.UTC, e.StartsAt.Location())
	assert.True(t, e.StartsAt.Equal(startsAt))
	assert.Equal(t, []string{"Work"}, e.Categories)
}

func TestNormalize_EmptySubject(t *testing.T) {
	e, err := internal.Normalize(internal.Event{StartsAt: startsAt, EndsAt: startsAt})
	require.NoError(t, err)
	assert.Equal(t, "(No Subject)", e.Subject)
}

func TestNormalize_DoesNotShareCategories(t *testing.T) {
	src := internal.Event{StartsAt: startsAt, EndsAt: startsAt, Categories: []string{"a"}}
	e, err := internal.Normalize(src)
	require.NoError(t, err)

	e.Categories[0] = "b"
	assert.Equal(t, "a", src.Categories[0])
}

func TestNormalize_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		event  internal.Event
		reason string
	}{
		{"no start", internal.Event{ID: "1", EndsAt: startsAt}, "missing start"},
		{"no end", internal.Event{ID: "2", StartsAt: startsAt}, "missing end"},
		{"start after end", internal.Event{ID: "3", StartsAt: startsAt, EndsAt: startsAt.Add(-time.Minute)}, "start is after end"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := internal.Normalize(tt.event)

			var verr *internal.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.event.ID, verr.EventID)
			assert.Equal(t, tt.reason, verr.Reason)
		})
	}
}

func TestContentEqual(t *testing.T) {
	base := internal.Event{
		Subject:  "Team sync",
		StartsAt: startsAt,
		EndsAt:   startsAt.Add(time.Hour),
		Location: "Room 1",
		Body:     "Agenda:\n- one",
	}

	tests := []struct {
		name   string
		change func(e *internal.Event)
		equal  bool
	}{
		{"same", func(*internal.Event) {}, true},
		{"whitespace in subject", func(e *internal.Event) { e.Subject = "  Team   sync " }, true},
		{"whitespace in body", func(e *internal.Event) { e.Body = "Agenda:  - one\n" }, true},
		{"other timezone", func(e *internal.Event) {
			e.StartsAt = e.StartsAt.In(cest)
			e.EndsAt = e.EndsAt.In(cest)
		}, true},
		{"attendees", func(e *internal.Event) { e.Attendees = []string{"x@example.com"} }, true},
		{"organizer", func(e *internal.Event) { e.Organizer = "boss@example.com" }, true},
		{"categories", func(e *internal.Event) { e.Categories = []string{"Work"} }, true},
		{"last modified", func(e *internal.Event) { e.LastModified = time.Now() }, true},
		{"subject", func(e *internal.Event) { e.Subject = "Team sync!" }, false},
		{"start", func(e *internal.Event) { e.StartsAt = e.StartsAt.Add(time.Minute) }, false},
		{"end", func(e *internal.Event) { e.EndsAt = e.EndsAt.Add(time.Minute) }, false},
		{"location", func(e *internal.Event) { e.Location = "Room 2" }, false},
		{"body", func(e *internal.Event) { e.Body = "Other agenda" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := base
			tt.change(&other)

			assert.Equal(t, tt.equal, internal.ContentEqual(&base, &other))
			assert.Equal(t, tt.equal, internal.ContentEqual(&other, &base))
		})
	}
}

func TestContentEqual_Nil(t *testing.T) {
	e := &internal.Event{Subject: "x"}

	assert.True(t, internal.ContentEqual(nil, nil))
	assert.False(t, internal.ContentEqual(e, nil))
	assert.False(t, internal.ContentEqual(nil, e))
	assert.True(t, internal.ContentEqual(e, e))
}

func TestNormalize_AllDayKeepsLocalDate(t *testing.T) {
	cet := time.FixedZone("CET", 60*60)
	e, err := internal.Normalize(internal.Event{
		Subject:  "Holiday",
		StartsAt: time.Date(2026, 2, 9, 0, 0, 0, 0, cet),
		EndsAt:   time.Date(2026, 2, 10, 0, 0, 0, 0, cet),
		IsAllDay: true,
	})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC), e.StartsAt)
	assert.Equal(t, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), e.EndsAt)
	assert.Equal(t, time.Monday, e.StartsAt.Weekday())
}

func TestNormalize_AllDayEndsOnStartDate(t *testing.T) {
	day := time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)
	e, err := internal.Normalize(internal.Event{StartsAt: day, EndsAt: day, IsAllDay: true})
	require.NoError(t, err)
	assert.Equal(t, day.AddDate(0, 0, 1), e.EndsAt)
}

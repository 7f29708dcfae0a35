package ews

import (
	"time"

	"github.com/guilherme-santos/calsync/internal"
)

// newEvent converts item with its times moved into loc, so all-day events
// keep the date they have in the mailbox.
func newEvent(calendarID string, item calendarItem, loc *time.Location) *internal.Event {
	e := &internal.Event{
		ID:           item.ItemID.ID,
		CalendarID:   calendarID,
		Subject:      item.Subject,
		Body:         item.Body,
		Location:     item.Location,
		Organizer:    item.Organizer,
		StartsAt:     parseTime(item.Start).In(loc),
		EndsAt:       parseTime(item.End).In(loc),
		IsAllDay:     item.IsAllDayEvent,
		IsRecurring:  item.IsRecurring || item.CalendarItemType == "Occurrence" || item.CalendarItemType == "Exception",
		Categories:   item.Categories,
		LastModified: parseTime(item.LastModifiedTime),
	}
	if e.IsRecurring {
		e.Recurrence = item.CalendarItemType
	}
	e.Attendees = append(e.Attendees, item.Required...)
	e.Attendees = append(e.Attendees, item.Optional...)

	for _, p := range item.Extended {
		if p.Field.PropertyName == "CalsyncKey" {
			e.SyncKey = p.Value
		}
	}
	return e
}

func newEWSItem(e *internal.Event, loc *time.Location) newItem {
	item := newItem{
		Subject:  e.Subject,
		Body:     itemBody{Type: "Text", Content: e.Body},
		Start:    formatTime(e.StartsAt),
		End:      formatTime(e.EndsAt),
		IsAllDay: e.IsAllDay,
		Location: e.Location,
	}
	if e.IsAllDay {
		item.Start = formatDate(e.StartsAt, loc)
		item.End = formatDate(e.EndsAt, loc)
	}
	if len(e.Categories) > 0 {
		item.Categories = &stringList{Values: e.Categories}
	}
	if e.SyncKey != "" {
		item.Extended = []extendedPropertyW{syncKeyProperty(e.SyncKey)}
	}
	return item
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// formatDate returns midnight in loc of the date t carries.
func formatDate(t time.Time, loc *time.Location) string {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).Format(time.RFC3339)
}

// parseTime returns the zero time for values it can't parse.
func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

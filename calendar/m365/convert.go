package m365

import (
	"strings"
	"time"

	"github.com/microsoftgraph/msgraph-sdk-go/models"

	"github.com/guilherme-santos/calsync/internal"
)

// SyncKeyProperty is the MAPI named property holding the sync key of the
// events calsync writes.
const SyncKeyProperty = "String {00020329-0000-0000-C000-000000000046} Name CalsyncKey"

const graphDateTime = "2006-01-02T15:04:05.9999999"

// newEvent converts ev with its times moved into loc, so all-day events keep
// the date they have in the mailbox.
func newEvent(calendarID string, ev models.Eventable, loc *time.Location) *internal.Event {
	e := &internal.Event{
		ID:         deref(ev.GetId()),
		CalendarID: calendarID,
		Subject:    deref(ev.GetSubject()),
		StartsAt:   parseDateTime(ev.GetStart()).In(loc),
		EndsAt:     parseDateTime(ev.GetEnd()).In(loc),
		IsAllDay:   deref(ev.GetIsAllDay()),
		Categories: ev.GetCategories(),
	}
	if b := ev.GetBody(); b != nil {
		e.Body = deref(b.GetContent())
	}
	if l := ev.GetLocation(); l != nil {
		e.Location = deref(l.GetDisplayName())
	}
	if o := ev.GetOrganizer(); o != nil && o.GetEmailAddress() != nil {
		e.Organizer = deref(o.GetEmailAddress().GetAddress())
	}
	for _, a := range ev.GetAttendees() {
		if a.GetEmailAddress() != nil {
			e.Attendees = append(e.Attendees, deref(a.GetEmailAddress().GetAddress()))
		}
	}
	if t := ev.GetTypeEscaped(); t != nil && *t != models.SINGLEINSTANCE_EVENTTYPE {
		e.IsRecurring = true
	}
	if r := ev.GetRecurrence(); r != nil && r.GetPattern() != nil && r.GetPattern().GetTypeEscaped() != nil {
		e.IsRecurring = true
		e.Recurrence = r.GetPattern().GetTypeEscaped().String()
	}
	if t := ev.GetLastModifiedDateTime(); t != nil {
		e.LastModified = *t
	}
	for _, p := range ev.GetSingleValueExtendedProperties() {
		if strings.EqualFold(deref(p.GetId()), SyncKeyProperty) {
			e.SyncKey = deref(p.GetValue())
		}
	}
	return e
}

func newGraphEvent(e *internal.Event) models.Eventable {
	ev := models.NewEvent()
	ev.SetSubject(ptr(e.Subject))
	if e.IsAllDay {
		ev.SetStart(graphDate(e.StartsAt))
		ev.SetEnd(graphDate(e.EndsAt))
	} else {
		ev.SetStart(graphDateTimeZone(e.StartsAt))
		ev.SetEnd(graphDateTimeZone(e.EndsAt))
	}
	ev.SetIsAllDay(ptr(e.IsAllDay))

	body := models.NewItemBody()
	body.SetContentType(ptr(models.TEXT_BODYTYPE))
	body.SetContent(ptr(e.Body))
	ev.SetBody(body)

	loc := models.NewLocation()
	loc.SetDisplayName(ptr(e.Location))
	ev.SetLocation(loc)

	if len(e.Categories) > 0 {
		ev.SetCategories(e.Categories)
	}
	if e.SyncKey != "" {
		p := models.NewSingleValueLegacyExtendedProperty()
		p.SetId(ptr(SyncKeyProperty))
		p.SetValue(ptr(e.SyncKey))
		ev.SetSingleValueExtendedProperties([]models.SingleValueLegacyExtendedPropertyable{p})
	}
	return ev
}

func graphDateTimeZone(t time.Time) models.DateTimeTimeZoneable {
	dt := models.NewDateTimeTimeZone()
	dt.SetDateTime(ptr(t.UTC().Format("2006-01-02T15:04:05")))
	dt.SetTimeZone(ptr("UTC"))
	return dt
}

// graphDate returns midnight of the date t carries, which Graph requires
// for all-day events.
func graphDate(t time.Time) models.DateTimeTimeZoneable {
	dt := models.NewDateTimeTimeZone()
	dt.SetDateTime(ptr(t.Format("2006-01-02") + "T00:00:00"))
	dt.SetTimeZone(ptr("UTC"))
	return dt
}

// parseDateTime returns the zero time when dt can't be parsed, which makes
// the event fail validation later on.
func parseDateTime(dt models.DateTimeTimeZoneable) time.Time {
	if dt == nil || dt.GetDateTime() == nil {
		return time.Time{}
	}
	loc := time.UTC
	if tz := deref(dt.GetTimeZone()); tz != "" && !strings.EqualFold(tz, "UTC") {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	t, err := time.ParseInLocation(graphDateTime, *dt.GetDateTime(), loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

func ptr[T any](v T) *T {
	return &v
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

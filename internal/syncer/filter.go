package syncer

import (
	"slices"
	"strings"
	"time"
)

// Filter trims and decorates source events before they are compared with
// the target.
type Filter struct {
	// SkipSubjects are compared lower-cased and trimmed.
	SkipSubjects []string
	IncludeDays  []time.Weekday
	ExcludeDays  []time.Weekday
	Prefix       string
	Category     string

	// Location is the zone days are evaluated in. Nil means UTC.
	Location *time.Location
}

// Apply returns the events f keeps, decorated with prefix and category.
// Events are modified in place.
func (f Filter) Apply(events []*Event) []*Event {
	skip := make(map[string]bool, len(f.SkipSubjects))
	for _, s := range f.SkipSubjects {
		skip[normSubject(s)] = true
	}

	res := make([]*Event, 0, len(events))
	for _, e := range events {
		if skip[normSubject(e.Subject)] {
			continue
		}
		day := f.weekday(e)
		if len(f.IncludeDays) > 0 && !slices.Contains(f.IncludeDays, day) {
			continue
		}
		if slices.Contains(f.ExcludeDays, day) {
			continue
		}

		if f.Prefix != "" && !strings.HasPrefix(e.Subject, f.Prefix) {
			e.Subject = f.Prefix + " " + e.Subject
		}
		if f.Category != "" && !slices.Contains(e.Categories, f.Category) {
			e.Categories = append(e.Categories, f.Category)
		}
		res = append(res, e)
	}
	return res
}

// weekday returns the day e falls on. All-day events carry their date as UTC
// midnight after internal.Normalize, so they are not shifted into Location.
func (f Filter) weekday(e *Event) time.Weekday {
	if e.IsAllDay || f.Location == nil {
		return e.StartsAt.Weekday()
	}
	return e.StartsAt.In(f.Location).Weekday()
}

func normSubject(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

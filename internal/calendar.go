package internal

import (
	"errors"
	"fmt"
	"time"
)

type Account struct {
	Platform string
	Name     string
	Auth     string
}

func (a Account) ID() string {
	return a.Platform + "/" + a.Name
}

// CalendarInfo describes a calendar as listed by a backend.
type CalendarInfo struct {
	ID        string
	Name      string
	Owner     string
	IsDefault bool
	CanEdit   bool
}

func (c CalendarInfo) String() string {
	return c.Name + " (" + c.ID + ")"
}

// Window is the half-open range [Start, End) a sync run works on.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return errors.New("window: start and end are required")
	}
	if !w.End.After(w.Start) {
		return fmt.Errorf("window: end %s is not after start %s", w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return nil
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w Window) String() string {
	return w.Start.UTC().Format(DateFormat) + ".." + w.End.UTC().Format(DateFormat)
}

// SyncWindow starts lookbackDays before today's UTC midnight and ends at the
// midnight closing the last lookahead day.
func SyncWindow(now time.Time, lookbackDays, lookaheadDays int) Window {
	today := NewDateFromTime(now.UTC())
	return Window{
		Start: today.AddDate(0, 0, -lookbackDays).Time,
		End:   today.AddDate(0, 0, lookaheadDays+1).Time,
	}
}

// DayWindow covers one whole UTC day.
func DayWindow(d Date) Window {
	d = NewDate(d.Year(), d.Month(), d.Day(), time.UTC)
	return Window{Start: d.Time, End: d.AddDate(0, 0, 1).Time}
}

// RangeWindow covers from..to, both days included. A zero from means today
// and a zero to means a week after from.
func RangeWindow(now time.Time, from, to Date) Window {
	if from.IsZero() {
		from = NewDateFromTime(now.UTC())
	}
	from = NewDate(from.Year(), from.Month(), from.Day(), time.UTC)
	if to.IsZero() {
		return Window{Start: from.Time, End: from.AddDate(0, 0, 7).Time}
	}
	to = NewDate(to.Year(), to.Month(), to.Day(), time.UTC)
	return Window{Start: from.Time, End: to.AddDate(0, 0, 1).Time}
}

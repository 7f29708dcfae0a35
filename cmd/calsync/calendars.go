package main

import (
	"context"
	"fmt"

	"github.com/guilherme-santos/calsync/file"
	"github.com/guilherme-santos/calsync/internal"
	"github.com/guilherme-santos/calsync/internal/syncer"
)

func (a *app) listCalendars(ctx context.Context, sources []*file.AccountConfig) error {
	for _, acc := range sources {
		fmt.Fprintf(a.out, "\n=== %s (%s) ===\n", acc.Name, acc.Type)

		r, err := a.open(ctx, acc)
		if err != nil {
			return err
		}
		cals, err := r.ListCalendars(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Found %d calendar(s):\n", len(cals))
		for _, cal := range cals {
			fmt.Fprintf(a.out, "  - %s", cal)
			if cal.IsDefault {
				fmt.Fprint(a.out, " [default]")
			}
			fmt.Fprintln(a.out)
			if cal.Owner != "" {
				fmt.Fprintf(a.out, "    Owner: %s\n", cal.Owner)
			}
		}
	}
	return nil
}

func (a *app) previewEvents(ctx context.Context, sources []*file.AccountConfig, w internal.Window) error {
	s := a.newSyncer()

	var total int
	for _, acc := range sources {
		fmt.Fprintf(a.out, "\n=== %s (%s) ===\n", acc.Name, acc.Type)

		f, err := a.filter(acc)
		if err != nil {
			return err
		}
		r, err := a.open(ctx, acc)
		if err != nil {
			return err
		}
		events, err := s.Preview(ctx, r, calendarID(acc), w, f)
		if err != nil {
			return err
		}

		fmt.Fprintf(a.out, "Found %d event(s):\n", len(events))
		for _, e := range events {
			printEvent(a, e)
		}
		total += len(events)
	}
	fmt.Fprintf(a.out, "\nTotal: %d event(s) from %d source(s)\n", total, len(sources))
	return nil
}

func (a *app) filter(acc *file.AccountConfig) (syncer.Filter, error) {
	include, exclude, err := acc.Days()
	if err != nil {
		return syncer.Filter{}, err
	}
	loc, err := acc.Location()
	if err != nil {
		return syncer.Filter{}, err
	}
	return syncer.Filter{
		SkipSubjects: a.cfg.SkipSubjects,
		IncludeDays:  include,
		ExcludeDays:  exclude,
		Prefix:       acc.Prefix,
		Category:     acc.Category,
		Location:     loc,
	}, nil
}

func printEvent(a *app, e *internal.Event) {
	fmt.Fprintf(a.out, "  - %s\n", e.Subject)
	if e.IsAllDay {
		fmt.Fprintf(a.out, "    When: %s (all day)\n", e.StartsAt.Format("02 Jan 06"))
	} else {
		fmt.Fprintf(a.out, "    When: %s to %s\n", e.StartsAt.Local().Format("02 Jan 06 15:04"), e.EndsAt.Local().Format("02 Jan 06 15:04"))
	}
	if e.Location != "" {
		fmt.Fprintf(a.out, "    Where: %s\n", e.Location)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/guilherme-santos/calsync/file"
	"github.com/guilherme-santos/calsync/internal"
	"github.com/guilherme-santos/calsync/internal/syncer"
)

type categoryEnsurer interface {
	EnsureCategory(ctx context.Context, name, color string) error
}

func (a *app) syncEvents(ctx context.Context, sources []*file.AccountConfig, w internal.Window) error {
	target, err := a.cfg.Destination(a.flags.target)
	if err != nil {
		return err
	}
	if target.Type == file.TypeM365Read {
		return fmt.Errorf("target account %q is read only", target.Name)
	}
	dst, err := a.open(ctx, target)
	if err != nil {
		return err
	}

	if ce, ok := dst.(categoryEnsurer); ok && !a.flags.dryRun {
		for _, acc := range sources {
			if err := ce.EnsureCategory(ctx, acc.Category, acc.Color); err != nil {
				a.logger.Warn("Unable to ensure category", "category", acc.Category, "error", err)
			}
		}
	}

	s := a.newSyncer()

	var failed bool
	for _, acc := range sources {
		f, err := a.filter(acc)
		if err != nil {
			return err
		}
		src, err := a.open(ctx, acc)
		if err != nil {
			return err
		}
		if last, err := a.storage.LastRun(ctx, acc.Name, target.Name); err != nil {
			a.logger.Warn("Unable to read last sync run", "error", err)
		} else if last != nil {
			a.logger.Info("Last sync", "source", acc.Name, "target", target.Name,
				"finished_at", last.Finished().Local().Format(time.DateTime), "failed", last.Failed, "dry_run", last.DryRun)
		}

		report, err := s.Run(ctx, syncer.Request{
			Source:           src,
			SourceCalendarID: calendarID(acc),
			Target:           dst,
			TargetCalendarID: calendarID(target),
			Window:           w,
			DryRun:           a.flags.dryRun,
			Filter:           f,
		})
		if report != nil {
			a.printReport(acc.Name, target.Name, report)
			if err := a.storage.SaveRun(ctx, acc.Name, target.Name, report); err != nil {
				a.logger.Warn("Unable to save sync run", "error", err)
			}
			failed = failed || report.Failed() > 0
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		if internal.IsFetchError(err) {
			a.logger.Error("Unable to fetch events, skipping source", "source", acc.Name, "error", err)
			failed = true
		} else if err != nil {
			a.logger.Error("Sync failed", "source", acc.Name, "error", err)
			failed = true
		}
	}
	if failed {
		return errFailed
	}
	return nil
}

func (a *app) printReport(source, target string, r *syncer.Report) {
	if r.DryRun {
		fmt.Fprintf(a.out, "\nDry run - %s -> %s:\n", source, target)
		fmt.Fprintf(a.out, "  Would create: %d\n", r.Planned(syncer.Create))
		fmt.Fprintf(a.out, "  Would update: %d\n", r.Planned(syncer.Update))
		fmt.Fprintf(a.out, "  Already up to date: %d\n", r.Skipped()-r.Planned(syncer.Create)-r.Planned(syncer.Update))
		for _, o := range r.Outcomes {
			if o.Kind == syncer.Skipped && o.Action != syncer.Skip {
				fmt.Fprintf(a.out, "  + %s\n", o)
			}
		}
	} else {
		fmt.Fprintf(a.out, "\nSync Results - %s -> %s:\n", source, target)
		fmt.Fprintf(a.out, "  Events created: %d\n", r.Created())
		fmt.Fprintf(a.out, "  Events updated: %d\n", r.Updated())
		fmt.Fprintf(a.out, "  Events skipped (up to date): %d\n", r.Skipped())
	}

	if failures := r.Failures(); len(failures) > 0 {
		fmt.Fprintf(a.out, "\nErrors (%d):\n", len(failures))
		for _, o := range failures {
			fmt.Fprintf(a.out, "  - %s\n", o)
		}
	}
	if r.Cancelled {
		fmt.Fprintln(a.out, "\nSync was cancelled before completion.")
	}
}

package syncer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/guilherme-santos/calsync/internal"
)

type (
	Event      = internal.Event
	Reader     = internal.Reader
	ReadWriter = internal.ReadWriter
)

// Storage keeps the source key -> target id mapping between runs. It is
// optional, a run works without it by matching stamped keys.
type Storage interface {
	Mappings(_ context.Context, calendarID string) (map[Key]string, error)
	SaveMapping(_ context.Context, calendarID string, _ Key, targetID string) error
}

// Request describes one sync run from a source calendar to a target calendar.
type Request struct {
	Source           Reader
	SourceCalendarID string
	Target           ReadWriter
	TargetCalendarID string
	Window           internal.Window
	DryRun           bool
	Filter           Filter
}

type Syncer struct {
	logger  *slog.Logger
	storage Storage
}

func New(logger *slog.Logger, storage Storage) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		logger:  logger,
		storage: storage,
	}
}

// Run copies the source events of req.Window to the target calendar.
//
// Only failing to fetch either side or an invalid window returns an error
// without report. Events that can't be written end up as Failed outcomes.
// When ctx is cancelled between two events the partial report is returned
// together with the context error.
func (s *Syncer) Run(ctx context.Context, req Request) (*Report, error) {
	if err := req.Window.Validate(); err != nil {
		return nil, err
	}
	logger := internal.WithCalendar(s.logger, "source", req.SourceCalendarID)
	logger = internal.WithCalendar(logger, "target", req.TargetCalendarID)

	report := &Report{
		RunID:  uuid.NewString(),
		Source: req.SourceCalendarID,
		Target: req.TargetCalendarID,
		Window: req.Window,
		DryRun: req.DryRun,
	}
	logger.Info("Syncing calendar", "window", req.Window, "dry_run", req.DryRun, "run_id", report.RunID)

	raw, err := req.Source.ListEvents(ctx, req.SourceCalendarID, req.Window)
	if err != nil {
		return nil, fetchErr("list source events", req.SourceCalendarID, err)
	}
	existing, err := req.Target.ListEvents(ctx, req.TargetCalendarID, req.Window)
	if err != nil {
		return nil, fetchErr("list target events", req.TargetCalendarID, err)
	}
	logger.Debug("Fetched events", "source_events", len(raw), "target_events", len(existing))

	events := make([]*Event, 0, len(raw))
	for _, e := range raw {
		n, err := internal.Normalize(*e)
		if err != nil {
			logger.Warn("Skipping malformed event", "event_id", e.ID, "error", err)
			report.add(Outcome{Kind: Failed, Action: Create, Event: e, Reason: err.Error()})
			continue
		}
		if n.CalendarID == "" {
			n.CalendarID = req.SourceCalendarID
		}
		events = append(events, n)
	}
	events = req.Filter.Apply(events)

	mapping := s.mappings(ctx, logger, req.TargetCalendarID)

	for _, d := range Decide(events, existing, mapping) {
		if err := ctx.Err(); err != nil {
			report.Cancelled = true
			logger.Warn("Sync cancelled", "report", report)
			return report, err
		}
		report.add(s.apply(ctx, logger, req, d))
	}

	if report.Failed() > 0 {
		logger.Warn("Sync complete with error!", "report", report)
	} else {
		logger.Info("Sync complete!", "report", report)
	}
	return report, nil
}

// Preview fetches, normalizes and filters the events a sync would consider.
// Malformed events are logged and left out.
func (s *Syncer) Preview(ctx context.Context, r Reader, calendarID string, w internal.Window, f Filter) ([]*Event, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	raw, err := r.ListEvents(ctx, calendarID, w)
	if err != nil {
		return nil, fetchErr("list source events", calendarID, err)
	}
	events := make([]*Event, 0, len(raw))
	for _, e := range raw {
		n, err := internal.Normalize(*e)
		if err != nil {
			s.logger.Warn("Skipping malformed event", "calendar", calendarID, "event_id", e.ID, "error", err)
			continue
		}
		events = append(events, n)
	}
	return f.Apply(events), nil
}

func (s *Syncer) apply(ctx context.Context, logger *slog.Logger, req Request, d Decision) Outcome {
	o := Outcome{Action: d.Action, Event: d.Source, TargetID: d.TargetID}

	if d.Action == Skip {
		logger.Debug("Event up to date", "subject", d.Source.Subject, "target_id", d.TargetID)
		o.Kind = Skipped
		return o
	}
	if req.DryRun {
		o.Kind = Skipped
		if d.Action == Create {
			o.Note = "dry-run: would create"
		} else {
			o.Note = "dry-run: would update " + d.TargetID
		}
		logger.Info("[DRY RUN] "+o.Note, "subject", d.Source.Subject, "starts_at", formatDateTime(d.Source.StartsAt))
		return o
	}

	// The copy carries the key so the next run can find it.
	e := *d.Source
	e.SyncKey = d.Key.String()

	switch d.Action {
	case Create:
		logger.Info("Creating event", "subject", e.Subject, "starts_at", formatDateTime(e.StartsAt))
		id, err := req.Target.CreateEvent(ctx, req.TargetCalendarID, &e)
		if err != nil {
			logger.Error("Unable to create event", "subject", e.Subject, "error", err)
			return failed(o, err)
		}
		o.Kind = Created
		o.TargetID = id
	case Update:
		logger.Info("Updating event", "subject", e.Subject, "target_id", d.TargetID, "starts_at", formatDateTime(e.StartsAt))
		err := req.Target.UpdateEvent(ctx, req.TargetCalendarID, d.TargetID, &e)
		if err != nil {
			logger.Error("Unable to update event", "subject", e.Subject, "target_id", d.TargetID, "error", err)
			return failed(o, err)
		}
		o.Kind = Updated
	}

	s.saveMapping(ctx, logger, req.TargetCalendarID, d.Key, o.TargetID)
	return o
}

func (s *Syncer) mappings(ctx context.Context, logger *slog.Logger, calendarID string) map[Key]string {
	if s.storage == nil {
		return nil
	}
	m, err := s.storage.Mappings(ctx, calendarID)
	if err != nil {
		logger.Warn("Unable to load event mappings, matching by key only", "error", err)
		return nil
	}
	return m
}

func (s *Syncer) saveMapping(ctx context.Context, logger *slog.Logger, calendarID string, key Key, targetID string) {
	if s.storage == nil || targetID == "" {
		return
	}
	if err := s.storage.SaveMapping(ctx, calendarID, key, targetID); err != nil {
		logger.Warn("Unable to save event mapping", "target_id", targetID, "error", err)
	}
}

func failed(o Outcome, err error) Outcome {
	o.Kind = Failed
	o.Reason = err.Error()
	return o
}

func fetchErr(op, calendarID string, err error) error {
	var fe *internal.FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &internal.FetchError{Op: op, CalendarID: calendarID, Err: err}
}

package syncer

import (
	"fmt"

	"github.com/guilherme-santos/calsync/internal"
)

type OutcomeKind int

const (
	Created OutcomeKind = iota
	Updated
	Skipped
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the result of applying one decision.
type Outcome struct {
	Kind     OutcomeKind
	Action   Action
	Event    *Event
	TargetID string
	// Reason explains a Failed outcome.
	Reason string
	// Note describes what a dry run would have done.
	Note string
}

func (o Outcome) String() string {
	var subject string
	if o.Event != nil {
		subject = o.Event.Subject
	}
	switch {
	case o.Kind == Failed:
		return fmt.Sprintf("%s %q: %s", o.Kind, subject, o.Reason)
	case o.Note != "":
		return fmt.Sprintf("%s %q: %s", o.Kind, subject, o.Note)
	}
	return fmt.Sprintf("%s %q", o.Kind, subject)
}

// Report aggregates the outcomes of one run.
type Report struct {
	RunID     string
	Source    string
	Target    string
	Window    internal.Window
	DryRun    bool
	Cancelled bool
	Outcomes  []Outcome
}

func (r *Report) add(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
}

func (r *Report) Count(kind OutcomeKind) int {
	var n int
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

func (r *Report) Created() int { return r.Count(Created) }
func (r *Report) Updated() int { return r.Count(Updated) }
func (r *Report) Skipped() int { return r.Count(Skipped) }
func (r *Report) Failed() int  { return r.Count(Failed) }

// Planned counts the decisions of the given action a dry run held back.
func (r *Report) Planned(a Action) int {
	if !r.DryRun {
		return 0
	}
	var n int
	for _, o := range r.Outcomes {
		if o.Kind == Skipped && o.Action == a && a != Skip {
			n++
		}
	}
	return n
}

func (r *Report) Failures() []Outcome {
	var res []Outcome
	for _, o := range r.Outcomes {
		if o.Kind == Failed {
			res = append(res, o)
		}
	}
	return res
}

func (r *Report) String() string {
	s := fmt.Sprintf("%d created, %d updated, %d skipped, %d failed", r.Created(), r.Updated(), r.Skipped(), r.Failed())
	if r.DryRun {
		s += fmt.Sprintf(" (dry run: would create %d, would update %d)", r.Planned(Create), r.Planned(Update))
	}
	if r.Cancelled {
		s += " (cancelled)"
	}
	return s
}

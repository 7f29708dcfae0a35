package syncer

import (
	"github.com/guilherme-santos/calsync/internal"
)

type Action int

const (
	Create Action = iota
	Update
	Skip
)

func (a Action) String() string {
	switch a {
	case Create:
		return "create"
	case Update:
		return "update"
	case Skip:
		return "skip"
	}
	return "unknown"
}

// Decision is what the syncer should do with one source event.
type Decision struct {
	Action Action
	Source *Event
	Key    Key
	// TargetID is set for Update and Skip.
	TargetID string
}

// Decide classifies every source event exactly once, in source order.
//
// Targets are matched by key only: first the persisted mapping (when the
// mapped event is still in the target window), then the key stamped on the
// target copy, then the subject/time fingerprint of unstamped targets.
// When several targets share a key the last one wins. Targets no source
// maps to are left alone.
func Decide(src, dst []*Event, mapping map[Key]string) []Decision {
	var (
		byID          = make(map[string]*Event, len(dst))
		byKey         = make(map[Key]*Event, len(dst))
		byFingerprint = make(map[Key]*Event, len(dst))
	)
	for _, t := range dst {
		byID[t.ID] = t
		if t.SyncKey != "" {
			byKey[Key(t.SyncKey)] = t
		} else {
			byFingerprint[Fingerprint(t)] = t
		}
	}

	decisions := make([]Decision, 0, len(src))
	for _, e := range src {
		key := SourceKey(e)

		target := byID[mapping[key]]
		if target == nil {
			target = byKey[key]
		}
		if target == nil {
			target = byFingerprint[Fingerprint(e)]
		}

		d := Decision{Source: e, Key: key}
		switch {
		case target == nil:
			d.Action = Create
		case internal.ContentEqual(e, target):
			d.Action = Skip
			d.TargetID = target.ID
		default:
			d.Action = Update
			d.TargetID = target.ID
		}
		decisions = append(decisions, d)
	}
	return decisions
}

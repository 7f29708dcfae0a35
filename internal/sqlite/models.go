package sqlite

import (
	"strings"
	"time"

	"github.com/guilherme-santos/calsync/internal"
)

type Account struct {
	ID   string
	Auth string
}

func (a Account) Convert() *internal.Account {
	acc := internal.Account{
		Auth: a.Auth,
	}
	acc.Platform, acc.Name, _ = strings.Cut(a.ID, "/")
	return &acc
}

type Mapping struct {
	CalendarID string `db:"calendar_id"`
	SyncKey    string `db:"sync_key"`
	TargetID   string `db:"target_id"`
	UpdatedAt  string `db:"updated_at"`
}

// Run is the persisted summary of a sync run.
type Run struct {
	RunID      string `db:"run_id"`
	Source     string
	Target     string
	Created    int
	Updated    int
	Skipped    int
	Failed     int
	DryRun     bool   `db:"dry_run"`
	FinishedAt string `db:"finished_at"`
}

func (r Run) Finished() time.Time {
	t, _ := time.Parse(time.RFC3339, r.FinishedAt)
	return t
}

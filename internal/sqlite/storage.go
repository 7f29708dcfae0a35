package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/guilherme-santos/calsync/internal"
	"github.com/guilherme-santos/calsync/internal/syncer"
)

const DriverName = "sqlite3"

type Storage struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewStorage(db *sql.DB) (*Storage, error) {
	s := &Storage{
		db:  sqlx.NewDb(db, DriverName),
		now: time.Now,
	}
	if err := s.RunMigrations(context.Background()); err != nil {
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return s, nil
}

func (s Storage) AddAccount(ctx context.Context, account *internal.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, auth) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET auth=?;
	`, account.ID(), account.Auth, account.Auth)
	return err
}

// AccountAuth returns the cached auth of the account, empty if there is none.
func (s Storage) AccountAuth(ctx context.Context, id string) (string, error) {
	var auth string
	err := s.db.GetContext(ctx, &auth, `SELECT auth FROM accounts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
	}
	return auth, err
}

func (s Storage) Accounts(ctx context.Context) ([]*internal.Account, error) {
	var accs []Account
	err := s.db.SelectContext(ctx, &accs, `SELECT id, auth FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	res := make([]*internal.Account, len(accs))
	for i, a := range accs {
		res[i] = a.Convert()
	}
	return res, nil
}

// ClearAccounts drops every cached credential and returns how many there were.
func (s Storage) ClearAccounts(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s Storage) Mappings(ctx context.Context, calendarID string) (map[syncer.Key]string, error) {
	var rows []Mapping
	err := s.db.SelectContext(ctx, &rows, `
		SELECT calendar_id, sync_key, target_id, updated_at
		FROM event_mappings
		WHERE calendar_id = ?
	`, calendarID)
	if err != nil {
		return nil, err
	}
	res := make(map[syncer.Key]string, len(rows))
	for _, m := range rows {
		res[syncer.Key(m.SyncKey)] = m.TargetID
	}
	return res, nil
}

func (s Storage) SaveMapping(ctx context.Context, calendarID string, key syncer.Key, targetID string) error {
	updatedAt := s.now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_mappings (calendar_id, sync_key, target_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(calendar_id, sync_key) DO UPDATE
			SET target_id = ?, updated_at = ?;
	`, calendarID, key.String(), targetID, updatedAt, targetID, updatedAt)
	return err
}

// SaveRun records the summary of r under the source and target account names.
func (s Storage) SaveRun(ctx context.Context, source, target string, r *syncer.Report) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (run_id, source, target, created, updated, skipped, failed, dry_run, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.RunID, source, target, r.Created(), r.Updated(), r.Skipped(), r.Failed(), r.DryRun,
		s.now().UTC().Format(time.RFC3339))
	return err
}

// LastRun returns the most recent run from source to target, nil if none.
func (s Storage) LastRun(ctx context.Context, source, target string) (*Run, error) {
	var r Run
	err := s.db.GetContext(ctx, &r, `
		SELECT run_id, source, target, created, updated, skipped, failed, dry_run, finished_at
		FROM sync_runs
		WHERE source = ? AND target = ?
		ORDER BY finished_at DESC, rowid DESC
		LIMIT 1
	`, source, target)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

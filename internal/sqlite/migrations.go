package sqlite

import "context"

func (s Storage) RunMigrations(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id VARCHAR NOT NULL PRIMARY KEY,
		auth TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS event_mappings (
		calendar_id VARCHAR NOT NULL,
		sync_key VARCHAR NOT NULL,
		target_id VARCHAR NOT NULL,
		updated_at VARCHAR NOT NULL,
		PRIMARY KEY (calendar_id, sync_key)
	)`,
	`CREATE TABLE IF NOT EXISTS sync_runs (
		run_id VARCHAR NOT NULL PRIMARY KEY,
		source VARCHAR NOT NULL,
		target VARCHAR NOT NULL,
		created INTEGER NOT NULL DEFAULT 0,
		updated INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		dry_run BOOLEAN NOT NULL DEFAULT 0,
		finished_at VARCHAR NOT NULL
	)`,
}

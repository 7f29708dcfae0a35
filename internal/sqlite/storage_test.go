package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilherme-santos/calsync/internal"
	"github.com/guilherme-santos/calsync/internal/syncer"
)

func newStorage(t *testing.T) *Storage {
	t.Helper()

	db, err := sql.Open(DriverName, ":memory:")
	require.NoError(t, err)
	// every connection to :memory: opens its own database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := NewStorage(db)
	require.NoError(t, err)
	return s
}

func TestStorage_RunMigrationsTwice(t *testing.T) {
	s := newStorage(t)
	assert.NoError(t, s.RunMigrations(context.Background()))
}

func TestStorage_Accounts(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)

	auth, err := s.AccountAuth(ctx, "m365/work")
	require.NoError(t, err)
	assert.Empty(t, auth)

	require.NoError(t, s.AddAccount(ctx, &internal.Account{Platform: "m365", Name: "work", Auth: "token-1"}))
	require.NoError(t, s.AddAccount(ctx, &internal.Account{Platform: "google", Name: "home", Auth: "token-2"}))
	require.NoError(t, s.AddAccount(ctx, &internal.Account{Platform: "m365", Name: "work", Auth: "token-3"}))

	auth, err = s.AccountAuth(ctx, "m365/work")
	require.NoError(t, err)
	assert.Equal(t, "token-3", auth)

	accs, err := s.Accounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []*internal.Account{
		{Platform: "google", Name: "home", Auth: "token-2"},
		{Platform: "m365", Name: "work", Auth: "token-3"},
	}, accs)

	n, err := s.ClearAccounts(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	accs, err = s.Accounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accs)
}

func TestStorage_Mappings(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)

	m, err := s.Mappings(ctx, "dst")
	require.NoError(t, err)
	assert.Empty(t, m)

	require.NoError(t, s.SaveMapping(ctx, "dst", "k1:a", "t-1"))
	require.NoError(t, s.SaveMapping(ctx, "dst", "k1:b", "t-2"))
	require.NoError(t, s.SaveMapping(ctx, "other", "k1:a", "x-1"))
	require.NoError(t, s.SaveMapping(ctx, "dst", "k1:a", "t-3"))

	m, err = s.Mappings(ctx, "dst")
	require.NoError(t, err)
	assert.Equal(t, map[syncer.Key]string{"k1:a": "t-3", "k1:b": "t-2"}, m)

	m, err = s.Mappings(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, map[syncer.Key]string{"k1:a": "x-1"}, m)
}

func TestStorage_Runs(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)

	now := time.Date(2026, 2, 4, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	r, err := s.LastRun(ctx, "ews/work", "m365/home")
	require.NoError(t, err)
	assert.Nil(t, r)

	first := &syncer.Report{
		RunID: "run-1",
		Outcomes: []syncer.Outcome{
			{Kind: syncer.Created},
			{Kind: syncer.Created},
			{Kind: syncer.Failed},
		},
	}
	require.NoError(t, s.SaveRun(ctx, "ews/work", "m365/home", first))

	now = now.Add(time.Hour)
	second := &syncer.Report{
		RunID:    "run-2",
		DryRun:   true,
		Outcomes: []syncer.Outcome{{Kind: syncer.Skipped, Action: syncer.Create}},
	}
	require.NoError(t, s.SaveRun(ctx, "ews/work", "m365/home", second))

	r, err = s.LastRun(ctx, "ews/work", "m365/home")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "run-2", r.RunID)
	assert.True(t, r.DryRun)
	assert.Equal(t, 1, r.Skipped)
	assert.True(t, now.Equal(r.Finished()))

	r, err = s.LastRun(ctx, "ews/work", "google/home")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestStorage_RunIDIsUnique(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)

	report := &syncer.Report{RunID: "run-1"}
	require.NoError(t, s.SaveRun(ctx, "a", "b", report))
	assert.Error(t, s.SaveRun(ctx, "a", "b", report))
}

func TestAccount_Convert(t *testing.T) {
	acc := Account{ID: "ews/work", Auth: "secret"}.Convert()
	assert.Equal(t, &internal.Account{Platform: "ews", Name: "work", Auth: "secret"}, acc)
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/guilherme-santos/calsync/calendar"
	"github.com/guilherme-santos/calsync/file"
	"github.com/guilherme-santos/calsync/internal"
	"github.com/guilherme-santos/calsync/internal/sqlite"
	"github.com/guilherme-santos/calsync/internal/syncer"
)

// errFailed makes the process exit with 1 once the failures were reported.
var errFailed = errors.New("sync finished with failures")

type flags struct {
	sources       []string
	target        string
	listCalendars bool
	preview       bool
	sync          bool
	dryRun        bool
	clearCache    bool
	lookback      int
	lookahead     int
	date          internal.Date
	startDate     internal.Date
	endDate       internal.Date
	envFile       string
	verbose       bool
}

type app struct {
	flags   flags
	env     *file.Env
	cfg     *file.Config
	db      *sql.DB
	storage *sqlite.Storage
	mux     *calendar.Mux
	logger  *slog.Logger
	out     io.Writer
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "calsync",
		Short: "Copy calendar events from Exchange, Microsoft 365 or Google into one calendar",
		Long: `calsync reads the events of the source accounts configured in sync_config.yaml
and creates or updates them in the target calendar. Events removed from a
source are never deleted from the target.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			defer a.close()
			if err := a.setup(cmd.Context()); err != nil {
				return err
			}
			return a.run(cmd)
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&a.flags.sources, "source", nil, "source account to read from, can be repeated (default: sync.sources)")
	f.StringVar(&a.flags.target, "target", "", "target account to write to (default: sync.target)")
	f.BoolVar(&a.flags.listCalendars, "list-calendars", false, "list the calendars of the source accounts")
	f.BoolVar(&a.flags.preview, "preview", false, "show the events that would be synced")
	f.BoolVar(&a.flags.sync, "sync", false, "sync the source accounts into the target")
	f.BoolVar(&a.flags.dryRun, "dry-run", false, "with --sync, report what would change without writing")
	f.BoolVar(&a.flags.clearCache, "clear-cache", false, "remove every cached credential and exit")
	f.IntVar(&a.flags.lookback, "lookback", -1, "days before today to sync")
	f.IntVar(&a.flags.lookahead, "lookahead", -1, "days after today to sync")
	f.Var(&a.flags.date, "date", "sync a single day (e.g. 2026-02-04)")
	f.Var(&a.flags.startDate, "start-date", "first day of the range to sync")
	f.Var(&a.flags.endDate, "end-date", "last day of the range to sync")
	f.StringVar(&a.flags.envFile, "env-file", ".env", "dotenv file to load")
	cmd.PersistentFlags().BoolVarP(&a.flags.verbose, "verbose", "v", false, "enable debug logging")

	cmd.MarkFlagsMutuallyExclusive("date", "start-date")
	cmd.MarkFlagsMutuallyExclusive("date", "end-date")
	return cmd
}

func (a *app) setup(ctx context.Context) error {
	env, err := file.LoadEnv(a.flags.envFile)
	if err != nil {
		return err
	}
	a.env = env

	level := env.LogLevel
	if a.flags.verbose {
		level = "debug"
	}
	a.logger = internal.NewLogger(os.Stderr, level, env.LogFile)
	slog.SetDefault(a.logger)

	if a.db, err = sql.Open(sqlite.DriverName, env.TokenCachePath); err != nil {
		return fmt.Errorf("opening token cache: %w", err)
	}
	if a.storage, err = sqlite.NewStorage(a.db); err != nil {
		return err
	}

	if a.cfg, err = file.LoadConfig(env.SyncConfig); err != nil {
		return err
	}
	a.cfg.Fill(env)

	a.mux = newMux(a)
	return nil
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("Unable to close token cache", "error", err)
	}
	a.db = nil
}

func (a *app) run(cmd *cobra.Command) error {
	ctx := cmd.Context()

	if a.flags.clearCache {
		accs, err := a.storage.Accounts(ctx)
		if err != nil {
			return fmt.Errorf("reading token cache: %w", err)
		}
		for _, acc := range accs {
			a.logger.Debug("Removing cached credential", "account", acc.ID())
		}
		n, err := a.storage.ClearAccounts(ctx)
		if err != nil {
			return fmt.Errorf("clearing token cache: %w", err)
		}
		a.logger.Info("Token cache cleared", "accounts", n)
		return nil
	}

	if !a.cfg.HasAccounts() {
		return fmt.Errorf("no accounts configured in %s", a.env.SyncConfig)
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	sources, err := a.cfg.Sources(a.flags.sources)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return errors.New("no source accounts specified")
	}
	w, err := a.window()
	if err != nil {
		return err
	}

	switch {
	case a.flags.listCalendars:
		return a.listCalendars(ctx, sources)
	case a.flags.preview:
		return a.previewEvents(ctx, sources, w)
	case a.flags.sync:
		return a.syncEvents(ctx, sources, w)
	}
	return cmd.Help()
}

func (a *app) window() (internal.Window, error) {
	now := time.Now()
	switch {
	case !a.flags.date.IsZero():
		a.logger.Info("Syncing single day", "date", a.flags.date)
		return internal.DayWindow(a.flags.date), nil
	case !a.flags.startDate.IsZero() || !a.flags.endDate.IsZero():
		w := internal.RangeWindow(now, a.flags.startDate, a.flags.endDate)
		if err := w.Validate(); err != nil {
			return w, fmt.Errorf("invalid date range: %w", err)
		}
		a.logger.Info("Syncing date range", "window", w)
		return w, nil
	}

	lookback, lookahead := a.flags.lookback, a.flags.lookahead
	if lookback < 0 {
		lookback = a.cfg.Lookback(a.env)
	}
	if lookahead < 0 {
		lookahead = a.cfg.Lookahead(a.env)
	}
	return internal.SyncWindow(now, lookback, lookahead), nil
}

func (a *app) newSyncer() *syncer.Syncer {
	return syncer.New(a.logger, a.storage)
}

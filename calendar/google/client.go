// Package google reads and writes Google calendars.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	backend "github.com/guilherme-santos/calsync/calendar"
	"github.com/guilherme-santos/calsync/internal"
	"github.com/guilherme-santos/calsync/internal/auth"
)

// SyncKeyProperty is the private extended property holding the sync key.
const SyncKeyProperty = "calsyncKey"

// DefaultCalendar addresses the primary calendar of the account.
const DefaultCalendar = "primary"

type Client struct {
	oauthCfg *oauth2.Config
	store    auth.TokenStore
	account  internal.Account
	svc      *calendar.Service
	limiter  *backend.RateLimiter
	logger   *slog.Logger
}

// NewClient reads the OAuth client of credentialsFile and keeps the token
// of account in store.
func NewClient(credentialsFile string, store auth.TokenStore, account internal.Account, logger *slog.Logger) (*Client, error) {
	credJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("google: reading credentials file: %v", err)
	}
	oauthCfg, err := google.ConfigFromJSON(credJSON, calendar.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("google: parsing credentials file: %v", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		oauthCfg: oauthCfg,
		store:    store,
		account:  account,
		limiter:  backend.NewRateLimiter(5, 10),
		logger:   logger.With("backend", "google"),
	}, nil
}

func (c *Client) ListCalendars(ctx context.Context) ([]*internal.CalendarInfo, error) {
	svc, err := c.calendarSvc(ctx)
	if err != nil {
		return nil, &internal.FetchError{Op: "list calendars", Err: err}
	}

	var (
		cals          []*internal.CalendarInfo
		nextPageToken string
	)
	for {
		var list *calendar.CalendarList
		err := c.limiter.Do(ctx, func() (err error) {
			list, err = svc.CalendarList.List().PageToken(nextPageToken).Context(ctx).Do()
			return wrapErr(err)
		})
		if err != nil {
			return nil, &internal.FetchError{Op: "list calendars", Err: err}
		}
		for _, item := range list.Items {
			cals = append(cals, &internal.CalendarInfo{
				ID:        item.Id,
				Name:      item.Summary,
				IsDefault: item.Primary,
				CanEdit:   item.AccessRole == "owner" || item.AccessRole == "writer",
			})
		}
		nextPageToken = list.NextPageToken
		if nextPageToken == "" {
			return cals, nil
		}
	}
}

func (c *Client) ListEvents(ctx context.Context, calendarID string, w internal.Window) ([]*internal.Event, error) {
	svc, err := c.calendarSvc(ctx)
	if err != nil {
		return nil, &internal.FetchError{Op: "list events", CalendarID: calendarID, Err: err}
	}
	call := svc.Events.
		List(calendarID).
		Context(ctx).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(w.Start.Format(time.RFC3339)).
		TimeMax(w.End.Format(time.RFC3339))

	it := newEventIterator()
	go c.events(ctx, calendarID, call, it.events)

	var events []*internal.Event
	for it.Next() {
		events = append(events, it.Event())
	}
	if err := it.Err(); err != nil {
		return nil, &internal.FetchError{Op: "list events", CalendarID: calendarID, Err: err}
	}
	return events, nil
}

func (c *Client) events(ctx context.Context, calendarID string, call *calendar.EventsListCall, eventCh chan eventOrError) {
	defer close(eventCh)

	var nextPageToken string
	for {
		var events *calendar.Events
		err := c.limiter.Do(ctx, func() (err error) {
			events, err = call.PageToken(nextPageToken).Do()
			return wrapErr(err)
		})
		if err != nil {
			c.logger.Debug("Unable to get list of events", "calendar", calendarID, "error", err)
			eventCh <- eventOrError{err: err}
			return
		}

		for _, item := range events.Items {
			if item.Status == "cancelled" {
				continue
			}
			eventCh <- eventOrError{e: newEvent(calendarID, item)}
		}
		nextPageToken = events.NextPageToken
		if nextPageToken == "" {
			return
		}
	}
}

func (c *Client) CreateEvent(ctx context.Context, calendarID string, e *internal.Event) (string, error) {
	msg := fmt.Sprintf("creating event: %q on %s... ", e.Subject, e.StartsAt)
	defer func() {
		c.logger.Debug(msg)
	}()

	svc, err := c.calendarSvc(ctx)
	if err != nil {
		msg += "❌"
		return "", &internal.WriteError{Op: "create event", CalendarID: calendarID, Err: err}
	}

	var gevent *calendar.Event
	err = c.limiter.Do(ctx, func() (err error) {
		gevent, err = svc.Events.Insert(calendarID, newGoogleEvent(e)).Context(ctx).Do()
		return wrapErr(err)
	})
	if err != nil {
		msg += "❌"
		return "", &internal.WriteError{Op: "create event", CalendarID: calendarID, Err: err}
	}
	msg += "✅"
	return gevent.Id, nil
}

func (c *Client) UpdateEvent(ctx context.Context, calendarID, eventID string, e *internal.Event) error {
	msg := fmt.Sprintf("updating event: %q on %s... ", e.Subject, e.StartsAt)
	defer func() {
		c.logger.Debug(msg)
	}()

	svc, err := c.calendarSvc(ctx)
	if err != nil {
		msg += "❌"
		return &internal.WriteError{Op: "update event", CalendarID: calendarID, EventID: eventID, Err: err}
	}

	err = c.limiter.Do(ctx, func() error {
		_, err := svc.Events.Update(calendarID, eventID, newGoogleEvent(e)).Context(ctx).Do()
		return wrapErr(err)
	})
	if err != nil {
		msg += "❌"
		return &internal.WriteError{Op: "update event", CalendarID: calendarID, EventID: eventID, Err: err}
	}
	msg += "✅"
	return nil
}

// Login runs the OAuth consent in the browser, the redirect is served on
// localhost:8080, and stores the token.
func (c *Client) Login(ctx context.Context) (*oauth2.Token, error) {
	state := fmt.Sprintf("calsync-%d", time.Now().UTC().Nanosecond())
	c.oauthCfg.RedirectURL = "http://localhost:8080/calsync"
	authURL := c.oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(os.Stdout, "\nGo to the following link in your browser\n%s\n", authURL)

	mux := http.NewServeMux()
	server := &http.Server{
		Addr:    ":8080",
		Handler: mux,
	}

	var (
		token   *oauth2.Token
		authErr error
	)

	mux.HandleFunc("/calsync", func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			go server.Shutdown(ctx)
		}()

		query := req.URL.Query()
		if query.Get("state") != state {
			authErr = errors.New("oauth link is not valid")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		token, authErr = c.oauthCfg.Exchange(ctx, query.Get("code"))
		if authErr != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintln(w, "Unable to retrieve token:", authErr)
			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "All good, you can close this window!")
	})

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return nil, err
	}
	if authErr != nil {
		return nil, authErr
	}

	b, err := json.Marshal(token)
	if err != nil {
		return nil, err
	}
	acc := c.account
	acc.Auth = string(b)
	if err := c.store.AddAccount(ctx, &acc); err != nil {
		return nil, fmt.Errorf("google: saving token: %v", err)
	}
	return token, nil
}

func (c *Client) calendarSvc(ctx context.Context) (*calendar.Service, error) {
	if c.svc != nil {
		return c.svc, nil
	}

	raw, err := c.store.AccountAuth(ctx, c.account.ID())
	if err != nil {
		return nil, err
	}
	var tok *oauth2.Token
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &tok); err != nil {
			return nil, err
		}
	}
	if tok == nil {
		if tok, err = c.Login(ctx); err != nil {
			return nil, fmt.Errorf("google: %w: %v", internal.ErrAuthRequired, err)
		}
	}

	c.svc, err = calendar.NewService(ctx, option.WithHTTPClient(c.oauthCfg.Client(context.WithoutCancel(ctx), tok)))
	return c.svc, err
}

func wrapErr(err error) error {
	var gErr *googleapi.Error
	if !errors.As(err, &gErr) {
		return err
	}
	switch {
	case errIsReason(gErr, "rateLimitExceeded"), errIsReason(gErr, "userRateLimitExceeded"), gErr.Code == http.StatusTooManyRequests:
		return &backend.ThrottledError{RetryAfter: backend.ParseRetryAfter(gErr.Header.Get("Retry-After")), Err: err}
	case gErr.Code == http.StatusUnauthorized:
		return fmt.Errorf("google: %w: %v", internal.ErrAuthRequired, err)
	}
	return err
}

func errIsReason(gErr *googleapi.Error, reason string) bool {
	for _, err := range gErr.Errors {
		if err.Reason == reason {
			return true
		}
	}
	return false
}

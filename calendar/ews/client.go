// Package ews reads and writes Exchange calendars through Exchange Web Services.
package ews

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/guilherme-santos/calsync/calendar"
	"github.com/guilherme-santos/calsync/internal"
)

const (
	// DefaultCalendar addresses the primary calendar of the mailbox.
	DefaultCalendar = "calendar"

	maxEntries   = 500
	getItemBatch = 50
)

type Client struct {
	httpClient *http.Client
	url        string
	location   *time.Location
	limiter    *calendar.RateLimiter
	logger     *slog.Logger
}

// NewClient talks to the EWS endpoint at serverURL. httpClient carries the
// authentication, either a cookie transport or an OAuth client. loc is the
// mailbox timezone all-day events are dated in, nil means time.Local.
func NewClient(serverURL string, httpClient *http.Client, loc *time.Location, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		url:        serverURL,
		location:   loc,
		limiter:    calendar.NewRateLimiter(5, 10),
		logger:     logger.With("backend", "ews"),
	}
}

func (c *Client) ListCalendars(ctx context.Context) ([]*internal.CalendarInfo, error) {
	var resp responseEnvelope
	if err := c.call(ctx, findFolderRequest(), &resp); err != nil {
		return nil, &internal.FetchError{Op: "list calendars", Err: err}
	}

	cals := []*internal.CalendarInfo{{
		ID:        DefaultCalendar,
		Name:      "Calendar",
		IsDefault: true,
		CanEdit:   true,
	}}
	for _, m := range resp.Body.FindFolder.Messages {
		if err := m.err(); err != nil {
			return nil, &internal.FetchError{Op: "list calendars", Err: err}
		}
		for _, f := range m.Folders {
			cals = append(cals, &internal.CalendarInfo{
				ID:      f.FolderID.ID,
				Name:    f.DisplayName,
				CanEdit: true,
			})
		}
	}
	return cals, nil
}

// ListEvents finds the items of the window and then loads them in batches,
// FindItem doesn't return bodies.
func (c *Client) ListEvents(ctx context.Context, calendarID string, w internal.Window) ([]*internal.Event, error) {
	ids, err := c.findItems(ctx, calendarID, w)
	if err != nil {
		return nil, &internal.FetchError{Op: "list events", CalendarID: calendarID, Err: err}
	}

	var events []*internal.Event
	for start := 0; start < len(ids); start += getItemBatch {
		end := min(start+getItemBatch, len(ids))

		var resp responseEnvelope
		if err := c.call(ctx, getItemRequest(ids[start:end]), &resp); err != nil {
			return nil, &internal.FetchError{Op: "get events", CalendarID: calendarID, Err: err}
		}
		for _, m := range resp.Body.GetItem.Messages {
			if err := m.err(); err != nil {
				if !itemNotFound(err) {
					return nil, &internal.FetchError{Op: "get events", CalendarID: calendarID, Err: err}
				}
				// Deleted between FindItem and GetItem.
				c.logger.Warn("Event is gone", "calendar", calendarID, "error", err)
				continue
			}
			for _, item := range m.Items {
				if item.IsCancelled {
					continue
				}
				events = append(events, newEvent(calendarID, item, c.location))
			}
		}
	}
	c.logger.Debug("Listed events", "calendar", calendarID, "events", len(events))
	return events, nil
}

// findItems pages through the calendar view by moving its start to the
// last item seen until the server reports the range is complete.
func (c *Client) findItems(ctx context.Context, calendarID string, w internal.Window) ([]string, error) {
	var (
		ids   []string
		seen  = make(map[string]bool)
		start = w.Start
	)
	for {
		var resp responseEnvelope
		req := findItemRequest(calendarID, formatTime(start), formatTime(w.End), maxEntries)
		if err := c.call(ctx, req, &resp); err != nil {
			return nil, err
		}

		complete, added := true, 0
		for _, m := range resp.Body.FindItem.Messages {
			if err := m.err(); err != nil {
				return nil, err
			}
			complete = complete && m.RootFolder.IncludesLastItemInRange

			for _, item := range m.RootFolder.Items {
				if seen[item.ItemID.ID] {
					continue
				}
				seen[item.ItemID.ID] = true
				ids = append(ids, item.ItemID.ID)
				added++

				if t := parseTime(item.Start); t.After(start) {
					start = t
				}
			}
		}
		if complete || added == 0 {
			return ids, nil
		}
	}
}

func (c *Client) CreateEvent(ctx context.Context, calendarID string, e *internal.Event) (string, error) {
	req, err := createItemRequest(calendarID, newEWSItem(e, c.location))
	if err != nil {
		return "", &internal.WriteError{Op: "create event", CalendarID: calendarID, Err: err}
	}

	var resp responseEnvelope
	err = c.call(ctx, req, &resp)
	if err == nil {
		err = firstErr(resp.Body.CreateItem.Messages)
	}
	if err != nil {
		c.logger.Debug(fmt.Sprintf("creating event: %q on %s... ❌", e.Subject, e.StartsAt))
		return "", &internal.WriteError{Op: "create event", CalendarID: calendarID, Err: err}
	}
	c.logger.Debug(fmt.Sprintf("creating event: %q on %s... ✅", e.Subject, e.StartsAt))

	for _, m := range resp.Body.CreateItem.Messages {
		for _, item := range m.Items {
			return item.ItemID.ID, nil
		}
	}
	return "", nil
}

func (c *Client) UpdateEvent(ctx context.Context, calendarID, eventID string, e *internal.Event) error {
	req, err := updateItemRequest(eventID, newEWSItem(e, c.location))
	if err != nil {
		return &internal.WriteError{Op: "update event", CalendarID: calendarID, EventID: eventID, Err: err}
	}

	var resp responseEnvelope
	err = c.call(ctx, req, &resp)
	if err == nil {
		err = firstErr(resp.Body.UpdateItem.Messages)
	}
	if err != nil {
		c.logger.Debug(fmt.Sprintf("updating event: %q on %s... ❌", e.Subject, e.StartsAt))
		return &internal.WriteError{Op: "update event", CalendarID: calendarID, EventID: eventID, Err: err}
	}
	c.logger.Debug(fmt.Sprintf("updating event: %q on %s... ✅", e.Subject, e.StartsAt))
	return nil
}

// call posts a SOAP request and decodes the envelope into resp, retrying
// while the server is busy.
func (c *Client) call(ctx context.Context, body []byte, resp *responseEnvelope) error {
	return c.limiter.Do(ctx, func() error {
		*resp = responseEnvelope{}
		if err := c.post(ctx, body, resp); err != nil {
			return err
		}
		for _, m := range allMessages(resp) {
			if rerr, ok := m.err().(*responseError); ok && rerr.throttled() {
				return &calendar.ThrottledError{
					RetryAfter: time.Duration(rerr.BackOffMillis) * time.Millisecond,
					Err:        rerr,
				}
			}
		}
		return nil
	})
}

func (c *Client) post(ctx context.Context, body []byte, resp *responseEnvelope) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ews: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ews: sending request: %w", err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return fmt.Errorf("ews: %s: %w", res.Status, internal.ErrAuthRequired)
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode == http.StatusServiceUnavailable:
		return &calendar.ThrottledError{
			RetryAfter: calendar.ParseRetryAfter(res.Header.Get("Retry-After")),
			Err:        fmt.Errorf("ews: %s", res.Status),
		}
	}

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("ews: reading response body: %w", err)
	}
	if err := xml.Unmarshal(b, resp); err != nil {
		// A login page instead of a SOAP envelope means the session expired.
		return fmt.Errorf("ews: unmarshaling response (%s): %v: %w", res.Status, err, internal.ErrAuthRequired)
	}
	if f := resp.Body.Fault; f != nil {
		return fmt.Errorf("ews: %s: %s", f.Code, f.String)
	}
	if res.StatusCode >= 300 {
		return fmt.Errorf("ews: unexpected status %s", res.Status)
	}
	return nil
}

func allMessages(resp *responseEnvelope) []responseMessage {
	var res []responseMessage
	for _, m := range resp.Body.FindFolder.Messages {
		res = append(res, m.responseMessage)
	}
	for _, m := range resp.Body.FindItem.Messages {
		res = append(res, m.responseMessage)
	}
	for _, list := range [][]itemsMessage{
		resp.Body.GetItem.Messages,
		resp.Body.CreateItem.Messages,
		resp.Body.UpdateItem.Messages,
	} {
		for _, m := range list {
			res = append(res, m.responseMessage)
		}
	}
	return res
}

func firstErr(msgs []itemsMessage) error {
	for _, m := range msgs {
		if err := m.err(); err != nil {
			return err
		}
	}
	return nil
}

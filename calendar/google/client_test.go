package google

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	backend "github.com/guilherme-santos/calsync/calendar"
	"github.com/guilherme-santos/calsync/internal"
)

type recordedRequest struct {
	method string
	path   string
	query  map[string][]string
	body   map[string]any
}

// newTestClient returns a client whose calendar service talks to handler.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := calendar.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)

	return &Client{
		svc:     svc,
		limiter: backend.NewRateLimiter(1000, 10),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

var testWindow = internal.Window{
	Start: time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC),
}

func TestClient_ListEvents(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, recordedRequest{method: r.Method, path: r.URL.Path, query: r.URL.Query()})
		mu.Unlock()

		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, map[string]any{
				"items": []map[string]any{
					{"id": "g-1", "summary": "Standup", "status": "confirmed",
						"start": map[string]string{"dateTime": "2026-02-04T09:00:00Z"},
						"end":   map[string]string{"dateTime": "2026-02-04T09:15:00Z"}},
					{"id": "g-2", "summary": "Gone", "status": "cancelled"},
				},
				"nextPageToken": "page-2",
			})
			return
		}
		writeJSON(w, map[string]any{
			"items": []map[string]any{
				{"id": "g-3", "summary": "Review", "status": "confirmed",
					"start": map[string]string{"dateTime": "2026-02-05T14:00:00Z"},
					"end":   map[string]string{"dateTime": "2026-02-05T15:00:00Z"}},
			},
		})
	})

	events, err := c.ListEvents(context.Background(), DefaultCalendar, testWindow)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "g-1", events[0].ID)
	assert.Equal(t, "g-3", events[1].ID)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requests, 2)
	assert.Equal(t, "/calendars/primary/events", requests[0].path)
	assert.Equal(t, []string{"true"}, requests[0].query["singleEvents"])
	assert.Equal(t, []string{"2026-02-02T00:00:00Z"}, requests[0].query["timeMin"])
	assert.Equal(t, []string{"2026-02-09T00:00:00Z"}, requests[0].query["timeMax"])
	assert.Equal(t, []string{"page-2"}, requests[1].query["pageToken"])
}

func TestClient_ListEventsUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"code":401,"message":"Invalid Credentials"}}`)
	})

	_, err := c.ListEvents(context.Background(), DefaultCalendar, testWindow)
	assert.True(t, internal.IsFetchError(err))
	assert.ErrorIs(t, err, internal.ErrAuthRequired)
}

func TestClient_RetriesRateLimitedCalls(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"error":{"code":403,"message":"Rate Limit Exceeded","errors":[{"reason":"rateLimitExceeded"}]}}`)
			return
		}
		writeJSON(w, map[string]any{"id": "g-new"})
	})
	id, err := c.CreateEvent(context.Background(), DefaultCalendar, &internal.Event{
		Subject:  "Standup",
		StartsAt: testWindow.Start,
		EndsAt:   testWindow.Start.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "g-new", id)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClient_CreateAndUpdateEvent(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		mu.Lock()
		requests = append(requests, recordedRequest{method: r.Method, path: r.URL.Path, body: body})
		mu.Unlock()

		writeJSON(w, map[string]any{"id": "g-new"})
	})

	e := &internal.Event{
		Subject:  "Standup",
		StartsAt: time.Date(2026, 2, 4, 9, 0, 0, 0, time.UTC),
		EndsAt:   time.Date(2026, 2, 4, 9, 15, 0, 0, time.UTC),
		SyncKey:  "k1:abc",
	}
	id, err := c.CreateEvent(context.Background(), DefaultCalendar, e)
	require.NoError(t, err)
	assert.Equal(t, "g-new", id)

	require.NoError(t, c.UpdateEvent(context.Background(), DefaultCalendar, "g-new", e))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requests, 2)
	assert.Equal(t, http.MethodPost, requests[0].method)
	assert.Equal(t, "/calendars/primary/events", requests[0].path)
	assert.Equal(t, "Standup", requests[0].body["summary"])
	assert.Equal(t, map[string]any{"private": map[string]any{SyncKeyProperty: "k1:abc"}}, requests[0].body["extendedProperties"])

	assert.Equal(t, "/calendars/primary/events/g-new", requests[1].path)
}

func TestWrapErr(t *testing.T) {
	throttled := wrapErr(&googleapi.Error{
		Code:   http.StatusForbidden,
		Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}},
		Header: http.Header{"Retry-After": []string{"12"}},
	})
	var te *backend.ThrottledError
	require.ErrorAs(t, throttled, &te)
	assert.Equal(t, 12*time.Second, te.RetryAfter)

	assert.ErrorIs(t, wrapErr(&googleapi.Error{Code: http.StatusTooManyRequests}), internal.ErrThrottled)
	assert.ErrorIs(t, wrapErr(&googleapi.Error{Code: http.StatusUnauthorized}), internal.ErrAuthRequired)

	notFound := &googleapi.Error{Code: http.StatusNotFound}
	assert.Same(t, notFound, wrapErr(notFound))

	boom := errors.New("boom")
	assert.Same(t, boom, wrapErr(boom))
}

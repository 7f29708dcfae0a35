// Package m365 reads and writes Microsoft 365 calendars through Microsoft Graph.
package m365

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	abs "github.com/microsoft/kiota-abstractions-go"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	msgraphcore "github.com/microsoftgraph/msgraph-sdk-go-core"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"github.com/microsoftgraph/msgraph-sdk-go/users"
	"golang.org/x/oauth2"

	"github.com/guilherme-santos/calsync/calendar"
	"github.com/guilherme-santos/calsync/internal"
)

const (
	graphBaseURL = "https://graph.microsoft.com/v1.0"
	pageSize     = 100

	// DefaultCalendar addresses the primary calendar of the mailbox.
	DefaultCalendar = "default"
)

var graphScopes = []string{"https://graph.microsoft.com/.default"}

// DelegatedScopes are requested by the device code flow.
var DelegatedScopes = []string{
	"https://graph.microsoft.com/Calendars.ReadWrite",
	"https://graph.microsoft.com/MailboxSettings.ReadWrite",
	"offline_access",
}

type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// Mailbox is required with a client secret, the device code flow
	// always works on the signed-in user.
	Mailbox  string
	ReadOnly bool
	// Location is the mailbox timezone all-day events are dated in.
	// Nil means time.Local.
	Location *time.Location
}

type Client struct {
	graph    *msgraphsdk.GraphServiceClient
	userPath string
	mailbox  string
	readOnly bool
	location *time.Location
	limiter  *calendar.RateLimiter
	logger   *slog.Logger
}

// NewClient authenticates with the client secret of cfg.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Mailbox == "" {
		return nil, errors.New("m365: mailbox is required with a client secret")
	}
	cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("m365: creating credential: %w", err)
	}
	return newClient(cred, cfg, logger)
}

// NewDeviceClient authenticates as the signed-in user of ts.
func NewDeviceClient(ts oauth2.TokenSource, cfg Config, logger *slog.Logger) (*Client, error) {
	cfg.Mailbox = ""
	return newClient(tokenCredential{src: ts}, cfg, logger)
}

func newClient(cred azcore.TokenCredential, cfg Config, logger *slog.Logger) (*Client, error) {
	graph, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, graphScopes)
	if err != nil {
		return nil, fmt.Errorf("m365: creating graph client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		graph:    graph,
		userPath: "me",
		mailbox:  cfg.Mailbox,
		readOnly: cfg.ReadOnly,
		location: cfg.Location,
		limiter:  calendar.NewRateLimiter(10, 15),
		logger:   logger.With("backend", "m365"),
	}
	if c.location == nil {
		c.location = time.Local
	}
	if cfg.Mailbox != "" {
		c.userPath = "users/" + url.PathEscape(cfg.Mailbox)
	}
	return c, nil
}

func (c *Client) user() *users.UserItemRequestBuilder {
	if c.mailbox == "" {
		return c.graph.Me()
	}
	return c.graph.Users().ByUserId(c.mailbox)
}

func (c *Client) ListCalendars(ctx context.Context) ([]*internal.CalendarInfo, error) {
	var resp models.CalendarCollectionResponseable
	err := c.limiter.Do(ctx, func() (err error) {
		resp, err = c.user().Calendars().Get(ctx, nil)
		return wrapErr(err)
	})
	if err != nil {
		return nil, &internal.FetchError{Op: "list calendars", Err: err}
	}

	var cals []*internal.CalendarInfo
	for _, cal := range resp.GetValue() {
		info := &internal.CalendarInfo{
			ID:        deref(cal.GetId()),
			Name:      deref(cal.GetName()),
			IsDefault: deref(cal.GetIsDefaultCalendar()),
			CanEdit:   deref(cal.GetCanEdit()),
		}
		if o := cal.GetOwner(); o != nil {
			info.Owner = deref(o.GetAddress())
		}
		cals = append(cals, info)
	}
	return cals, nil
}

func (c *Client) ListEvents(ctx context.Context, calendarID string, w internal.Window) ([]*internal.Event, error) {
	headers := abs.NewRequestHeaders()
	headers.Add("Prefer", `outlook.body-content-type="text"`)
	headers.Add("Prefer", `outlook.timezone="UTC"`)

	// The raw URL carries the extended property expansion, which the typed
	// calendarView query parameters can't express.
	builder := users.NewItemCalendarsItemCalendarViewRequestBuilder(c.calendarViewURL(calendarID, w), c.graph.GetAdapter())

	var resp models.EventCollectionResponseable
	err := c.limiter.Do(ctx, func() (err error) {
		resp, err = builder.Get(ctx, &users.ItemCalendarsItemCalendarViewRequestBuilderGetRequestConfiguration{
			Headers: headers,
		})
		return wrapErr(err)
	})
	if err != nil {
		return nil, &internal.FetchError{Op: "list events", CalendarID: calendarID, Err: err}
	}

	it, err := msgraphcore.NewPageIterator[models.Eventable](resp, c.graph.GetAdapter(), models.CreateEventCollectionResponseFromDiscriminatorValue)
	if err != nil {
		return nil, &internal.FetchError{Op: "list events", CalendarID: calendarID, Err: err}
	}
	it.SetHeaders(headers)

	var events []*internal.Event
	err = it.Iterate(ctx, func(ev models.Eventable) bool {
		if deref(ev.GetIsCancelled()) {
			return true
		}
		events = append(events, newEvent(calendarID, ev, c.location))
		return true
	})
	if err != nil {
		return nil, &internal.FetchError{Op: "list events", CalendarID: calendarID, Err: wrapErr(err)}
	}
	c.logger.Debug("Listed events", "calendar", calendarID, "events", len(events))
	return events, nil
}

func (c *Client) calendarViewURL(calendarID string, w internal.Window) string {
	q := url.Values{}
	q.Set("startDateTime", w.Start.UTC().Format("2006-01-02T15:04:05Z"))
	q.Set("endDateTime", w.End.UTC().Format("2006-01-02T15:04:05Z"))
	q.Set("$top", fmt.Sprint(pageSize))
	q.Set("$expand", fmt.Sprintf("singleValueExtendedProperties($filter=id eq '%s')", SyncKeyProperty))

	path := "/calendar"
	if calendarID != "" && calendarID != DefaultCalendar {
		path = "/calendars/" + url.PathEscape(calendarID)
	}
	return graphBaseURL + "/" + c.userPath + path + "/calendarView?" + q.Encode()
}

func (c *Client) CreateEvent(ctx context.Context, calendarID string, e *internal.Event) (string, error) {
	if c.readOnly {
		return "", &internal.WriteError{Op: "create event", CalendarID: calendarID, Err: internal.ErrNotSupported}
	}

	var created models.Eventable
	err := c.limiter.Do(ctx, func() (err error) {
		if calendarID == "" || calendarID == DefaultCalendar {
			created, err = c.user().Calendar().Events().Post(ctx, newGraphEvent(e), nil)
		} else {
			created, err = c.user().Calendars().ByCalendarId(calendarID).Events().Post(ctx, newGraphEvent(e), nil)
		}
		return wrapErr(err)
	})
	if err != nil {
		c.logger.Debug(fmt.Sprintf("creating event: %q on %s... ❌", e.Subject, e.StartsAt))
		return "", &internal.WriteError{Op: "create event", CalendarID: calendarID, Err: err}
	}
	c.logger.Debug(fmt.Sprintf("creating event: %q on %s... ✅", e.Subject, e.StartsAt))
	return deref(created.GetId()), nil
}

func (c *Client) UpdateEvent(ctx context.Context, calendarID, eventID string, e *internal.Event) error {
	if c.readOnly {
		return &internal.WriteError{Op: "update event", CalendarID: calendarID, EventID: eventID, Err: internal.ErrNotSupported}
	}

	err := c.limiter.Do(ctx, func() error {
		_, err := c.user().Events().ByEventId(eventID).Patch(ctx, newGraphEvent(e), nil)
		return wrapErr(err)
	})
	if err != nil {
		c.logger.Debug(fmt.Sprintf("updating event: %q on %s... ❌", e.Subject, e.StartsAt))
		return &internal.WriteError{Op: "update event", CalendarID: calendarID, EventID: eventID, Err: err}
	}
	c.logger.Debug(fmt.Sprintf("updating event: %q on %s... ✅", e.Subject, e.StartsAt))
	return nil
}

// EnsureCategory creates the master category name unless the mailbox has
// it already, and recolors it when its color differs. Color is a name such
// as "blue" or a preset such as "preset7", empty means blue.
func (c *Client) EnsureCategory(ctx context.Context, name, color string) error {
	if name == "" {
		return nil
	}
	preset, err := categoryColor(color)
	if err != nil {
		return fmt.Errorf("m365: %w", err)
	}

	var resp models.OutlookCategoryCollectionResponseable
	err = c.limiter.Do(ctx, func() (err error) {
		resp, err = c.user().Outlook().MasterCategories().Get(ctx, nil)
		return wrapErr(err)
	})
	if err != nil {
		return fmt.Errorf("m365: listing categories: %w", err)
	}

	cat := models.NewOutlookCategory()
	cat.SetColor(&preset)

	for _, existing := range resp.GetValue() {
		if !strings.EqualFold(deref(existing.GetDisplayName()), name) {
			continue
		}
		if cur := existing.GetColor(); cur != nil && *cur == preset {
			return nil
		}
		id := deref(existing.GetId())
		err = c.limiter.Do(ctx, func() error {
			_, err := c.user().Outlook().MasterCategories().ByOutlookCategoryId(id).Patch(ctx, cat, nil)
			return wrapErr(err)
		})
		if err != nil {
			return fmt.Errorf("m365: updating category %q: %w", name, err)
		}
		c.logger.Info("Updated category color", "category", name, "color", preset.String())
		return nil
	}

	cat.SetDisplayName(ptr(name))
	err = c.limiter.Do(ctx, func() error {
		_, err := c.user().Outlook().MasterCategories().Post(ctx, cat, nil)
		return wrapErr(err)
	})
	if err != nil {
		return fmt.Errorf("m365: creating category %q: %w", name, err)
	}
	c.logger.Info("Created category", "category", name, "color", preset.String())
	return nil
}

const defaultCategoryColor = "blue"

var categoryColors = map[string]string{
	"red":           "preset0",
	"orange":        "preset1",
	"brown":         "preset2",
	"yellow":        "preset3",
	"green":         "preset4",
	"teal":          "preset5",
	"olive":         "preset6",
	"blue":          "preset7",
	"purple":        "preset8",
	"cranberry":     "preset9",
	"steel":         "preset10",
	"darksteel":     "preset11",
	"gray":          "preset12",
	"darkgray":      "preset13",
	"black":         "preset14",
	"darkred":       "preset15",
	"darkorange":    "preset16",
	"darkyellow":    "preset17",
	"darkgreen":     "preset18",
	"darkteal":      "preset19",
	"darkolive":     "preset20",
	"darkblue":      "preset21",
	"darkpurple":    "preset22",
	"darkcranberry": "preset23",
}

// categoryColor resolves a color name or preset to a Graph category color.
func categoryColor(name string) (models.CategoryColor, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = defaultCategoryColor
	}
	if preset, ok := categoryColors[name]; ok {
		name = preset
	}
	v, err := models.ParseCategoryColor(name)
	if err != nil {
		return models.NONE_CATEGORYCOLOR, err
	}
	if v == nil {
		return models.NONE_CATEGORYCOLOR, fmt.Errorf("unknown category color %q", name)
	}
	return *v.(*models.CategoryColor), nil
}

// wrapErr turns throttling responses into *calendar.ThrottledError so the
// limiter retries them.
func wrapErr(err error) error {
	var oerr *odataerrors.ODataError
	if !errors.As(err, &oerr) {
		return err
	}
	msg := oerr.Error()
	if main := oerr.GetErrorEscaped(); main != nil {
		msg = deref(main.GetCode()) + ": " + deref(main.GetMessage())
	}
	err = fmt.Errorf("graph: %s", msg)

	switch oerr.ResponseStatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		var retryAfter string
		if oerr.ResponseHeaders != nil {
			if v := oerr.ResponseHeaders.Get("Retry-After"); len(v) > 0 {
				retryAfter = v[0]
			}
		}
		return &calendar.ThrottledError{RetryAfter: calendar.ParseRetryAfter(retryAfter), Err: err}
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", internal.ErrAuthRequired, err)
	}
	return err
}

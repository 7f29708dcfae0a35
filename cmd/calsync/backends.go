package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/guilherme-santos/calsync/calendar"
	"github.com/guilherme-santos/calsync/calendar/ews"
	"github.com/guilherme-santos/calsync/calendar/google"
	"github.com/guilherme-santos/calsync/calendar/m365"
	"github.com/guilherme-santos/calsync/file"
	"github.com/guilherme-santos/calsync/internal"
	"github.com/guilherme-santos/calsync/internal/auth"
)

var ewsScopes = []string{
	"https://outlook.office365.com/EWS.AccessAsUser.All",
	"offline_access",
}

var defaultCalendars = map[string]string{
	file.TypeEWS:    ews.DefaultCalendar,
	file.TypeM365:   m365.DefaultCalendar,
	file.TypeGoogle: google.DefaultCalendar,
}

func newMux(a *app) *calendar.Mux {
	mux := calendar.NewMux()
	mux.Register(file.TypeEWS, a.openEWS)
	mux.Register(file.TypeM365, a.openM365)
	mux.Register(file.TypeGoogle, a.openGoogle)
	return mux
}

func (a *app) open(ctx context.Context, acc *file.AccountConfig) (internal.ReadWriter, error) {
	rw, err := a.mux.Open(ctx, &internal.Account{Platform: acc.Platform(), Name: acc.Name})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", acc.Name, err)
	}
	return rw, nil
}

func calendarID(acc *file.AccountConfig) string {
	if acc.CalendarID != "" {
		return acc.CalendarID
	}
	return defaultCalendars[acc.Platform()]
}

func (a *app) accountConfig(account *internal.Account) (*file.AccountConfig, error) {
	acc, ok := a.cfg.Accounts[account.Name]
	if !ok {
		return nil, fmt.Errorf("unknown account %q", account.Name)
	}
	return acc, nil
}

func (a *app) deviceFlow(account *internal.Account, tenantID, clientID string, scopes []string) *auth.DeviceFlow {
	if tenantID == "" {
		tenantID = "common"
	}
	return &auth.DeviceFlow{
		Config: &oauth2.Config{
			ClientID: clientID,
			Endpoint: microsoft.AzureADEndpoint(tenantID),
			Scopes:   scopes,
		},
		Store:   a.storage,
		Account: *account,
		Out:     a.out,
	}
}

func (a *app) openEWS(ctx context.Context, account *internal.Account) (internal.ReadWriter, error) {
	acc, err := a.accountConfig(account)
	if err != nil {
		return nil, err
	}
	if acc.ServerURL == "" {
		return nil, fmt.Errorf("ews: account %q has no server_url", acc.Name)
	}
	loc, err := acc.Location()
	if err != nil {
		return nil, err
	}

	var httpClient *http.Client
	if acc.UsesCookies() {
		cookies, err := auth.ReadCookieFile(acc.CookieFile, acc.RequiredCookies)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", internal.ErrAuthRequired, err)
		}
		httpClient = &http.Client{Transport: &auth.CookieTransport{Cookies: cookies}}
	} else {
		ts, err := a.deviceFlow(account, acc.TenantID, acc.ClientID, ewsScopes).TokenSource(ctx)
		if err != nil {
			return nil, err
		}
		httpClient = oauth2.NewClient(context.WithoutCancel(ctx), ts)
	}
	return ews.NewClient(ewsEndpoint(acc.ServerURL), httpClient, loc, a.logger.With("account", acc.Name)), nil
}

func ewsEndpoint(serverURL string) string {
	serverURL = strings.TrimRight(serverURL, "/")
	if strings.HasSuffix(strings.ToLower(serverURL), ".asmx") {
		return serverURL
	}
	return serverURL + "/EWS/Exchange.asmx"
}

func (a *app) openM365(ctx context.Context, account *internal.Account) (internal.ReadWriter, error) {
	acc, err := a.accountConfig(account)
	if err != nil {
		return nil, err
	}
	loc, err := acc.Location()
	if err != nil {
		return nil, err
	}
	cfg := m365.Config{
		TenantID:     acc.TenantID,
		ClientID:     acc.ClientID,
		ClientSecret: acc.ClientSecret,
		Mailbox:      acc.PrimaryEmail,
		ReadOnly:     acc.Type == file.TypeM365Read,
		Location:     loc,
	}
	logger := a.logger.With("account", acc.Name)

	var c *m365.Client
	if cfg.ClientSecret != "" {
		c, err = m365.NewClient(cfg, logger)
	} else {
		ts, terr := a.deviceFlow(account, acc.TenantID, acc.ClientID, m365.DelegatedScopes).TokenSource(ctx)
		if terr != nil {
			return nil, terr
		}
		c, err = m365.NewDeviceClient(ts, cfg, logger)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (a *app) openGoogle(_ context.Context, account *internal.Account) (internal.ReadWriter, error) {
	acc, err := a.accountConfig(account)
	if err != nil {
		return nil, err
	}
	c, err := google.NewClient(acc.CredentialsFile, a.storage, *account, a.logger.With("account", acc.Name))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Package file loads the calsync configuration from the environment and
// from the sync configuration file.
package file

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const (
	TypeEWS         = "ews"
	TypeEWSCookie   = "ews_cookie"
	TypeEWSSelenium = "ews_selenium"
	TypeM365        = "m365"
	TypeM365Read    = "m365_read"
	TypeGoogle      = "google"
)

var accountTypes = []string{TypeEWS, TypeEWSCookie, TypeEWSSelenium, TypeM365, TypeM365Read, TypeGoogle}

type AccountConfig struct {
	Name string `yaml:"-"`

	Type            string   `yaml:"type"`
	ServerURL       string   `yaml:"server_url"`
	PrimaryEmail    string   `yaml:"primary_email"`
	TenantID        string   `yaml:"tenant_id"`
	ClientID        string   `yaml:"client_id"`
	ClientSecret    string   `yaml:"client_secret"`
	AuthMethod      string   `yaml:"auth_method"`
	CookieFile      string   `yaml:"cookie_file"`
	RequiredCookies []string `yaml:"required_cookies"`
	CalendarID      string   `yaml:"calendar_id"`
	CredentialsFile string   `yaml:"credentials_file"`
	// Timezone is the IANA zone of the mailbox, the local zone when empty.
	Timezone string `yaml:"timezone"`

	Prefix      string   `yaml:"prefix"`
	Category    string   `yaml:"category"`
	Color       string   `yaml:"color"`
	IncludeDays []string `yaml:"include_days"`
	ExcludeDays []string `yaml:"exclude_days"`
}

// UsesCookies reports whether the account signs in with a browser cookie file.
func (a *AccountConfig) UsesCookies() bool {
	switch a.Type {
	case TypeEWSCookie, TypeEWSSelenium:
		return true
	case TypeEWS:
		return a.AuthMethod == "cookie" || a.AuthMethod == "selenium"
	}
	return false
}

func (a *AccountConfig) Platform() string {
	switch a.Type {
	case TypeEWS, TypeEWSCookie, TypeEWSSelenium:
		return TypeEWS
	case TypeM365, TypeM365Read:
		return TypeM365
	}
	return a.Type
}

func (a *AccountConfig) Days() (include, exclude []time.Weekday, err error) {
	if include, err = ParseWeekdays(a.IncludeDays); err != nil {
		return nil, nil, fmt.Errorf("account %q: include_days: %w", a.Name, err)
	}
	if exclude, err = ParseWeekdays(a.ExcludeDays); err != nil {
		return nil, nil, fmt.Errorf("account %q: exclude_days: %w", a.Name, err)
	}
	return include, exclude, nil
}

// Location returns the zone all-day dates and day filters of the account are
// evaluated in.
func (a *AccountConfig) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, fmt.Errorf("account %q: timezone: %w", a.Name, err)
	}
	return loc, nil
}

type SyncSection struct {
	Sources       []string `yaml:"sources"`
	Target        string   `yaml:"target"`
	LookbackDays  *int     `yaml:"lookback_days"`
	LookaheadDays *int     `yaml:"lookahead_days"`
}

type Config struct {
	Accounts     map[string]*AccountConfig `yaml:"accounts"`
	Sync         SyncSection               `yaml:"sync"`
	SkipSubjects []string                  `yaml:"skip_subjects"`
}

// LoadConfig reads the sync configuration at path. A missing file yields
// an empty configuration.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseConfig(b)
}

func ParseConfig(b []byte) (*Config, error) {
	cfg := NewConfig()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parsing sync config: %w", err)
	}
	if cfg.Accounts == nil {
		cfg.Accounts = make(map[string]*AccountConfig)
	}
	for name, acc := range cfg.Accounts {
		if acc == nil {
			acc = &AccountConfig{}
			cfg.Accounts[name] = acc
		}
		acc.Name = name
		if acc.Type == "" {
			acc.Type = TypeM365
		}
		if acc.UsesCookies() {
			if acc.CookieFile == "" {
				acc.CookieFile = ".ews_cookies_" + name + ".json"
			}
			if acc.RequiredCookies == nil {
				acc.RequiredCookies = []string{"MRHSession"}
			}
		}
	}
	for i, s := range cfg.SkipSubjects {
		cfg.SkipSubjects[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return cfg, nil
}

func NewConfig() *Config {
	return &Config{
		Accounts: make(map[string]*AccountConfig),
	}
}

func (c *Config) HasAccounts() bool {
	return len(c.Accounts) > 0
}

func (c *Config) Validate() error {
	var errs []error
	for _, name := range c.accountNames() {
		acc := c.Accounts[name]
		if !slices.Contains(accountTypes, acc.Type) {
			errs = append(errs, fmt.Errorf("account %q: unknown type %q", name, acc.Type))
		}
		if _, _, err := acc.Days(); err != nil {
			errs = append(errs, err)
		}
		if _, err := acc.Location(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, name := range c.Sync.Sources {
		if _, ok := c.Accounts[name]; !ok {
			errs = append(errs, fmt.Errorf("sync: unknown source account %q", name))
		}
	}
	if c.Sync.Target != "" {
		if acc, ok := c.Accounts[c.Sync.Target]; !ok {
			errs = append(errs, fmt.Errorf("sync: unknown target account %q", c.Sync.Target))
		} else if acc.Type == TypeM365Read {
			errs = append(errs, fmt.Errorf("sync: target account %q is read only", c.Sync.Target))
		}
	}
	return errors.Join(errs...)
}

// Sources returns the accounts to read from: names when given, the
// configured sources otherwise.
func (c *Config) Sources(names []string) ([]*AccountConfig, error) {
	if len(names) == 0 {
		names = c.Sync.Sources
	}
	res := make([]*AccountConfig, 0, len(names))
	for _, name := range names {
		acc, ok := c.Accounts[name]
		if !ok {
			return nil, fmt.Errorf("unknown source account %q", name)
		}
		res = append(res, acc)
	}
	return res, nil
}

// Destination returns the account to write to: name when given, the
// configured target otherwise.
func (c *Config) Destination(name string) (*AccountConfig, error) {
	if name == "" {
		name = c.Sync.Target
	}
	if name == "" {
		return nil, errors.New("no target account configured")
	}
	acc, ok := c.Accounts[name]
	if !ok {
		return nil, fmt.Errorf("unknown target account %q", name)
	}
	return acc, nil
}

// Fill sets the account fields the file leaves empty from env.
func (c *Config) Fill(env *Env) {
	for _, acc := range c.Accounts {
		switch acc.Platform() {
		case TypeEWS:
			setDefault(&acc.ServerURL, env.EWSServerURL)
			setDefault(&acc.PrimaryEmail, env.EWSPrimaryEmail)
			setDefault(&acc.ClientID, env.EWSClientID)
			setDefault(&acc.TenantID, env.EWSTenantID)
			if env.EWSCookieFile != "" && acc.CookieFile == ".ews_cookies_"+acc.Name+".json" {
				acc.CookieFile = env.EWSCookieFile
			}
		case TypeM365:
			setDefault(&acc.TenantID, env.M365TenantID)
			setDefault(&acc.ClientID, env.M365ClientID)
			setDefault(&acc.ClientSecret, env.M365ClientSecret)
		case TypeGoogle:
			setDefault(&acc.CredentialsFile, env.GoogleCredentialsFile)
		}
	}
}

// Lookback and Lookahead prefer the file over env.
func (c *Config) Lookback(env *Env) int {
	if c.Sync.LookbackDays != nil {
		return *c.Sync.LookbackDays
	}
	return env.LookbackDays
}

func (c *Config) Lookahead(env *Env) int {
	if c.Sync.LookaheadDays != nil {
		return *c.Sync.LookaheadDays
	}
	return env.LookaheadDays
}

func (c *Config) accountNames() []string {
	names := make([]string, 0, len(c.Accounts))
	for name := range c.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,

	// Numbered from Monday.
	"0": time.Monday, "1": time.Tuesday, "2": time.Wednesday, "3": time.Thursday,
	"4": time.Friday, "5": time.Saturday, "6": time.Sunday,
}

// ParseWeekdays accepts day names ("mon", "monday") and numbers from 0 for
// Monday to 6 for Sunday.
func ParseWeekdays(days []string) ([]time.Weekday, error) {
	var res []time.Weekday
	for _, d := range days {
		wd, ok := weekdays[strings.ToLower(strings.TrimSpace(d))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", d)
		}
		res = append(res, wd)
	}
	return res, nil
}

func setDefault(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Env is the configuration read from the environment and the .env file.
type Env struct {
	LogLevel       string
	LogFile        string
	TokenCachePath string
	SyncConfig     string
	LookbackDays   int
	LookaheadDays  int

	M365TenantID     string
	M365ClientID     string
	M365ClientSecret string

	EWSServerURL    string
	EWSPrimaryEmail string
	EWSClientID     string
	EWSTenantID     string
	EWSCookieFile   string

	GoogleCredentialsFile string
}

// LoadEnv loads the dotenv files, .env when none is given, without
// overriding variables already set, and reads Env. Missing files are fine.
func LoadEnv(filenames ...string) (*Env, error) {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, f := range filenames {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return ReadEnv(os.Getenv)
}

func ReadEnv(getenv func(string) string) (*Env, error) {
	get := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}
	getInt := func(key string, def int) (int, error) {
		v := getenv(key)
		if v == "" {
			return def, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%s: invalid number of days %q", key, v)
		}
		return n, nil
	}

	env := &Env{
		LogLevel:              get("LOG_LEVEL", "info"),
		LogFile:               get("LOG_FILE", ""),
		TokenCachePath:        get("TOKEN_CACHE_PATH", ".calsync.db"),
		SyncConfig:            get("SYNC_CONFIG", "sync_config.yaml"),
		M365TenantID:          get("M365_TENANT_ID", ""),
		M365ClientID:          get("M365_CLIENT_ID", ""),
		M365ClientSecret:      get("M365_CLIENT_SECRET", ""),
		EWSServerURL:          get("EWS_SERVER_URL", ""),
		EWSPrimaryEmail:       get("EWS_PRIMARY_EMAIL", ""),
		EWSClientID:           get("EWS_CLIENT_ID", ""),
		EWSTenantID:           get("EWS_TENANT_ID", ""),
		EWSCookieFile:         get("EWS_COOKIE_FILE", ""),
		GoogleCredentialsFile: get("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
	}

	var err error
	if env.LookbackDays, err = getInt("SYNC_LOOKBACK_DAYS", 30); err != nil {
		return nil, err
	}
	if env.LookaheadDays, err = getInt("SYNC_LOOKAHEAD_DAYS", 90); err != nil {
		return nil, err
	}
	return env, nil
}

// Package config loads server configuration from environment variables.
//
// Every policy knob of the system lives here rather than as a constant buried
// in a service: the daily search limit, the snapshot freshness window, the
// fork fetch limit, the saved-graph cap, and the active-fork threshold are
// all tunable per deployment.
//
// In development, a .env file at the project root is loaded first (via
// godotenv). Real environment variables always win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for every tunable. Deployments override via env vars.
const (
	DefaultPort                = 8080
	DefaultDBPath              = "data/forklens.db"
	DefaultDailySearchLimit    = 50
	DefaultFreshnessWindow     = 2 * time.Hour
	DefaultForkFetchLimit      = 20
	DefaultSavedGraphCap       = 4
	DefaultActiveThresholdDays = 30
	DefaultDemoRepo            = "facebook/react"
	DefaultDemoCacheTTL        = 24 * time.Hour
	DefaultFetchTimeout        = 10 * time.Second
)

// Config holds all server configuration.
type Config struct {
	Port   int
	DBPath string

	// GitHub API access for the fork fetcher. A personal access token is
	// enough — the GraphQL endpoint rejects unauthenticated queries.
	GitHubToken string

	// GitHub OAuth app credentials for user sign-in.
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string

	// JWT signing secret for session cookies. Auth routes are disabled when
	// empty.
	JWTSecret string

	// Fork-data policy.
	DailySearchLimit    int           // upstream fetches per user per day
	FreshnessWindow     time.Duration // snapshot age below which the read path is free
	ForkFetchLimit      int           // forks requested per upstream query (20 or 50)
	SavedGraphCap       int           // distinct saved graphs per user
	ActiveThresholdDays int           // a fork pushed within this many days is "active"

	// Anonymous demo repository shown on the landing page, cached long-lived
	// in process so anonymous traffic doesn't hammer the API.
	DemoRepo     string
	DemoCacheTTL time.Duration

	// Upper bound on one upstream round-trip.
	FetchTimeout time.Duration
}

// Load reads configuration from the environment, applying defaults for
// anything unset. It returns an error only for values that are present but
// unparseable — a missing variable is never an error here; components that
// cannot run without one (e.g. OAuth) degrade at wiring time instead.
func Load() (Config, error) {
	// Best effort: a missing .env file is normal outside development.
	_ = godotenv.Load()

	cfg := Config{
		Port:                DefaultPort,
		DBPath:              DefaultDBPath,
		GitHubToken:         os.Getenv("GITHUB_TOKEN"),
		GitHubClientID:      os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret:  os.Getenv("GITHUB_CLIENT_SECRET"),
		GitHubCallbackURL:   os.Getenv("GITHUB_CALLBACK_URL"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		DailySearchLimit:    DefaultDailySearchLimit,
		FreshnessWindow:     DefaultFreshnessWindow,
		ForkFetchLimit:      DefaultForkFetchLimit,
		SavedGraphCap:       DefaultSavedGraphCap,
		ActiveThresholdDays: DefaultActiveThresholdDays,
		DemoRepo:            DefaultDemoRepo,
		DemoCacheTTL:        DefaultDemoCacheTTL,
		FetchTimeout:        DefaultFetchTimeout,
	}

	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("DEMO_REPO"); v != "" {
		cfg.DemoRepo = v
	}

	var err error
	if cfg.Port, err = intEnv("PORT", cfg.Port); err != nil {
		return cfg, err
	}
	if cfg.DailySearchLimit, err = intEnv("DAILY_SEARCH_LIMIT", cfg.DailySearchLimit); err != nil {
		return cfg, err
	}
	if cfg.ForkFetchLimit, err = intEnv("FORK_FETCH_LIMIT", cfg.ForkFetchLimit); err != nil {
		return cfg, err
	}
	if cfg.SavedGraphCap, err = intEnv("SAVED_GRAPH_CAP", cfg.SavedGraphCap); err != nil {
		return cfg, err
	}
	if cfg.ActiveThresholdDays, err = intEnv("ACTIVE_THRESHOLD_DAYS", cfg.ActiveThresholdDays); err != nil {
		return cfg, err
	}
	if cfg.FreshnessWindow, err = durationEnv("FRESHNESS_WINDOW", cfg.FreshnessWindow); err != nil {
		return cfg, err
	}
	if cfg.DemoCacheTTL, err = durationEnv("DEMO_CACHE_TTL", cfg.DemoCacheTTL); err != nil {
		return cfg, err
	}
	if cfg.FetchTimeout, err = durationEnv("FETCH_TIMEOUT", cfg.FetchTimeout); err != nil {
		return cfg, err
	}

	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	return cfg, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("config: %s must be an integer, got %q", key, v)
	}
	return n, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("config: %s must be a duration like \"2h\", got %q", key, v)
	}
	return d, nil
}

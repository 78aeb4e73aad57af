// Package config loads daemon configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/fediwatch/mentiond/internal/domain"
)

// Environment keys. Missing required keys fail fast at start, before
// any lease is acquired.
const (
	KeySourceBaseURL     = "MENTION_SOURCE_BASE_URL"
	KeySourceAccessToken = "MENTION_SOURCE_ACCESS_TOKEN"
	KeyAlertSinkURL      = "ALERT_SINK_URL"
	KeyPollInterval      = "POLL_INTERVAL_SECONDS"
	KeyPluginDir         = "MENTIOND_PLUGIN_DIR"
	KeyStateDir          = "MENTIOND_STATE_DIR"
	KeyFetchFailureLimit = "MENTIOND_FETCH_FAILURE_LIMIT"
	KeySeenHorizonCycles = "MENTIOND_SEEN_HORIZON_CYCLES"
)

// DefaultPollInterval is used when POLL_INTERVAL_SECONDS is not set.
const DefaultPollInterval = 30 * time.Second

// Config holds everything the daemon needs to run.
type Config struct {
	SourceBaseURL     string
	SourceAccessToken string
	AlertSinkURL      string
	PollInterval      time.Duration
	PluginDir         string
	StateDir          string
	FetchFailureLimit int
	SeenHorizonCycles int
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault(KeyPollInterval, int(DefaultPollInterval/time.Second))
	v.SetDefault(KeyPluginDir, "plugins")
	v.SetDefault(KeyFetchFailureLimit, 5)
	v.SetDefault(KeySeenHorizonCycles, 100)

	cfg := &Config{
		SourceBaseURL:     v.GetString(KeySourceBaseURL),
		SourceAccessToken: v.GetString(KeySourceAccessToken),
		AlertSinkURL:      v.GetString(KeyAlertSinkURL),
		PollInterval:      time.Duration(v.GetInt(KeyPollInterval)) * time.Second,
		PluginDir:         v.GetString(KeyPluginDir),
		StateDir:          v.GetString(KeyStateDir),
		FetchFailureLimit: v.GetInt(KeyFetchFailureLimit),
		SeenHorizonCycles: v.GetInt(KeySeenHorizonCycles),
	}

	for _, req := range []struct{ key, val string }{
		{KeySourceBaseURL, cfg.SourceBaseURL},
		{KeySourceAccessToken, cfg.SourceAccessToken},
		{KeyAlertSinkURL, cfg.AlertSinkURL},
	} {
		if req.val == "" {
			return nil, &domain.ConfigError{Key: req.key, Reason: "not set"}
		}
	}

	if cfg.PollInterval <= 0 {
		return nil, &domain.ConfigError{Key: KeyPollInterval, Reason: "must be a positive number of seconds"}
	}
	if cfg.FetchFailureLimit <= 0 {
		return nil, &domain.ConfigError{Key: KeyFetchFailureLimit, Reason: "must be positive"}
	}
	if cfg.SeenHorizonCycles <= 0 {
		return nil, &domain.ConfigError{Key: KeySeenHorizonCycles, Reason: "must be positive"}
	}

	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, &domain.ConfigError{Key: KeyStateDir, Reason: fmt.Sprintf("not set and home directory unavailable: %v", err)}
		}
		cfg.StateDir = filepath.Join(home, ".mentiond")
	}

	return cfg, nil
}

// StateFile is the dedup store path (watermark + seen set).
func (c *Config) StateFile() string {
	return filepath.Join(c.StateDir, "state.json")
}

// LeaseFile records the live daemon instance.
func (c *Config) LeaseFile() string {
	return filepath.Join(c.StateDir, "lease.json")
}

// LogFile is where the daemon process writes its log.
func (c *Config) LogFile() string {
	return filepath.Join(c.StateDir, "mentiond.log")
}

// SeenHorizon is how long seen-set entries are retained, derived from
// the poll interval so the horizon scales with polling frequency.
func (c *Config) SeenHorizon() time.Duration {
	return time.Duration(c.SeenHorizonCycles) * c.PollInterval
}

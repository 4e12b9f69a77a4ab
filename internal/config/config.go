package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/offlinehq/recbox/internal/utils"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigPath = filepath.Join(home, ".recbox", "config.json")
	DefaultLogFile    = filepath.Join(home, ".recbox", "logs", "recbox.log")
	DefaultDataDir    = filepath.Join(home, "RecBox")
)

const (
	DefaultRequestsPerSecond = 4.0
	DefaultBatchSize         = 100
	DefaultSyncInterval      = 60 * time.Second
	DefaultStaleThreshold    = 300 * time.Second
	DefaultMaxRetryAttempts  = 3
	DefaultHistorySize       = 50
)

// Config is the client configuration for the recbox daemon.
type Config struct {
	DataDir           string   `json:"data_dir"`
	ServerURL         string   `json:"server_url"`
	AccountID         string   `json:"account_id"`
	RefreshToken      string   `json:"refresh_token,omitempty"`
	Collections       []string `json:"collections"`
	RequestsPerSecond float64  `json:"requests_per_second,omitempty"`
	BatchSize         int      `json:"batch_size,omitempty"`
	SyncIntervalSecs  int      `json:"sync_interval_secs,omitempty"`
	StaleAfterSecs    int      `json:"stale_after_secs,omitempty"`
	MergeRulesPath    string   `json:"merge_rules_path,omitempty"`

	// Path this config was loaded from. Not persisted.
	Path string `json:"-"`
}

func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: data_dir is required")
	}
	if c.ServerURL == "" {
		return errors.New("config: server_url is required")
	}
	if u, err := url.Parse(c.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: invalid server_url %q", c.ServerURL)
	}
	if len(c.Collections) == 0 {
		return errors.New("config: at least one collection is required")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("config: requests_per_second must be positive, got %v", c.RequestsPerSecond)
	}
	return nil
}

// SyncInterval returns the automatic sync interval, falling back to the default.
func (c *Config) SyncInterval() time.Duration {
	if c.SyncIntervalSecs > 0 {
		return time.Duration(c.SyncIntervalSecs) * time.Second
	}
	return DefaultSyncInterval
}

// StaleThreshold returns the freshness threshold, falling back to the default.
func (c *Config) StaleThreshold() time.Duration {
	if c.StaleAfterSecs > 0 {
		return time.Duration(c.StaleAfterSecs) * time.Second
	}
	return DefaultStaleThreshold
}

// RequestRate returns the outbound request rate, falling back to the default.
func (c *Config) RequestRate() float64 {
	if c.RequestsPerSecond > 0 {
		return c.RequestsPerSecond
	}
	return DefaultRequestsPerSecond
}

// Batch returns the page size for remote list calls, falling back to the default.
func (c *Config) Batch() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return DefaultBatchSize
}

// StorePath is the path of the local cache database inside the data dir.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "state", "recbox.db")
}

// LockPath is the path of the daemon lock file inside the data dir.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "state", "recbox.lock")
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}

	c.Path = path
	return nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.Path = path
	return &cfg, nil
}

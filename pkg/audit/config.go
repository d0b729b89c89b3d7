// Package audit is the public configuration surface for the answerscope
// auditor: everything the CLI and embedding programs can tune.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/answerscope/answerscope/internal/apperr"
	core "github.com/answerscope/answerscope/internal/audit"
	"github.com/answerscope/answerscope/internal/citation"
	"github.com/answerscope/answerscope/internal/fetch"
	"github.com/answerscope/answerscope/internal/render"
)

// Config holds all auditor configuration.
type Config struct {
	// Path of the bbolt database holding audits, frontier, and results
	DBPath string `json:"db_path" yaml:"db_path"`

	// User agent for the auditor's own fetches
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// Crawl bounds
	MaxDepth         int           `json:"max_depth" yaml:"max_depth"`
	MaxPages         int           `json:"max_pages" yaml:"max_pages"`
	CrawlBatch       int           `json:"crawl_batch" yaml:"crawl_batch"`
	LeaseTTL         time.Duration `json:"lease_ttl" yaml:"lease_ttl"`
	SitemapSeedLimit int           `json:"sitemap_seed_limit" yaml:"sitemap_seed_limit"`

	// Fetch policy
	Fetch FetchConfig `json:"fetch" yaml:"fetch"`

	// Browser rendering
	Browser render.BrowserConfig `json:"browser" yaml:"browser"`

	// Remote headless-render service (optional)
	Remote render.RemoteConfig `json:"remote_render" yaml:"remote_render"`

	// Citation connector (optional; empty endpoint disables the phase)
	Citation citation.HTTPConfig `json:"citation" yaml:"citation"`

	// Per-phase timeout overrides, keyed by phase name
	PhaseTimeouts map[string]time.Duration `json:"phase_timeouts" yaml:"phase_timeouts"`

	// Delay between ticks when running the in-process scheduler loop
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval"`

	// Logging
	LogLevel string `json:"log_level" yaml:"log_level"`
	LogJSON  bool   `json:"log_json" yaml:"log_json"`
}

// FetchConfig is the tunable subset of the fetch client's policy.
type FetchConfig struct {
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `json:"burst" yaml:"burst"`
	MaxRetries        int           `json:"max_retries" yaml:"max_retries"`
	SkipTLSVerify     bool          `json:"skip_tls_verify" yaml:"skip_tls_verify"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DBPath:           "answerscope.db",
		UserAgent:        fetch.DefaultConfig().UserAgent,
		MaxDepth:         2,
		MaxPages:         25,
		CrawlBatch:       2,
		LeaseTTL:         5 * time.Minute,
		SitemapSeedLimit: 15,
		Fetch: FetchConfig{
			Timeout:           15 * time.Second,
			RequestsPerSecond: 4,
			Burst:             2,
			MaxRetries:        2,
		},
		Browser:      render.DefaultBrowserConfig(),
		TickInterval: 2 * time.Second,
		LogLevel:     "info",
	}
}

// QuickConfig returns a configuration for a fast, shallow audit: static
// rendering only and a small page cap. Useful for smoke checks.
func QuickConfig() *Config {
	c := DefaultConfig()
	c.MaxDepth = 1
	c.MaxPages = 8
	c.Browser.Enabled = false
	c.Fetch.Timeout = 8 * time.Second
	c.Fetch.MaxRetries = 1
	return c
}

// LoadFromFile loads configuration from a file (YAML or JSON), layered over
// the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	return config, nil
}

// SaveToFile saves configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative")
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("max_pages must be at least 1")
	}
	if c.CrawlBatch < 1 {
		return fmt.Errorf("crawl_batch must be at least 1")
	}
	if c.LeaseTTL <= 0 {
		return fmt.Errorf("lease_ttl must be positive")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}
	if c.Fetch.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := json.Marshal(c)
	clone := &Config{}
	json.Unmarshal(data, clone)
	return clone
}

// FetchClientConfig maps the public fetch settings onto the internal client.
func (c *Config) FetchClientConfig() fetch.Config {
	fc := fetch.DefaultConfig()
	fc.Timeout = c.Fetch.Timeout
	fc.RequestsPerSecond = c.Fetch.RequestsPerSecond
	fc.Burst = c.Fetch.Burst
	fc.SkipTLSVerify = c.Fetch.SkipTLSVerify
	if c.UserAgent != "" {
		fc.UserAgent = c.UserAgent
	}
	retry := apperr.DefaultRetryConfig()
	retry.MaxRetries = c.Fetch.MaxRetries
	fc.Retry = retry
	return fc
}

// OrchestratorOptions maps the crawl bounds onto the orchestrator.
func (c *Config) OrchestratorOptions() core.Options {
	return core.Options{
		MaxDepth:         c.MaxDepth,
		MaxPages:         c.MaxPages,
		CrawlBatch:       c.CrawlBatch,
		LeaseTTL:         c.LeaseTTL,
		SitemapSeedLimit: c.SitemapSeedLimit,
	}
}

package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	if err := QuickConfig().Validate(); err != nil {
		t.Errorf("quick config invalid: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"zero max pages", func(c *Config) { c.MaxPages = 0 }},
		{"zero crawl batch", func(c *Config) { c.CrawlBatch = 0 }},
		{"zero lease ttl", func(c *Config) { c.LeaseTTL = 0 }},
		{"zero fetch timeout", func(c *Config) { c.Fetch.Timeout = 0 }},
		{"negative rate", func(c *Config) { c.Fetch.RequestsPerSecond = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
db_path: /tmp/test.db
max_pages: 50
max_depth: 3
fetch:
  requests_per_second: 2
browser:
  enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.DBPath != "/tmp/test.db" || c.MaxPages != 50 || c.MaxDepth != 3 {
		t.Errorf("config = %+v", c)
	}
	if c.Fetch.RequestsPerSecond != 2 {
		t.Errorf("fetch = %+v", c.Fetch)
	}
	if c.Fetch.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want default", c.Fetch.Timeout)
	}
	if c.Browser.Enabled {
		t.Error("browser should be disabled")
	}
	// Untouched fields keep their defaults.
	if c.CrawlBatch != 2 {
		t.Errorf("CrawlBatch = %d, want default 2", c.CrawlBatch)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	c := DefaultConfig()
	c.MaxPages = 99
	c.Citation.Endpoint = "https://search.example.com/api"
	if err := c.SaveToFile(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.MaxPages != 99 || loaded.Citation.Endpoint != c.Citation.Endpoint {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestClone(t *testing.T) {
	c := DefaultConfig()
	clone := c.Clone()
	clone.MaxPages = 1
	clone.Fetch.Timeout = time.Second
	if c.MaxPages == 1 || c.Fetch.Timeout == time.Second {
		t.Error("clone mutation leaked into the original")
	}
}

func TestFetchClientConfig(t *testing.T) {
	c := DefaultConfig()
	c.UserAgent = "CustomBot/2.0"
	c.Fetch.MaxRetries = 5

	fc := c.FetchClientConfig()
	if fc.UserAgent != "CustomBot/2.0" {
		t.Errorf("UserAgent = %s", fc.UserAgent)
	}
	if fc.Retry.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d", fc.Retry.MaxRetries)
	}
}

func TestOrchestratorOptions(t *testing.T) {
	c := DefaultConfig()
	c.MaxPages = 7
	opts := c.OrchestratorOptions()
	if opts.MaxPages != 7 || opts.CrawlBatch != c.CrawlBatch || opts.LeaseTTL != c.LeaseTTL {
		t.Errorf("opts = %+v", opts)
	}
}

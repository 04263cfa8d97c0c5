package scanner

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/a11yscan/contextual"
	"github.com/hazyhaar/a11yscan/scanner/internal/browser"
)

// Config is the top-level scanner configuration.
type Config struct {
	// DBPath is the SQLite file shared by store, queue, and observability.
	DBPath string `yaml:"db_path"`

	// Listen is the HTTP API bind address.
	Listen string `yaml:"listen"`

	Crawl    CrawlConfig       `yaml:"crawl"`
	Browser  browser.Config    `yaml:"browser"`
	AI       contextual.Config `yaml:"ai"`
	Progress ProgressConfig    `yaml:"progress"`
}

// CrawlConfig bounds the crawl frontier. Requests may lower these budgets
// but never raise them.
type CrawlConfig struct {
	MaxDepth    int           `yaml:"max_depth"`
	MaxPages    int           `yaml:"max_pages"`
	MaxDuration time.Duration `yaml:"max_duration"`
	Concurrency int           `yaml:"concurrency"` // simultaneous tabs
}

// ProgressConfig tunes the broadcaster.
type ProgressConfig struct {
	TTL time.Duration `yaml:"ttl"` // terminal-state retention
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a YAML configuration file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "a11yscan.db"
	}
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.Crawl.MaxDepth <= 0 {
		c.Crawl.MaxDepth = 2
	}
	if c.Crawl.MaxPages <= 0 {
		c.Crawl.MaxPages = 25
	}
	if c.Crawl.MaxDuration <= 0 {
		c.Crawl.MaxDuration = 10 * time.Minute
	}
	if c.Crawl.Concurrency <= 0 {
		c.Crawl.Concurrency = 3
	}
	if c.Progress.TTL <= 0 {
		c.Progress.TTL = 60 * time.Second
	}
}

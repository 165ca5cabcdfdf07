package store

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CategoryConfig maps one named feed to its URLs and implied trade direction.
// ScreenerURL is optional; categories without one fall back to FeedURL in
// seed mode.
type CategoryConfig struct {
	FeedURL     string `yaml:"feed_url"`
	ScreenerURL string `yaml:"screener_url"`
	DefaultType string `yaml:"default_type"` // "P" or "S"
}

type Config struct {
	Server struct {
		Addr          string `yaml:"addr"`
		CronSecretEnv string `yaml:"cron_secret_env"`
		CronSpec      string `yaml:"cron_spec"`
	} `yaml:"server"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Scrape struct {
		UserAgent        string                    `yaml:"user_agent"`
		TimeoutSeconds   int                       `yaml:"timeout_seconds"`
		IncrementalLimit int                       `yaml:"incremental_limit"`
		SeedLimit        int                       `yaml:"seed_limit"`
		Categories       map[string]CategoryConfig `yaml:"categories"`
		SyncCategories   []string                  `yaml:"sync_categories"`
	} `yaml:"scrape"`
	Insight struct {
		Enabled       bool `yaml:"enabled"`
		WindowSize    int  `yaml:"window_size"`
		TopTrades     int  `yaml:"top_trades"`
		ClusterMin    int  `yaml:"cluster_min"`
		ClusterTop    int  `yaml:"cluster_top"`
		SummaryLength int  `yaml:"summary_length"`
	} `yaml:"insight"`
	LLM struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float32 `yaml:"temperature"`
	} `yaml:"llm"`
	Market struct {
		Enabled           bool `yaml:"enabled"`
		RefreshDelaySecs  int  `yaml:"refresh_delay_seconds"`
		MaxSymbolsPerRun  int  `yaml:"max_symbols_per_run"`
		StaleAfterMinutes int  `yaml:"stale_after_minutes"`
	} `yaml:"market"`
}

func (c *Config) Validate() error {
	if len(c.Scrape.Categories) == 0 {
		return errors.New("scrape.categories cannot be empty")
	}
	for name, cat := range c.Scrape.Categories {
		if cat.FeedURL == "" {
			return fmt.Errorf("category '%s' missing feed_url", name)
		}
		if cat.DefaultType != "P" && cat.DefaultType != "S" {
			return fmt.Errorf("category '%s' default_type '%s': must be 'P' or 'S'", name, cat.DefaultType)
		}
	}
	for _, name := range c.Scrape.SyncCategories {
		if _, ok := c.Scrape.Categories[name]; !ok {
			return fmt.Errorf("sync category '%s' not defined in scrape.categories", name)
		}
	}
	if c.Scrape.IncrementalLimit <= 0 || c.Scrape.SeedLimit <= 0 {
		return errors.New("scrape limits must be positive")
	}
	if c.Insight.Enabled {
		provider := strings.ToUpper(c.LLM.Provider)
		if provider != "OPENAI" && provider != "CLAUDE" {
			return fmt.Errorf("invalid llm provider '%s': must be 'OPENAI' or 'CLAUDE'", c.LLM.Provider)
		}
	}
	if c.Storage.Path == "" {
		return errors.New("storage.path cannot be empty")
	}
	return nil
}

// LoadConfig reads and validates a YAML config file, applying defaults
// for optional fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a config with the standard category table and
// operational defaults. A config file overrides any of these.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Server.CronSecretEnv = "CRON_SECRET"
	cfg.Server.CronSpec = "0 6 * * *"
	cfg.Storage.Path = "data/insider.db"
	cfg.Scrape.UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	cfg.Scrape.TimeoutSeconds = 30
	cfg.Scrape.IncrementalLimit = 100
	cfg.Scrape.SeedLimit = 500
	cfg.Scrape.Categories = DefaultCategories()
	cfg.Scrape.SyncCategories = []string{
		"purchases", "sales", "cluster-buys", "purchases-25k",
		"sales-100k", "top-week", "top-month",
	}
	cfg.Insight.Enabled = true
	cfg.Insight.WindowSize = 200
	cfg.Insight.TopTrades = 10
	cfg.Insight.ClusterMin = 2
	cfg.Insight.ClusterTop = 5
	cfg.Insight.SummaryLength = 300
	cfg.LLM.Provider = "OPENAI"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.MaxTokens = 800
	cfg.LLM.Temperature = 0.1
	cfg.Market.Enabled = true
	cfg.Market.RefreshDelaySecs = 12
	cfg.Market.MaxSymbolsPerRun = 5
	cfg.Market.StaleAfterMinutes = 60
	return cfg
}

// DefaultCategories is the canonical category table for openinsider.com.
// penny-stock-buys is fetchable on demand but excluded from the default
// sync set.
func DefaultCategories() map[string]CategoryConfig {
	return map[string]CategoryConfig{
		"purchases": {
			FeedURL:     "http://openinsider.com/insider-purchases",
			ScreenerURL: "http://openinsider.com/screener?s=&o=&pl=&ph=&ll=&lh=&fd=365&td=0&xp=1&xs=&xa=&xd=&xg=&xf=&xm=&xx=&xc=&xw=&vl=&vh=&ocl=&och=&session=&cnt=1000",
			DefaultType: "P",
		},
		"sales": {
			FeedURL:     "http://openinsider.com/insider-sales",
			ScreenerURL: "http://openinsider.com/screener?s=&o=&pl=&ph=&ll=&lh=&fd=365&td=0&xp=&xs=1&xa=&xd=&xg=&xf=&xm=&xx=&xc=&xw=&vl=&vh=&ocl=&och=&sic1=-1&sicl=100&sich=9999&session=&cnt=1000",
			DefaultType: "S",
		},
		"cluster-buys": {
			FeedURL:     "http://openinsider.com/latest-cluster-buys",
			ScreenerURL: "http://openinsider.com/screener?s=&o=&pl=&ph=&ll=&lh=&fd=365&td=0&xp=1&xs=&xa=&xd=&xg=&xf=&xm=&xx=&xc=&xw=&vl=25&vh=&ocl=&och=&sic1=-1&sicl=100&sich=9999&grp=1&session=&cnt=500",
			DefaultType: "P",
		},
		"penny-stock-buys": {
			FeedURL:     "http://openinsider.com/latest-penny-stock-buys",
			DefaultType: "P",
		},
		"purchases-25k": {
			FeedURL:     "http://openinsider.com/latest-insider-purchases-25k",
			DefaultType: "P",
		},
		"sales-100k": {
			FeedURL:     "http://openinsider.com/latest-insider-sales-100k",
			DefaultType: "S",
		},
		"top-week": {
			FeedURL:     "http://openinsider.com/top-insider-purchases-of-the-week",
			DefaultType: "P",
		},
		"top-month": {
			FeedURL:     "http://openinsider.com/top-insider-purchases-of-the-month",
			DefaultType: "P",
		},
	}
}

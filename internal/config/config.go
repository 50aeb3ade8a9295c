// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/JakeFAU/thegirl-crawler/internal/crawler"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Archive backends. An empty backend disables archiving.
const (
	ArchiveNone  = ""
	ArchiveLocal = "local"
	ArchiveGCS   = "gcs"
)

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Selectors SelectorsConfig `mapstructure:"selectors"`
	Store     StoreConfig     `mapstructure:"store"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CrawlerConfig governs pagination, politeness and fetch behavior.
type CrawlerConfig struct {
	StartURL       string        `mapstructure:"start_url"`
	AllowedDomain  string        `mapstructure:"allowed_domain"`
	URLPrefix      string        `mapstructure:"url_prefix"`
	PageToken      string        `mapstructure:"page_token"`
	PageNum        int           `mapstructure:"page_num"`
	Delay          time.Duration `mapstructure:"delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	RespectRobots  bool          `mapstructure:"respect_robots"`
	Parallelism    int           `mapstructure:"parallelism"`
	MaxRetries     int           `mapstructure:"max_retries"`
	OutOfRange     string        `mapstructure:"out_of_range"`
}

// SelectorsConfig holds the XPath expressions bound to the site markup.
type SelectorsConfig struct {
	LinkXPath    string `mapstructure:"link_xpath"`
	TitleXPath   string `mapstructure:"title_xpath"`
	TagsXPath    string `mapstructure:"tags_xpath"`
	TagItemXPath string `mapstructure:"tag_item_xpath"`
}

// StoreConfig selects and configures the record store.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ArchiveConfig controls where raw article HTML is kept.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	Timezone  string `mapstructure:"timezone"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls the optional HTTP server exposing health and metrics.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := crawler.DefaultConfig()
	v.SetDefault("crawler.start_url", def.StartURL)
	v.SetDefault("crawler.allowed_domain", def.AllowedDomain)
	v.SetDefault("crawler.url_prefix", def.URLPrefix)
	v.SetDefault("crawler.page_token", def.PageToken)
	v.SetDefault("crawler.page_num", def.PageNum)
	v.SetDefault("crawler.delay", def.Delay)
	v.SetDefault("crawler.request_timeout", def.RequestTimeout)
	v.SetDefault("crawler.user_agent", def.UserAgent)
	v.SetDefault("crawler.respect_robots", def.RespectRobots)
	v.SetDefault("crawler.parallelism", def.Parallelism)
	v.SetDefault("crawler.max_retries", def.MaxRetries)
	v.SetDefault("crawler.out_of_range", string(def.OutOfRange))
	v.SetDefault("selectors.link_xpath", def.Selectors.Link)
	v.SetDefault("selectors.title_xpath", def.Selectors.Title)
	v.SetDefault("selectors.tags_xpath", def.Selectors.Tags)
	v.SetDefault("selectors.tag_item_xpath", def.Selectors.TagItem)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", "data/thegirl.db")
	v.SetDefault("store.table", "tests")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.timezone", "UTC")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.CrawlerConfig().Validate(); err != nil {
		return err
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Store.Path) == "" {
			return fmt.Errorf("store.path must be set for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("store.dsn must be set for the postgres driver")
		}
		if c.Store.MaxConns < 0 {
			return fmt.Errorf("store.max_conns must be >= 0")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("store.driver must be one of sqlite, postgres, memory; got %q", c.Store.Driver)
	}

	switch c.Archive.Backend {
	case ArchiveNone:
	case ArchiveLocal:
		if strings.TrimSpace(c.Archive.BaseDir) == "" {
			return fmt.Errorf("archive.base_dir must be set for the local backend")
		}
	case ArchiveGCS:
		if strings.TrimSpace(c.Archive.GCSBucket) == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend must be empty, local or gcs; got %q", c.Archive.Backend)
	}
	if _, err := c.ArchiveLocation(); err != nil {
		return err
	}

	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// CrawlerConfig maps the crawler and selectors sections onto crawler.Config.
func (c Config) CrawlerConfig() crawler.Config {
	return crawler.Config{
		StartURL:       c.Crawler.StartURL,
		AllowedDomain:  c.Crawler.AllowedDomain,
		URLPrefix:      c.Crawler.URLPrefix,
		PageToken:      c.Crawler.PageToken,
		PageNum:        c.Crawler.PageNum,
		Delay:          c.Crawler.Delay,
		RequestTimeout: c.Crawler.RequestTimeout,
		UserAgent:      c.Crawler.UserAgent,
		RespectRobots:  c.Crawler.RespectRobots,
		Parallelism:    c.Crawler.Parallelism,
		MaxRetries:     c.Crawler.MaxRetries,
		OutOfRange:     crawler.OutOfRangePolicy(c.Crawler.OutOfRange),
		Selectors: crawler.Selectors{
			Link:    c.Selectors.LinkXPath,
			Title:   c.Selectors.TitleXPath,
			Tags:    c.Selectors.TagsXPath,
			TagItem: c.Selectors.TagItemXPath,
		},
	}
}

// ArchiveLocation resolves archive.timezone, defaulting to UTC.
func (c Config) ArchiveLocation() (*time.Location, error) {
	if c.Archive.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Archive.Timezone)
	if err != nil {
		return nil, fmt.Errorf("archive.timezone: %w", err)
	}
	return loc, nil
}

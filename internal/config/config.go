// Package config handles application configuration from the environment and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the application configuration.
type Config struct {
	RedditClientID     string        `envconfig:"REDDIT_CLIENT_ID"`
	RedditClientSecret string        `envconfig:"REDDIT_CLIENT_SECRET"`
	RedditUsername     string        `envconfig:"REDDIT_USERNAME"`
	RedditPassword     string        `envconfig:"REDDIT_PASSWORD"`
	RedditUserAgent    string        `envconfig:"REDDIT_USER_AGENT" default:"convert_bot/1.0"`
	RedditTokenURL     string        `envconfig:"REDDIT_TOKEN_URL" default:"https://www.reddit.com/api/v1/access_token"`
	RedditAPIURL       string        `envconfig:"REDDIT_API_URL" default:"https://oauth.reddit.com"`
	RedditFeedURL      string        `envconfig:"REDDIT_FEED_URL" default:"https://www.reddit.com"`
	Subreddit          string        `envconfig:"SUBREDDIT" default:"all"`
	PollInterval       time.Duration `envconfig:"POLL_INTERVAL" default:"30s"`
	HTTPTimeout        time.Duration `envconfig:"HTTP_TIMEOUT" default:"60s"`

	ImgurClientID  string        `envconfig:"IMGUR_CLIENT_ID"`
	ImgurUploadURL string        `envconfig:"IMGUR_UPLOAD_URL" default:"https://api.imgur.com/3/image"`
	RehostCacheTTL time.Duration `envconfig:"REHOST_CACHE_TTL" default:"1h"`

	DatabasePath  string `envconfig:"DATABASE_PATH" default:"./data/bot.db"`
	SeenCap       int    `envconfig:"SEEN_CAP" default:"1000"`
	ProgressEvery int    `envconfig:"PROGRESS_EVERY" default:"1000"`

	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile       string `envconfig:"LOG_FILE"`
	LogMaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"10"`
	LogMaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"5"`
	LogMaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" default:"30"`

	MetricsAddr    string `envconfig:"METRICS_ADDR"`
	ReportSchedule string `envconfig:"REPORT_SCHEDULE" default:"@hourly"`
}

// Load reads configuration from environment variables. Variables from envFile
// (or ./.env when envFile is empty and the file exists) fill in anything the
// environment does not set.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks that required values are set and limits are sane.
func (c *Config) Validate() error {
	required := []struct {
		key, value string
	}{
		{"REDDIT_CLIENT_ID", c.RedditClientID},
		{"REDDIT_CLIENT_SECRET", c.RedditClientSecret},
		{"REDDIT_USERNAME", c.RedditUsername},
		{"REDDIT_PASSWORD", c.RedditPassword},
		{"IMGUR_CLIENT_ID", c.ImgurClientID},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s is required", r.key)
		}
	}
	if c.SeenCap < 1 {
		return fmt.Errorf("SEEN_CAP must be at least 1, got %d", c.SeenCap)
	}
	if c.ProgressEvery < 1 {
		return fmt.Errorf("PROGRESS_EVERY must be at least 1, got %d", c.ProgressEvery)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	return nil
}

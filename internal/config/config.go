// Package config loads and validates runtime configuration at startup.
// Values come from an optional YAML file plus PIPELINE_* environment
// variables; DATABASE_URL and REDIS_URL keep their conventional unprefixed
// names. Fail-fast: if a required value is missing, startup aborts.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the pipeline service.
type Config struct {
	Port        string `mapstructure:"port"`
	DatabaseURL string `mapstructure:"database-url"`
	RedisURL    string `mapstructure:"redis-url"`

	// Loop intervals.
	SweepEvery     time.Duration `mapstructure:"sweep-every"`
	DrainEvery     time.Duration `mapstructure:"drain-every"`
	HousekeepEvery time.Duration `mapstructure:"housekeep-every"`

	// Queue timing.
	JobLookback time.Duration `mapstructure:"job-lookback"`
	EntryTTL    time.Duration `mapstructure:"entry-ttl"`
	StaleAfter  time.Duration `mapstructure:"stale-after"`

	// Scoring weights, must sum to 100.
	Weights WeightsConfig `mapstructure:"weights"`

	// Message channel (SMTP).
	SMTP SMTPConfig `mapstructure:"smtp"`

	// Agent channel.
	AgentBaseURL string `mapstructure:"agent-base-url"`

	// Form channel (browser).
	Headless      bool   `mapstructure:"headless"`
	ScreenshotDir string `mapstructure:"screenshot-dir"`

	// Message composition.
	GeminiAPIKey string `mapstructure:"gemini-api-key"`
	GeminiModel  string `mapstructure:"gemini-model"`
}

// WeightsConfig mirrors the scoring weight table so deployments can tune it.
type WeightsConfig struct {
	Title      int `mapstructure:"title"`
	Salary     int `mapstructure:"salary"`
	Location   int `mapstructure:"location"`
	WorkType   int `mapstructure:"work-type"`
	Experience int `mapstructure:"experience"`
	Industry   int `mapstructure:"industry"`
	Skills     int `mapstructure:"skills"`
}

// SMTPConfig carries outbound mail settings.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// Load reads the optional config file and environment, applies defaults,
// and returns a validated Config.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PIPELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	// Conventional names, no prefix.
	if err := v.BindEnv("database-url", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("bind DATABASE_URL: %w", err)
	}
	if err := v.BindEnv("redis-url", "REDIS_URL"); err != nil {
		return nil, fmt.Errorf("bind REDIS_URL: %w", err)
	}

	v.SetDefault("port", "8084")
	v.SetDefault("sweep-every", 6*time.Hour)
	v.SetDefault("drain-every", time.Minute)
	v.SetDefault("housekeep-every", 5*time.Minute)
	v.SetDefault("job-lookback", 24*time.Hour)
	v.SetDefault("entry-ttl", 7*24*time.Hour)
	// stale-after must exceed the worst-case execution time (attempt bound
	// times the slowest channel timeout, plus backoff), or housekeeping
	// would reclaim an entry that is still being executed.
	v.SetDefault("stale-after", 30*time.Minute)
	v.SetDefault("weights.title", 25)
	v.SetDefault("weights.salary", 20)
	v.SetDefault("weights.location", 15)
	v.SetDefault("weights.work-type", 15)
	v.SetDefault("weights.experience", 10)
	v.SetDefault("weights.industry", 10)
	v.SetDefault("weights.skills", 5)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("agent-base-url", "")
	v.SetDefault("gemini-api-key", "")
	v.SetDefault("headless", true)
	v.SetDefault("screenshot-dir", "/var/lib/pipeline/evidence")
	v.SetDefault("gemini-model", "gemini-2.5-flash")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	return &cfg, nil
}

// Package config loads process configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds configuration shared by the orchestrator, the health
// manager, and the seed tool. Each binary only reads the fields it
// needs; unused fields are harmless.
type Config struct {
	// Logging.
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Metrics HTTP surface.
	PromPort int `env:"PROM_PORT" envDefault:"9108"`

	// Durable store paths.
	AccountsDB    string `env:"REDDIT_ACCOUNTS_DB" envDefault:"storage/reddit/accounts.db"`
	RateDB        string `env:"REDDIT_RATE_DB" envDefault:"storage/reddit/ratelimiter.db"`
	CheckpointsDB string `env:"REDDIT_CHECKPOINTS_DB" envDefault:"storage/reddit/checkpoints.db"`
	ProxiesJSON   string `env:"REDDIT_PROXIES_JSON" envDefault:"storage/reddit/proxies.json"`
	JobsJSON      string `env:"REDDIT_JOBS_JSON" envDefault:"storage/reddit/jobs.json"`
	JobStateJSON  string `env:"ORCH_JOB_STATE_JSON" envDefault:"storage/reddit/job_state.json"`

	// Job catalog.
	CatalogPath string `env:"ORCH_CONFIG_PATH" envDefault:"scraping/config/scraping_config.json"`
	ScraperID   string `env:"ORCH_SCRAPER_ID" envDefault:"Reddit.custom"`

	// Orchestrator (C5) tuning.
	PollSeconds    int `env:"ORCH_POLL_SECONDS" envDefault:"60"`
	IdleSleep      int `env:"ORCH_IDLE_SLEEP" envDefault:"300"`
	JobCooldownMin int `env:"ORCH_JOB_COOLDOWN_MIN" envDefault:"1200"`
	JobCooldownMax int `env:"ORCH_JOB_COOLDOWN_MAX" envDefault:"1800"`
	EntityLimit    int `env:"ORCH_ENTITY_LIMIT" envDefault:"200"`

	// Health manager (C3) tuning.
	HealthInterval        int `env:"ACCOUNT_MANAGER_INTERVAL" envDefault:"60"`
	HealthCooldownBad     int `env:"ACCOUNT_MANAGER_COOLDOWN_BAD" envDefault:"60"`
	HealthCooldownRate    int `env:"ACCOUNT_MANAGER_COOLDOWN_RATE" envDefault:"120"`
	HealthQuarantineFails int `env:"ACCOUNT_MANAGER_QUARANTINE_FAILS" envDefault:"5"`
	HealthFanout          int `env:"ACCOUNT_MANAGER_FANOUT" envDefault:"10"`

	// Rate limiter (C1) defaults.
	RateBucketName     string  `env:"RATE_BUCKET_NAME" envDefault:"replace_more"`
	RateBucketCapacity float64 `env:"RATE_BUCKET_CAPACITY" envDefault:"5.0"`
	RateBucketRefill   float64 `env:"RATE_BUCKET_REFILL" envDefault:"2.0"`

	// Account pool (C2) defaults.
	CooldownBase int `env:"ACCOUNT_COOLDOWN_BASE" envDefault:"60"`
}

// Load reads configuration from environment variables, applying the
// struct tag defaults above where a variable is unset.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

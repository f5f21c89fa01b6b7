// Package config loads process configuration from the environment. All
// values are fixed at startup; changing the keyword set or cadence
// requires a restart.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/kalambet/dropfeed/internal/classify"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Mastodon MastodonConfig
	Ingest   IngestConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port int `env:"DROPFEED_PORT" envDefault:"4600"`
	// ResultLimit is the default page size for the posts endpoint.
	ResultLimit int `env:"DROPFEED_RESULT_LIMIT" envDefault:"20"`
	// EventBuffer is the per-subscriber buffer for live updates.
	EventBuffer int `env:"DROPFEED_EVENT_BUFFER" envDefault:"8"`
}

type StorageConfig struct {
	DataDir string `env:"DROPFEED_DATA_DIR"`
}

type MastodonConfig struct {
	Server      string `env:"DROPFEED_MASTODON_SERVER" envDefault:"https://mastodon.social"`
	AccessToken string `env:"DROPFEED_MASTODON_TOKEN"`
	Account     string `env:"DROPFEED_ACCOUNT" envDefault:"binance"`
}

type IngestConfig struct {
	// IntervalSeconds is the poll cadence; the timer doubles as the
	// retry mechanism after transient fetch failures.
	IntervalSeconds int `env:"DROPFEED_POLL_INTERVAL" envDefault:"300"`
	BatchSize       int `env:"DROPFEED_BATCH_SIZE" envDefault:"100"`
	TopN            int `env:"DROPFEED_TOP_N" envDefault:"10"`
	// Keywords overrides the built-in airdrop vocabulary when set.
	Keywords []string `env:"DROPFEED_KEYWORDS" envSeparator:","`
}

type LogConfig struct {
	Level string `env:"DROPFEED_LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from a .env file (if present in the working
// directory) and the process environment; environment variables win.
func Load() (Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = defaultDataDir()
	}
	if cfg.Ingest.IntervalSeconds <= 0 {
		return Config{}, fmt.Errorf("poll interval must be positive, got %d", cfg.Ingest.IntervalSeconds)
	}
	if cfg.Ingest.BatchSize <= 0 {
		return Config{}, fmt.Errorf("batch size must be positive, got %d", cfg.Ingest.BatchSize)
	}
	if cfg.Mastodon.Account == "" {
		return Config{}, fmt.Errorf("missing required config: watched account (DROPFEED_ACCOUNT)")
	}

	return cfg, nil
}

// KeywordSet builds the process-wide keyword set: the configured override
// when present, the built-in airdrop vocabulary otherwise.
func (c Config) KeywordSet() classify.KeywordSet {
	if len(c.Ingest.Keywords) > 0 {
		return classify.NewKeywordSet(c.Ingest.Keywords)
	}
	return classify.NewKeywordSet(classify.DefaultKeywords)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dropfeed"
	}
	return filepath.Join(home, ".dropfeed")
}

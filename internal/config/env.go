package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvConfig holds overrides read from LOVEFIT_* variables. Unset variables
// leave the pointer nil so the file value wins.
type EnvConfig struct {
	StoryMode     *string `env:"STORY_MODE"`
	Countdown     *int    `env:"STORY_COUNTDOWN"`
	HeartRateGate *bool   `env:"STORY_HEART_RATE_GATE"`
	Catalog       *string `env:"STORY_CATALOG"`
	SyncBaseURL   *string `env:"SYNC_BASE_URL"`
	SyncMock      *bool   `env:"SYNC_MOCK"`
	SyncTimeout   *int    `env:"SYNC_TIMEOUT"`
	LogLevel      *string `env:"LOG_LEVEL"`
	LogFile       *string `env:"LOG_FILE"`
	LogJSON       *bool   `env:"LOG_JSON"`
	ServerAddr    *string `env:"SERVER_ADDR"`
}

const envPrefix = "LOVEFIT_"

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment overrides onto cfg.
func ApplyEnv(cfg FileConfig) (FileConfig, error) {
	var ec EnvConfig
	if err := ParseEnv(&ec); err != nil {
		return cfg, err
	}
	overlay(&cfg.Story.Mode, ec.StoryMode)
	overlay(&cfg.Story.Countdown, ec.Countdown)
	overlay(&cfg.Story.HeartRateGate, ec.HeartRateGate)
	overlay(&cfg.Story.Catalog, ec.Catalog)
	overlay(&cfg.Sync.BaseURL, ec.SyncBaseURL)
	overlay(&cfg.Sync.Mock, ec.SyncMock)
	overlay(&cfg.Sync.TimeoutSec, ec.SyncTimeout)
	overlay(&cfg.Log.Level, ec.LogLevel)
	overlay(&cfg.Log.File, ec.LogFile)
	overlay(&cfg.Log.JSON, ec.LogJSON)
	overlay(&cfg.Server.Addr, ec.ServerAddr)
	return cfg, nil
}

// Load reads the file at path and applies environment overrides.
func Load(path string) (FileConfig, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return cfg, err
	}
	return ApplyEnv(cfg)
}

func overlay[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}

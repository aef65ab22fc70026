// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Story  StoryConfig  `toml:"story"`
	Sync   SyncConfig   `toml:"sync"`
	Log    LogConfig    `toml:"log"`
	Server ServerConfig `toml:"server"`
}

// StoryConfig maps story playback settings.
type StoryConfig struct {
	Mode          *string `toml:"mode"`
	Countdown     *int    `toml:"countdown"`
	HeartRateGate *bool   `toml:"heart-rate-gate"`
	Catalog       *string `toml:"catalog"`
}

// SyncConfig maps progress sync settings.
type SyncConfig struct {
	BaseURL    *string `toml:"base-url"`
	Mock       *bool   `toml:"mock"`
	TimeoutSec *int    `toml:"timeout"`
	Submit     *int    `toml:"submit"`
}

// LogConfig maps logging settings.
type LogConfig struct {
	Level  *string `toml:"level"`
	File   *string `toml:"file"`
	JSON   *bool   `toml:"json"`
	Stdout *bool   `toml:"stdout"`
}

// ServerConfig maps the local progress server settings.
type ServerConfig struct {
	Addr *string `toml:"addr"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// DefaultTemplate is written by `lovefit config` when no file exists yet.
func DefaultTemplate() string {
	return `# lovefit configuration

[story]
# auto | chapter-gate
mode = "auto"
# seconds a chapter stays locked in chapter-gate mode
countdown = 15
# hold auto-advance on heart-rate warning segments
heart-rate-gate = false
# custom YAML catalog; empty uses the built-in story
# catalog = ""

[sync]
base-url = "http://localhost:5001/api"
mock = false
timeout = 10
# number of recent workouts submitted per sync
submit = 3

[log]
level = "info"
# file = ""
json = false
stdout = false

[server]
addr = ":5001"
`
}

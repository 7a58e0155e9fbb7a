package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr    string `json:"addr" yaml:"addr" toml:"addr"`
	DataDir string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`

	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"` // "console" or "json"
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`

	// LoopIntervalMinutes is the heartbeat cadence; 0 means the default.
	LoopIntervalMinutes int `json:"loop_interval_minutes" yaml:"loop_interval_minutes" toml:"loop_interval_minutes"`
	// SuggestionExpiryMinutes bounds how old a suggestion may be and still
	// be enacted; 0 means the default.
	SuggestionExpiryMinutes int `json:"suggestion_expiry_minutes" yaml:"suggestion_expiry_minutes" toml:"suggestion_expiry_minutes"`
	// ClosedLoop is the initial mode when the store has no persisted
	// settings yet.
	ClosedLoop      bool `json:"closed_loop" yaml:"closed_loop" toml:"closed_loop"`
	ResumeIfNoTemp  bool `json:"resume_if_no_temp" yaml:"resume_if_no_temp" toml:"resume_if_no_temp"`
	AutotuneEnabled bool `json:"autotune_enabled" yaml:"autotune_enabled" toml:"autotune_enabled"`

	// EngineURL points at the external dosing-engine service; required for
	// serve.
	EngineURL string `json:"engine_url" yaml:"engine_url" toml:"engine_url"`
	// EngineTimeoutSeconds bounds each engine call; 0 means the default.
	EngineTimeoutSeconds int `json:"engine_timeout_seconds" yaml:"engine_timeout_seconds" toml:"engine_timeout_seconds"`

	NightscoutURL   string `json:"nightscout_url" yaml:"nightscout_url" toml:"nightscout_url"`
	NightscoutToken string `json:"nightscout_token" yaml:"nightscout_token" toml:"nightscout_token"`

	CORSEnabled bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// LoopInterval returns the heartbeat interval as a duration.
func (c Config) LoopInterval() time.Duration {
	if c.LoopIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.LoopIntervalMinutes) * time.Minute
}

// SuggestionExpiry returns the suggestion validity window as a duration.
func (c Config) SuggestionExpiry() time.Duration {
	if c.SuggestionExpiryMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.SuggestionExpiryMinutes) * time.Minute
}

// EngineTimeout returns the per-call engine timeout as a duration.
func (c Config) EngineTimeout() time.Duration {
	if c.EngineTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.EngineTimeoutSeconds) * time.Second
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

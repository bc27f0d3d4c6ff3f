// Package config holds the daemon's configuration tree: engine tunables,
// logging, config-reload behaviour, optional telemetry and pcap replay.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	App       *AppConfig       `yaml:"app" mapstructure:"app"`
	Engine    *EngineConfig    `yaml:"engine" mapstructure:"engine"`
	Log       *LogConfig       `yaml:"log" mapstructure:"log"`
	Telemetry *TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
	Replay    *ReplayConfig    `yaml:"replay" mapstructure:"replay"`
}

// AppConfig carries identity fields unrelated to any one subsystem.
type AppConfig struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Version     string `yaml:"version" mapstructure:"version"`
	Environment string `yaml:"environment" mapstructure:"environment"`
	Debug       bool   `yaml:"debug" mapstructure:"debug"`
}

// EngineConfig configures the zdtun engine instance.
type EngineConfig struct {
	MaxWindow     int  `yaml:"max_window" mapstructure:"max_window"`         // TCP window cap the engine advertises to clients
	SocketCeiling int  `yaml:"socket_ceiling" mapstructure:"socket_ceiling"` // open-socket budget before overload eviction kicks in
	FixedISN      bool `yaml:"fixed_isn" mapstructure:"fixed_isn"`           // use the deterministic legacy ISN instead of crypto/rand
}

// LogConfig mirrors the shape the logging package expects.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`             // debug/info/warn/error
	Format     string `yaml:"format" mapstructure:"format"`           // json/text
	Output     string `yaml:"output" mapstructure:"output"`           // stdout/file/both
	FilePath   string `yaml:"file_path" mapstructure:"file_path"`     // rotated log file path when Output includes file
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`       // megabytes before rotation
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"` // rotated files kept
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`         // days rotated files are kept
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
	Caller     bool   `yaml:"caller" mapstructure:"caller"` // include calling function/line
}

// TelemetryConfig configures the optional Redis stats publisher.
type TelemetryConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisAddr       string        `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisDB         int           `yaml:"redis_db" mapstructure:"redis_db"`
	KeyPrefix       string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	PublishInterval time.Duration `yaml:"publish_interval" mapstructure:"publish_interval"`
}

// ReplayConfig configures the pcap-replay harness used for offline testing
// of the engine against captured traffic.
type ReplayConfig struct {
	PcapPath string  `yaml:"pcap_path" mapstructure:"pcap_path"`
	Speed    float64 `yaml:"speed" mapstructure:"speed"` // playback speed multiplier, 0 means as-fast-as-possible
}

// WriteExample marshals cfg to path as YAML, for seeding a fresh
// ./configs/config.yaml an operator can then edit by hand. Unlike
// ConfigLoader, which only ever reads through viper, this writes with
// yaml.v3 directly so the emitted file keeps the same field ordering and
// comments-free layout regardless of how viper happens to serialize maps.
func (c *Config) WriteExample(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling example config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing example config to %s: %w", path, err)
	}
	return nil
}

// DefaultConfig returns a Config populated with the same defaults
// ConfigLoader.setDefaults applies, for use by WriteExample without
// needing a live viper instance.
func DefaultConfig() *Config {
	return &Config{
		App: &AppConfig{
			Name:        "zdtund",
			Version:     "0.1.0",
			Environment: "development",
		},
		Engine: &EngineConfig{
			MaxWindow:     64240,
			SocketCeiling: CeilingSelectBasedDefault,
		},
		Log: &LogConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePath:   "./logs/zdtund.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		},
		Telemetry: &TelemetryConfig{
			RedisAddr:       "localhost:6379",
			KeyPrefix:       "zdtun",
			PublishInterval: 5 * time.Second,
		},
		Replay: &ReplayConfig{
			Speed: 1.0,
		},
	}
}

// CeilingSelectBasedDefault is the same default ConfigLoader.setDefaults
// applies for engine.socket_ceiling: the conservative fd_set/select-based
// ceiling (zdtun.CeilingSelectBased), chosen so the shipped default is safe
// whichever readiness primitive the embedder's event loop actually uses.
// Duplicated here (rather than importing zdtun just to name a number) so
// DefaultConfig stays a plain value constructor.
const CeilingSelectBasedDefault = 55

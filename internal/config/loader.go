package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// ConfigLoader reads the config tree from a YAML file, environment
// variables (ZDTUND_ prefixed) and built-in defaults. Environment
// variables override the file, and the file overrides the defaults.
type ConfigLoader struct {
	configPath string
	envPrefix  string
	viper      *viper.Viper
}

// NewConfigLoader creates a loader that searches configPath for config
// files. envPrefix defaults to ZDTUND when empty.
func NewConfigLoader(configPath, envPrefix string) *ConfigLoader {
	if envPrefix == "" {
		envPrefix = "ZDTUND"
	}
	return &ConfigLoader{
		configPath: configPath,
		envPrefix:  envPrefix,
		viper:      viper.New(),
	}
}

// LoadConfig loads and validates the configuration.
func (cl *ConfigLoader) LoadConfig() (*Config, error) {
	cl.viper.SetConfigType("yaml")
	cl.viper.SetEnvPrefix(cl.envPrefix)
	cl.viper.AutomaticEnv()
	cl.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cl.bindEnvVars()
	cl.setDefaults()

	if err := cl.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	var config Config
	if err := cl.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cl.validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (cl *ConfigLoader) loadConfigFile() error {
	if cl.configPath == "" {
		if envPath := os.Getenv("ZDTUND_CONFIG_PATH"); envPath != "" {
			cl.configPath = envPath
		} else {
			cl.configPath = "./configs"
		}
	}

	cl.viper.AddConfigPath(cl.configPath)
	cl.viper.AddConfigPath("./configs")
	cl.viper.AddConfigPath(".")
	cl.viper.SetConfigName("config")

	if err := cl.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file on disk is fine; defaults plus env vars carry the load.
			return nil
		}
		return err
	}
	return nil
}

func (cl *ConfigLoader) bindEnvVars() {
	cl.viper.BindEnv("app.name", "ZDTUND_APP_NAME")
	cl.viper.BindEnv("app.environment", "ZDTUND_APP_ENVIRONMENT")
	cl.viper.BindEnv("app.debug", "ZDTUND_APP_DEBUG")

	cl.viper.BindEnv("engine.max_window", "ZDTUND_ENGINE_MAX_WINDOW")
	cl.viper.BindEnv("engine.socket_ceiling", "ZDTUND_ENGINE_SOCKET_CEILING")
	cl.viper.BindEnv("engine.fixed_isn", "ZDTUND_ENGINE_FIXED_ISN")

	cl.viper.BindEnv("log.level", "ZDTUND_LOG_LEVEL")
	cl.viper.BindEnv("log.format", "ZDTUND_LOG_FORMAT")
	cl.viper.BindEnv("log.output", "ZDTUND_LOG_OUTPUT")
	cl.viper.BindEnv("log.file_path", "ZDTUND_LOG_FILE_PATH")

	cl.viper.BindEnv("telemetry.enabled", "ZDTUND_TELEMETRY_ENABLED")
	cl.viper.BindEnv("telemetry.redis_addr", "ZDTUND_TELEMETRY_REDIS_ADDR")

	cl.viper.BindEnv("replay.pcap_path", "ZDTUND_REPLAY_PCAP_PATH")
}

func (cl *ConfigLoader) setDefaults() {
	cl.viper.SetDefault("app.name", "zdtund")
	cl.viper.SetDefault("app.version", "0.1.0")
	cl.viper.SetDefault("app.environment", "development")
	cl.viper.SetDefault("app.debug", false)

	cl.viper.SetDefault("engine.max_window", 64240)
	cl.viper.SetDefault("engine.socket_ceiling", 55)
	cl.viper.SetDefault("engine.fixed_isn", false)

	cl.viper.SetDefault("log.level", "info")
	cl.viper.SetDefault("log.format", "text")
	cl.viper.SetDefault("log.output", "stdout")
	cl.viper.SetDefault("log.file_path", "./logs/zdtund.log")
	cl.viper.SetDefault("log.max_size", 100)
	cl.viper.SetDefault("log.max_backups", 3)
	cl.viper.SetDefault("log.max_age", 28)
	cl.viper.SetDefault("log.compress", true)
	cl.viper.SetDefault("log.caller", false)

	cl.viper.SetDefault("telemetry.enabled", false)
	cl.viper.SetDefault("telemetry.redis_addr", "localhost:6379")
	cl.viper.SetDefault("telemetry.redis_db", 0)
	cl.viper.SetDefault("telemetry.key_prefix", "zdtun")
	cl.viper.SetDefault("telemetry.publish_interval", "5s")

	cl.viper.SetDefault("replay.speed", 1.0)
}

func (cl *ConfigLoader) validateConfig(config *Config) error {
	if config.Engine.MaxWindow <= 0 || config.Engine.MaxWindow > 65535 {
		return fmt.Errorf("invalid engine.max_window: %d", config.Engine.MaxWindow)
	}
	if config.Engine.SocketCeiling <= 0 {
		return fmt.Errorf("invalid engine.socket_ceiling: %d", config.Engine.SocketCeiling)
	}
	switch config.Log.Output {
	case "stdout", "stderr", "file", "both":
	default:
		return fmt.Errorf("invalid log.output: %s", config.Log.Output)
	}
	return nil
}

// GetConfigPath returns the config file viper actually loaded, empty if none.
func (cl *ConfigLoader) GetConfigPath() string {
	return cl.viper.ConfigFileUsed()
}

// LoadConfigFromFile is a convenience wrapper for loading a single file.
func LoadConfigFromFile(configFile string) (*Config, error) {
	loader := NewConfigLoader(filepath.Dir(configFile), "ZDTUND")
	return loader.LoadConfig()
}

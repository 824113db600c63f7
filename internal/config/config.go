package config

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. CHRONO_SERVER_PORT
const EnvPrefix = "CHRONO"

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// newViper layers defaults, the config file and the environment
func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Defaults are loaded as a YAML layer so that every key is known to
	// viper and can be overridden from the environment
	defaults, err := yaml.Marshal(GetDefaults())
	if err != nil {
		return nil, fmt.Errorf("failed to encode default config: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/chrono/")
		v.AddConfigPath("$HOME/.chrono/")
	}

	if err := v.MergeInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	config := GetDefaults()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("invalid max body size: %d", config.Server.MaxBodyBytes)
	}

	switch config.Rules.Source {
	case "dir":
		if config.Rules.Dir == "" {
			return fmt.Errorf("rules.dir is required for the dir source")
		}
	case "postgres":
		if config.Rules.Database.DatabaseURL == "" {
			return fmt.Errorf("rules.database.database_url is required for the postgres source")
		}
	default:
		return fmt.Errorf("invalid rules source: %s (must be dir or postgres)", config.Rules.Source)
	}

	if config.Rules.Watch && config.Rules.Source != "dir" {
		return fmt.Errorf("rules.watch is only supported for the dir source")
	}

	if config.Rules.MatchTimeout < 0 {
		return fmt.Errorf("invalid match timeout: %s", config.Rules.MatchTimeout)
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("cache.redis_url is required when the cache is enabled")
	}

	if config.RateLimit.Enabled && (config.RateLimit.RequestsPerSecond <= 0 || config.RateLimit.Burst <= 0) {
		return fmt.Errorf("invalid rate limit: %.2f rps, burst %d", config.RateLimit.RequestsPerSecond, config.RateLimit.Burst)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.Batch.Workers <= 0 {
		return fmt.Errorf("invalid batch workers: %d", config.Batch.Workers)
	}

	switch config.Batch.Format {
	case "", "csv", "jsonl", "parquet":
	default:
		return fmt.Errorf("invalid batch format: %s (must be csv, jsonl or parquet)", config.Batch.Format)
	}

	return nil
}

// Watch reloads the configuration file on change and hands every valid
// revision to callback
func Watch(configPath string, callback func(*Config), logger *zap.Logger) error {
	v, err := newViper(configPath)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return fmt.Errorf("no config file to watch")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		newConfig, err := decode(v)
		if err != nil {
			logger.Warn("Ignoring invalid config change",
				zap.String("file", e.Name),
				zap.Error(err))
			return
		}

		logger.Info("Config reloaded", zap.String("file", e.Name))
		callback(newConfig)
	})
	v.WatchConfig()

	return nil
}

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables take
// precedence over file values, and defaults fill whatever neither
// provides. Returns a populated Config or an error if loading or
// validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CREWPLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; anything else (unreadable, malformed) is not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for every recognized key. Registering
// them all also makes AutomaticEnv pick up keys that appear in no config
// file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.url", "")

	v.SetDefault("queue.name", "tasks")
	v.SetDefault("queue.dead_letter_name", "tasks-dead-letter")

	v.SetDefault("worker.enabled", true)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.backoff_ms", 5000)
	v.SetDefault("worker.poll_interval_ms", 500)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval_ms", 60000)
	v.SetDefault("scheduler.batch_size", 1)
}

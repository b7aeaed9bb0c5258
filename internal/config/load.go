package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables take
// precedence over values from the config file; a local .env file, if
// present, is loaded into the process environment first.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	// Best effort; absent in production deployments.
	_ = godotenv.Load()

	v := viper.New()

	// Defaults keep a bare environment runnable for local development.
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("auth.token_lifetime_hours", 24)
	v.SetDefault("auth.bcrypt_cost", 0) // 0 selects the bcrypt package default
	v.SetDefault("providers.attempt_timeout_seconds", 120)
	v.SetDefault("storage.path", "./generated")
	v.SetDefault("storage.base_url", "/images")
	v.SetDefault("limits.daily_generations", 50)
	v.SetDefault("limits.monthly_generations", 500)

	// Keys without meaningful defaults still need registering so that
	// AutomaticEnv can populate them during Unmarshal.
	v.SetDefault("database.url", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("providers.replicate_api_token", "")
	v.SetDefault("providers.openai_api_key", "")
	v.SetDefault("providers.gemini_api_key", "")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults suffice.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// IMAGEGEN_SERVER_PORT overrides server.port, and so on.
	v.SetEnvPrefix("IMAGEGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

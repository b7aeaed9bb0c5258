package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Storage   StorageConfig   `mapstructure:"storage"   validate:"required"`
	Limits    LimitsConfig    `mapstructure:"limits"    validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret          string `mapstructure:"jwt_secret"           validate:"required,min=32"`
	TokenLifetimeHours int    `mapstructure:"token_lifetime_hours" validate:"required,gt=0"`
	BcryptCost         int    `mapstructure:"bcrypt_cost"          validate:"gte=0,lte=31"`
}

// ProvidersConfig holds credentials and call settings for the external
// image-generation providers. A provider whose credential is empty is
// simply absent from the registry; no key is individually required.
type ProvidersConfig struct {
	ReplicateAPIToken string `mapstructure:"replicate_api_token"`
	OpenAIAPIKey      string `mapstructure:"openai_api_key"`
	GeminiAPIKey      string `mapstructure:"gemini_api_key"`

	// AttemptTimeoutSeconds bounds each individual provider attempt.
	// Provider calls are long-running, on the order of tens of seconds.
	AttemptTimeoutSeconds int `mapstructure:"attempt_timeout_seconds" validate:"gt=0"`
}

// StorageConfig contains settings for the local image blob store.
type StorageConfig struct {
	Path    string `mapstructure:"path"     validate:"required"`
	BaseURL string `mapstructure:"base_url" validate:"required"`
}

// LimitsConfig contains the per-user generation quota ceilings.
type LimitsConfig struct {
	DailyGenerations   int `mapstructure:"daily_generations"   validate:"required,gt=0"`
	MonthlyGenerations int `mapstructure:"monthly_generations" validate:"required,gt=0"`
}

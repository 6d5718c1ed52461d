package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Server      ServerConfig      `mapstructure:"server"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Redis       RedisConfig       `mapstructure:"redis"`
	ObjectStore ObjectStoreConfig `mapstructure:"object_store"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PostgresConfig holds the relational store connection settings. The store
// itself is an external collaborator; this is only the interface needed to
// reach it.
type PostgresConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxConns     int32  `mapstructure:"max_conns"`
	MaxOverflow  int32  `mapstructure:"max_overflow"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type ServerConfig struct {
	Port               string `mapstructure:"port"`
	GinMode            string `mapstructure:"gin_mode"`
	CORSAllowedOrigins string `mapstructure:"cors_allowed_origins"`
	RequestTimeout     string `mapstructure:"request_timeout"`
}

// RateLimitConfig holds the per-route limits named in the external
// interfaces design (§6 of the requirements doc).
type RateLimitConfig struct {
	MessagesPerMin        int    `mapstructure:"messages_per_min"`
	ReactionsPerMin        int    `mapstructure:"reactions_per_min"`
	EncryptionMutationsMin int    `mapstructure:"encryption_mutations_per_min"`
	EncryptionReadsMin     int    `mapstructure:"encryption_reads_per_min"`
	Window                 string `mapstructure:"window"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ObjectStoreConfig holds the object-store settings; LoadConfig requires
// BucketHost. The file proxy receives this config but serves objects by
// storage key and checks no host against BucketHost.
type ObjectStoreConfig struct {
	BucketHost       string `mapstructure:"bucket_host"`
	MaxFileSize      int64  `mapstructure:"max_file_size"`
	AllowedFileTypes string `mapstructure:"allowed_file_types"`
}

// LoadConfig loads configuration from environment variables and a .env file.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[Config] no .env file found, using environment variables")
	}

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.gin_mode", "debug")
	viper.SetDefault("server.request_timeout", "30s")
	viper.SetDefault("jwt.issuer", "")
	viper.SetDefault("postgres.max_conns", 20)
	viper.SetDefault("postgres.max_overflow", 10)
	viper.SetDefault("rate_limit.messages_per_min", 30)
	viper.SetDefault("rate_limit.reactions_per_min", 60)
	viper.SetDefault("rate_limit.encryption_mutations_per_min", 20)
	viper.SetDefault("rate_limit.encryption_reads_per_min", 60)
	viper.SetDefault("rate_limit.window", "1m")
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("object_store.max_file_size", 26214400) // 25MB
	viper.SetDefault("object_store.allowed_file_types", "image/jpeg,image/png,image/gif,image/webp,audio/webm,audio/mpeg,application/pdf")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	viper.SetEnvPrefix("")
	viper.AutomaticEnv()

	viper.BindEnv("postgres.dsn", "DATABASE_URL")
	viper.BindEnv("postgres.max_conns", "DB_MAX_CONNS")
	viper.BindEnv("postgres.max_overflow", "DB_MAX_OVERFLOW")
	viper.BindEnv("jwt.secret", "JWT_SECRET")
	viper.BindEnv("jwt.issuer", "JWT_ISSUER")
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("server.gin_mode", "GIN_MODE")
	viper.BindEnv("server.cors_allowed_origins", "CORS_ALLOWED_ORIGINS")
	viper.BindEnv("server.request_timeout", "REQUEST_TIMEOUT")
	viper.BindEnv("rate_limit.messages_per_min", "RATE_LIMIT_MESSAGES")
	viper.BindEnv("rate_limit.reactions_per_min", "RATE_LIMIT_REACTIONS")
	viper.BindEnv("rate_limit.encryption_mutations_per_min", "RATE_LIMIT_ENCRYPTION_MUTATIONS")
	viper.BindEnv("rate_limit.encryption_reads_per_min", "RATE_LIMIT_ENCRYPTION_READS")
	viper.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")
	viper.BindEnv("object_store.bucket_host", "OBJECT_STORE_BUCKET_HOST")
	viper.BindEnv("object_store.max_file_size", "OBJECT_STORE_MAX_FILE_SIZE")
	viper.BindEnv("object_store.allowed_file_types", "OBJECT_STORE_ALLOWED_FILE_TYPES")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("logging.format", "LOG_FORMAT")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validateConfig(config *Config) error {
	requiredFields := map[string]string{
		"DATABASE_URL": config.Postgres.DSN,
		"JWT_SECRET":   config.JWT.Secret,
	}

	for field, value := range requiredFields {
		if value == "" {
			return &ConfigError{Field: field, Msg: "required configuration field is missing"}
		}
	}

	if len(config.JWT.Secret) < 32 {
		return &ConfigError{Field: "JWT_SECRET", Msg: "JWT secret must be at least 32 characters long"}
	}

	if config.ObjectStore.BucketHost == "" {
		return &ConfigError{Field: "OBJECT_STORE_BUCKET_HOST", Msg: "required configuration field is missing"}
	}

	return nil
}

// GetCORSOrigins returns the allowed CORS origins.
func (c *Config) GetCORSOrigins() []string {
	if c.Server.CORSAllowedOrigins == "" {
		return []string{"http://localhost:3000"}
	}
	origins := strings.Split(c.Server.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + " - " + e.Msg
}

// GetEnv returns an environment variable with a fallback.
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

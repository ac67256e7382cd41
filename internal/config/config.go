package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Dataset storage configuration
	Dataset DatasetConfig

	// Query configuration
	Query QueryConfig

	// Redis configuration (response cache and sessions)
	Redis RedisConfig

	// Database configuration (query history)
	Database DatabaseConfig

	// History configuration
	History HistoryConfig

	// Authentication configuration
	Auth AuthConfig

	// Logging configuration
	Logging LoggingConfig

	// Tracing configuration
	Tracing TracingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          string
	GinMode       string
	MemoryLimitMB int
}

// DatasetConfig holds CSV dataset storage configuration
type DatasetConfig struct {
	DataDir     string
	MaxUploadMB int

	// DefaultHandle is queried when a request names no dataset
	DefaultHandle string
}

// QueryConfig holds query processing configuration
type QueryConfig struct {
	MaxResultRows      int
	MaxQuestionLength  int
	Timeout            time.Duration
	CacheTTL           time.Duration
	EnableSafetyChecks bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	SSLMode  string
}

// DSN returns the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode)
}

// URL returns the connection string in URL form, as golang-migrate expects
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// HistoryConfig holds query history configuration
type HistoryConfig struct {
	Enabled      bool
	ListLimit    int
	MigrationDir string
}

// AuthConfig holds authentication and authorization configuration
type AuthConfig struct {
	JWTSecret      string
	JWTExpiry      time.Duration
	SessionExpiry  time.Duration
	RateLimit      int
	AllowAnonymous bool
	// Users are "username:bcrypt-hash[:role|role]" entries; the role defaults to user
	Users []string
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled bool
}

// Loader handles loading configuration from various sources
type Loader struct {
	provider SecretProvider
}

// NewLoader creates a new configuration loader with the given secret provider
func NewLoader(provider SecretProvider) *Loader {
	return &Loader{
		provider: provider,
	}
}

// NewDefaultLoader creates a loader with the default provider chain:
// 1. File-based secrets (if available)
// 2. Environment variables
// 3. A .env file in the working directory (if present)
func NewDefaultLoader() *Loader {
	providers := []SecretProvider{
		NewFileProvider("/var/secrets"),
		NewEnvProvider(""),
		NewDotenvProvider(".env"),
	}

	return &Loader{
		provider: NewChainProvider(providers...),
	}
}

// Load loads the complete configuration
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}

	cfg.Server = ServerConfig{
		Port:          l.getString(ctx, "PORT", "8000"),
		GinMode:       l.getString(ctx, "GIN_MODE", "debug"),
		MemoryLimitMB: l.getInt(ctx, "MEMORY_LIMIT_MB", 1024),
	}

	cfg.Dataset = DatasetConfig{
		DataDir:       l.getString(ctx, "DATA_DIR", "./data"),
		MaxUploadMB:   l.getInt(ctx, "MAX_UPLOAD_MB", 50),
		DefaultHandle: l.getString(ctx, "DEFAULT_DATASET", "sample.csv"),
	}

	cfg.Query = QueryConfig{
		MaxResultRows:      l.getInt(ctx, "MAX_RESULT_ROWS", 200),
		MaxQuestionLength:  l.getInt(ctx, "MAX_QUESTION_LENGTH", 500),
		Timeout:            l.getDuration(ctx, "QUERY_TIMEOUT", 30*time.Second),
		CacheTTL:           l.getDuration(ctx, "CACHE_TTL", 5*time.Minute),
		EnableSafetyChecks: l.getBool(ctx, "ENABLE_SAFETY_CHECKS", true),
	}

	cfg.Redis = RedisConfig{
		Enabled:  l.getBool(ctx, "REDIS_ENABLED", false),
		Addr:     l.getString(ctx, "REDIS_ADDR", "localhost:6379"),
		Password: l.getString(ctx, "REDIS_PASSWORD", ""),
		DB:       l.getInt(ctx, "REDIS_DB", 0),
	}

	cfg.Database = DatabaseConfig{
		Host:     l.getString(ctx, "DB_HOST", "localhost"),
		Port:     l.getString(ctx, "DB_PORT", "5432"),
		Database: l.getString(ctx, "DB_NAME", "hr_analytics"),
		Username: l.getString(ctx, "DB_USER", "hrbot"),
		Password: l.getString(ctx, "DB_PASSWORD", ""),
		SSLMode:  l.getString(ctx, "DB_SSLMODE", "disable"),
	}

	cfg.History = HistoryConfig{
		Enabled:      l.getBool(ctx, "HISTORY_ENABLED", false),
		ListLimit:    l.getInt(ctx, "HISTORY_LIST_LIMIT", 50),
		MigrationDir: l.getString(ctx, "MIGRATIONS_DIR", "migrations"),
	}

	cfg.Auth = AuthConfig{
		JWTSecret:      l.getString(ctx, "JWT_SECRET", ""),
		JWTExpiry:      l.getDuration(ctx, "JWT_EXPIRY", 24*time.Hour),
		SessionExpiry:  l.getDuration(ctx, "SESSION_EXPIRY", 7*24*time.Hour),
		RateLimit:      l.getInt(ctx, "RATE_LIMIT", 60),
		AllowAnonymous: l.getBool(ctx, "ALLOW_ANONYMOUS", true),
		Users:          l.getSlice(ctx, "AUTH_USERS", []string{}),
	}

	cfg.Logging = LoggingConfig{
		Level:  l.getString(ctx, "LOG_LEVEL", "info"),
		Format: l.getString(ctx, "LOG_FORMAT", "json"),
	}

	cfg.Tracing = TracingConfig{
		Enabled: l.getBool(ctx, "TRACING_ENABLED", false),
	}

	return cfg, nil
}

// Helper methods for retrieving and parsing configuration values

func (l *Loader) getString(ctx context.Context, key, defaultValue string) string {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}
	return value
}

func (l *Loader) getBool(ctx context.Context, key string, defaultValue bool) bool {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func (l *Loader) getInt(ctx context.Context, key string, defaultValue int) int {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}

func (l *Loader) getDuration(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func (l *Loader) getSlice(ctx context.Context, key string, defaultValue []string) []string {
	value, err := l.provider.GetSecret(ctx, key)
	if err != nil || value == "" {
		return defaultValue
	}

	// Split by comma and trim whitespace
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// MustLoad loads configuration and panics on error
// Useful for application startup
func (l *Loader) MustLoad(ctx context.Context) *Config {
	cfg, err := l.Load(ctx)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

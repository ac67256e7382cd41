package config

import (
	"strings"
	"testing"
	"time"
)

// validConfig returns a development config that passes Validate
func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    "8000",
			GinMode: "debug",
		},
		Dataset: DatasetConfig{
			DataDir:     "./data",
			MaxUploadMB: 50,
		},
		Query: QueryConfig{
			MaxResultRows:      200,
			MaxQuestionLength:  500,
			Timeout:            30 * time.Second,
			CacheTTL:           5 * time.Minute,
			EnableSafetyChecks: true,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			Database: "hr_analytics",
			Username: "hrbot",
		},
		Auth: AuthConfig{
			JWTExpiry:      24 * time.Hour,
			SessionExpiry:  7 * 24 * time.Hour,
			RateLimit:      60,
			AllowAnonymous: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// productionConfig returns a config that passes ValidateProduction
func productionConfig() *Config {
	cfg := validConfig()
	cfg.Server.GinMode = "release"
	cfg.Auth.AllowAnonymous = false
	cfg.Auth.JWTSecret = "super-secure-jwt-secret-with-at-least-32-characters"
	cfg.Auth.Users = []string{"analyst:$2a$10$hash"}
	cfg.History.Enabled = true
	cfg.Database.Password = "secure-random-password-123"
	cfg.Redis = RedisConfig{Enabled: true, Addr: "redis:6379", Password: "secure-redis-password"}
	return cfg
}

func TestConfigValidation(t *testing.T) {
	t.Run("valid config passes validation", func(t *testing.T) {
		if err := validConfig().Validate(); err != nil {
			t.Errorf("expected no validation errors, got: %v", err)
		}
	})

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "missing port",
			mutate:    func(c *Config) { c.Server.Port = "" },
			wantField: "Server.Port",
		},
		{
			name:      "invalid gin mode",
			mutate:    func(c *Config) { c.Server.GinMode = "production" },
			wantField: "Server.GinMode",
		},
		{
			name:      "missing data dir",
			mutate:    func(c *Config) { c.Dataset.DataDir = "" },
			wantField: "Dataset.DataDir",
		},
		{
			name:      "zero upload limit",
			mutate:    func(c *Config) { c.Dataset.MaxUploadMB = 0 },
			wantField: "Dataset.MaxUploadMB",
		},
		{
			name:      "zero result rows",
			mutate:    func(c *Config) { c.Query.MaxResultRows = 0 },
			wantField: "Query.MaxResultRows",
		},
		{
			name:      "negative cache TTL",
			mutate:    func(c *Config) { c.Query.CacheTTL = -time.Second },
			wantField: "Query.CacheTTL",
		},
		{
			name: "redis enabled without address",
			mutate: func(c *Config) {
				c.Redis.Enabled = true
				c.Redis.Addr = ""
			},
			wantField: "Redis.Addr",
		},
		{
			name: "history enabled without database host",
			mutate: func(c *Config) {
				c.History.Enabled = true
				c.Database.Host = ""
			},
			wantField: "Database.Host",
		},
		{
			name:      "users without JWT secret",
			mutate:    func(c *Config) { c.Auth.Users = []string{"analyst:$2a$10$hash"} },
			wantField: "Auth.JWTSecret",
		},
		{
			name: "closed access without users",
			mutate: func(c *Config) {
				c.Auth.AllowAnonymous = false
				c.Auth.JWTSecret = "secret"
			},
			wantField: "Auth.Users",
		},
		{
			name: "malformed user entry",
			mutate: func(c *Config) {
				c.Auth.JWTSecret = "secret"
				c.Auth.Users = []string{"analyst"}
			},
			wantField: "Auth.Users[0]",
		},
		{
			name:      "invalid log format",
			mutate:    func(c *Config) { c.Logging.Format = "xml" },
			wantField: "Logging.Format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}

			validationErrs, ok := err.(ValidationErrors)
			if !ok {
				t.Fatalf("expected ValidationErrors, got %T", err)
			}

			found := false
			for _, ve := range validationErrs {
				if ve.Field == tt.wantField {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("expected error for %s, got: %v", tt.wantField, err)
			}
		})
	}

	t.Run("disabled backends are not validated", func(t *testing.T) {
		cfg := validConfig()
		cfg.Redis.Addr = ""
		cfg.Database = DatabaseConfig{}
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected no errors for disabled backends, got: %v", err)
		}
	})

	t.Run("multiple errors are aggregated", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Port = ""
		cfg.Dataset.DataDir = ""

		err := cfg.Validate()
		if err == nil {
			t.Fatal("expected validation errors")
		}
		if !strings.Contains(err.Error(), "2 validation error(s)") {
			t.Errorf("expected two aggregated errors, got: %v", err)
		}
	})
}

func TestProductionValidation(t *testing.T) {
	t.Run("production config with secure values passes", func(t *testing.T) {
		if err := productionConfig().ValidateProduction(); err != nil {
			t.Errorf("expected no production validation errors, got: %v", err)
		}
	})

	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{
			name:        "default database password",
			mutate:      func(c *Config) { c.Database.Password = "changeme" },
			errContains: "database password",
		},
		{
			name:        "empty redis password",
			mutate:      func(c *Config) { c.Redis.Password = "" },
			errContains: "Redis password",
		},
		{
			name:        "insecure JWT secret",
			mutate:      func(c *Config) { c.Auth.JWTSecret = "secret" },
			errContains: "insecure JWT secret",
		},
		{
			name:        "short JWT secret",
			mutate:      func(c *Config) { c.Auth.JWTSecret = "short-but-not-in-the-list" },
			errContains: "at least 32 characters",
		},
		{
			name:        "debug mode",
			mutate:      func(c *Config) { c.Server.GinMode = "debug" },
			errContains: "'release' mode",
		},
		{
			name:        "anonymous access",
			mutate:      func(c *Config) { c.Auth.AllowAnonymous = true },
			errContains: "anonymous access",
		},
		{
			name:        "safety checks disabled",
			mutate:      func(c *Config) { c.Query.EnableSafetyChecks = false },
			errContains: "safety checks",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := productionConfig()
			tt.mutate(cfg)

			err := cfg.ValidateProduction()
			if err == nil {
				t.Fatal("expected production validation error")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("expected error containing %q, got: %v", tt.errContains, err)
			}
		})
	}

	t.Run("passwords of disabled backends are ignored", func(t *testing.T) {
		cfg := productionConfig()
		cfg.History.Enabled = false
		cfg.Redis.Enabled = false
		cfg.Database.Password = ""
		cfg.Redis.Password = ""
		if err := cfg.ValidateProduction(); err != nil {
			t.Errorf("expected no errors, got: %v", err)
		}
	})
}

func TestValidateWithContext(t *testing.T) {
	t.Run("development config skips production checks", func(t *testing.T) {
		if err := validConfig().ValidateWithContext(); err != nil {
			t.Errorf("expected no errors, got: %v", err)
		}
	})

	t.Run("release mode runs production checks", func(t *testing.T) {
		cfg := productionConfig()
		cfg.Query.EnableSafetyChecks = false

		err := cfg.ValidateWithContext()
		if err == nil {
			t.Fatal("expected production validation failure")
		}
		if !strings.Contains(err.Error(), "production validation failed") {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestIsProduction(t *testing.T) {
	tests := []struct {
		name     string
		ginMode  string
		expected bool
	}{
		{"release mode is production", "release", true},
		{"debug mode is not production", "debug", false},
		{"test mode is not production", "test", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server: ServerConfig{
					GinMode: tt.ginMode,
				},
			}

			if cfg.IsProduction() != tt.expected {
				t.Errorf("expected IsProduction() = %v, got %v", tt.expected, cfg.IsProduction())
			}
		})
	}
}

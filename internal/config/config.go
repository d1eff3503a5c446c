package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"milkman/internal/core"
)

type Config struct {
	// HTTP Server
	Port               string
	RateLimitPerMinute int

	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath  string
	MongoURI      string
	MongoDatabase string
	MemoryDataDir string

	// Auth
	AdminUsername string
	AdminPassword string
	SessionSecret string
	SessionTTL    time.Duration

	// Billing defaults used while no settings are persisted
	DefaultRateSource string
	DefaultGlobalRate float64
	DefaultCategory1  float64
	DefaultCategory2  float64
	RateExplicit      bool
	SettingsSaveDelay time.Duration

	// Cache
	CacheBackend  string
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets bill export
	GoogleSpreadsheetID string
	GoogleSheetName     string
	ExportInterval      time.Duration

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		DataBackend:        getEnv("DATA_BACKEND", "sqlite"),

		SQLiteDBPath:  getEnv("SQLITE_DB_PATH", "./data/milkman.db"),
		MongoURI:      getEnv("MONGODB_URI", ""),
		MongoDatabase: getEnv("MONGODB_DATABASE", "milkman"),
		MemoryDataDir: getEnv("MEMORY_DATA_DIR", "data"),

		AdminUsername: getEnv("ADMIN_USERNAME", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionTTL:    getEnvDuration("SESSION_TTL", 12*time.Hour),

		DefaultRateSource: getEnv("DEFAULT_RATE_SOURCE", ""),
		DefaultCategory1:  getEnvFloat("DEFAULT_CATEGORY1", core.DefaultCategory1Qty),
		DefaultCategory2:  getEnvFloat("DEFAULT_CATEGORY2", core.DefaultCategory2Qty),
		SettingsSaveDelay: getEnvDuration("SETTINGS_SAVE_DELAY", time.Second),

		CacheBackend:  getEnv("CACHE_BACKEND", "none"),
		CacheTTL:      getEnvDuration("CACHE_TTL", 5*time.Minute),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "milkman"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_changes"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Bills"),
		ExportInterval:      getEnvDuration("EXPORT_INTERVAL", time.Hour),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	cfg.resolveDefaultRate()
	return cfg
}

// resolveDefaultRate applies DEFAULT_GLOBAL_RATE over DEFAULT_RATE_SOURCE,
// falling back to the UI rate. RateExplicit records whether either was set.
func (c *Config) resolveDefaultRate() {
	if raw := os.Getenv("DEFAULT_GLOBAL_RATE"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			c.DefaultGlobalRate = v
			c.RateExplicit = true
			return
		}
	}
	if c.DefaultRateSource != "" {
		if v, err := core.RateSource(c.DefaultRateSource).Rate(); err == nil {
			c.DefaultGlobalRate = v
			c.RateExplicit = true
			return
		}
	}
	c.DefaultGlobalRate = core.UIDefaultRate
}

// DefaultSettings returns the settings served while nothing is persisted.
func (c *Config) DefaultSettings() core.Settings {
	return core.DefaultSettings(c.DefaultGlobalRate, c.DefaultCategory1, c.DefaultCategory2)
}

// AuthConfigured reports whether both admin credentials are set.
func (c *Config) AuthConfigured() bool {
	return c.AdminUsername != "" && c.AdminPassword != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	validBackends := []string{"memory", "sqlite", "mongo"}
	if !contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	case "mongo":
		if c.MongoURI == "" {
			errors = append(errors, "MONGODB_URI is required when using mongo backend")
		} else if u, err := url.Parse(c.MongoURI); err != nil {
			errors = append(errors, fmt.Sprintf("invalid MongoDB URI: %v", err))
		} else if u.Scheme != "mongodb" && u.Scheme != "mongodb+srv" {
			errors = append(errors, fmt.Sprintf("invalid MongoDB URI scheme '%s': must be 'mongodb' or 'mongodb+srv'", u.Scheme))
		}
		if c.MongoDatabase == "" {
			errors = append(errors, "MongoDB database name cannot be empty when using mongo backend")
		}
	}

	if c.DefaultRateSource != "" {
		if _, err := core.RateSource(c.DefaultRateSource).Rate(); err != nil {
			errors = append(errors, fmt.Sprintf("invalid DEFAULT_RATE_SOURCE: %v", err))
		}
	}
	if c.DefaultGlobalRate < 0 || c.DefaultCategory1 < 0 || c.DefaultCategory2 < 0 {
		errors = append(errors, "default rate and category quantities must not be negative")
	}

	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.SettingsSaveDelay < 0 || c.SettingsSaveDelay > time.Minute {
		errors = append(errors, fmt.Sprintf("invalid settings save delay %v: must be between 0 and 1 minute", c.SettingsSaveDelay))
	}

	switch c.CacheBackend {
	case "none", "memory":
	case "redis":
		if c.RedisAddr == "" {
			errors = append(errors, "REDIS_ADDR is required when using redis cache")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid cache backend '%s': must be one of [none memory redis]", c.CacheBackend))
	}
	if c.CacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be positive", c.CacheTTL))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.ExportInterval < time.Minute || c.ExportInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid export interval %v: must be between 1 minute and 24 hours", c.ExportInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateServer adds the checks only the HTTP server needs.
func (c *Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.AuthConfigured() && len(c.SessionSecret) < 16 {
		return fmt.Errorf("configuration validation failed:\n- SESSION_SECRET must be at least 16 characters when admin credentials are set")
	}
	return nil
}

// ValidateWorker adds the checks only the export worker needs.
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.GoogleSpreadsheetID == "" {
		return fmt.Errorf("configuration validation failed:\n- GOOGLE_SPREADSHEET_ID is required for the export worker")
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Supported identity store drivers.
const (
	StoreMariaDB = "mariadb"
	StoreMongo   = "mongo"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 5000).
	Port int

	// FrontendURL is the public URL of the SPA. Password reset links point here.
	FrontendURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// StoreDriver selects the identity store: "mariadb" or "mongo".
	StoreDriver string

	// MigrationsPath is the directory holding MariaDB migration files.
	MigrationsPath string

	// AllowedOrigins lists the origins allowed to make credentialed
	// cross-origin requests (the SPA).
	AllowedOrigins []string

	// TrustedProxies lists the CIDRs whose forwarding headers are believed
	// when resolving the client IP.
	TrustedProxies []string

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Mongo holds MongoDB connection settings.
	Mongo MongoConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Auth holds authentication-related settings.
	Auth AuthConfig

	// SMTP holds outbound mail settings.
	SMTP SMTPConfig
}

// DatabaseConfig holds MariaDB connection parameters. If DATABASE_URL is set,
// it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host string

	User     string
	Password string
	Name     string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// fields using the driver's Config.FormatDSN() to safely handle special
// characters in passwords.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	// Report matched rather than changed rows so an UPDATE that writes
	// identical values is not mistaken for a missing row.
	cfg.ClientFoundRows = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// MongoConfig holds MongoDB connection parameters.
type MongoConfig struct {
	// URL is the MongoDB connection string (e.g., "mongodb://localhost:27017").
	URL string

	// Database is the database holding the users and security_events collections.
	Database string
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

const (
	// MaxSessionTTL is the longest a session token may live.
	MaxSessionTTL = 24 * time.Hour

	// MaxResetTTL is the longest a password reset link may live.
	MaxResetTTL = time.Hour

	devSecretKey = "dev-secret-key-do-not-use-in-production!!"
)

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// SecretKey signs session tokens. Read once at startup; rotating it
	// invalidates every outstanding session.
	SecretKey string

	// SessionTTL is the validity window of a session token and its cookie.
	SessionTTL time.Duration

	// ResetTTL is how long a password reset link stays valid.
	ResetTTL time.Duration

	// HashConcurrency caps simultaneous bcrypt operations.
	HashConcurrency int
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	// Encryption is "starttls", "ssl", or "none".
	Encryption string

	// From is the sender address for all outbound mail.
	From string

	// SupportAddress receives contact-form messages.
	SupportAddress string
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{
		Env:            getEnv("ENV", "development"),
		Port:           getEnvInt("PORT", 5000),
		FrontendURL:    strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		LogLevel:       getEnv("LOG_LEVEL", "debug"),
		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", StoreMariaDB)),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "db/migrations"),
		AllowedOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		TrustedProxies: getEnvList("TRUSTED_PROXIES", []string{"127.0.0.1/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "stockroom"),
			Password:        getEnv("DB_PASSWORD", "stockroom"),
			Name:            getEnv("DB_NAME", "stockroom"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Mongo: MongoConfig{
			URL:      getEnv("MONGODB_URL", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "stockroom"),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Auth: AuthConfig{
			SecretKey:       getEnv("SECRET_KEY", getEnv("JWT_SECRET", "")),
			SessionTTL:      getEnvDuration("SESSION_TTL", MaxSessionTTL),
			ResetTTL:        getEnvDuration("RESET_TTL", MaxResetTTL),
			HashConcurrency: getEnvInt("HASH_CONCURRENCY", runtime.GOMAXPROCS(0)),
		},

		SMTP: SMTPConfig{
			Host:           getEnv("EMAIL_HOST", ""),
			Port:           getEnvInt("SMTP_PORT", 587),
			Username:       getEnv("EMAIL_USER", ""),
			Password:       getEnv("EMAIL_PASSWORD", ""),
			Encryption:     strings.ToLower(getEnv("SMTP_ENCRYPTION", "starttls")),
			From:           getEnv("EMAIL_FROM", getEnv("EMAIL_USER", "")),
			SupportAddress: getEnv("SUPPORT_EMAIL", getEnv("EMAIL_USER", "")),
		},
	}

	switch cfg.StoreDriver {
	case StoreMariaDB, StoreMongo:
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreMariaDB, StoreMongo, cfg.StoreDriver)
	}

	if cfg.Auth.HashConcurrency < 1 {
		cfg.Auth.HashConcurrency = 1
	}

	if err := validateTTL("SESSION_TTL", cfg.Auth.SessionTTL, MaxSessionTTL); err != nil {
		return nil, err
	}
	if err := validateTTL("RESET_TTL", cfg.Auth.ResetTTL, MaxResetTTL); err != nil {
		return nil, err
	}

	// Only development may run on the built-in secret. Every other
	// environment, including staging and typos, needs a real one.
	if !cfg.IsDevelopment() {
		if cfg.Auth.SecretKey == "" {
			return nil, fmt.Errorf("SECRET_KEY is required when ENV=%q", cfg.Env)
		}
		if len(cfg.Auth.SecretKey) < 32 {
			return nil, fmt.Errorf("SECRET_KEY must be at least 32 characters when ENV=%q", cfg.Env)
		}
	}

	// Provide a dev-only default secret so local dev works without .env.
	if cfg.Auth.SecretKey == "" {
		cfg.Auth.SecretKey = devSecretKey
	}

	return cfg, nil
}

// validateTTL rejects lifetimes that are not positive or exceed max.
func validateTTL(key string, d, max time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", key, d)
	}
	if d > max {
		return fmt.Errorf("%s must be at most %s, got %s", key, max, d)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvDuration reads a duration env var (e.g., "24h") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var, dropping empty entries.
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

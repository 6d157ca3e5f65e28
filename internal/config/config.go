package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Logging    LoggingConfig    `json:"logging"`
	Accounting AccountingConfig `json:"accounting"`
	Metrics    MetricsConfig    `json:"metrics"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	ReadTimeout  Duration `json:"read_timeout"`
	WriteTimeout Duration `json:"write_timeout"`
	IdleTimeout  Duration `json:"idle_timeout"`
}

// DatabaseConfig represents database configuration.
// Driver is "postgres" or "sqlite"; Path is only used by sqlite.
type DatabaseConfig struct {
	Driver         string   `json:"driver"`
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	User           string   `json:"user"`
	Password       string   `json:"password"`
	DBName         string   `json:"db_name"`
	SSLMode        string   `json:"ssl_mode"`
	Path           string   `json:"path"`
	MaxConnections int      `json:"max_connections"`
	MaxIdleConns   int      `json:"max_idle_conns"`
	MaxLifetime    Duration `json:"max_lifetime"`
}

// LoggingConfig
type LoggingConfig struct {
	Level string `json:"level"`
}

// AccountingConfig tunes snapshot caching and the factor catalog
type AccountingConfig struct {
	SnapshotCacheTTL Duration `json:"snapshot_cache_ttl"`
	RefreshSchedule  string   `json:"refresh_schedule"`
	RefreshBatchSize int      `json:"refresh_batch_size"`
	// RefreshWorkers bounds concurrent snapshot rebuilds in one refresh pass.
	RefreshWorkers int `json:"refresh_workers"`
	// FactorCatalogPath replaces the embedded catalog when set.
	FactorCatalogPath string `json:"factor_catalog_path"`
}

// MetricsConfig
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Duration reads "90s"-style strings from JSON
type Duration time.Duration

// UnmarshalJSON accepts a Go duration string or a number of nanoseconds
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid duration %s", string(b))
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON writes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  Duration(15 * time.Second),
			WriteTimeout: Duration(15 * time.Second),
			IdleTimeout:  Duration(60 * time.Second),
		},
		Database: DatabaseConfig{
			Driver:         "postgres",
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "carbonscribe_accounting",
			SSLMode:        "disable",
			Path:           "accounting.db",
			MaxConnections: 20,
			MaxIdleConns:   5,
			MaxLifetime:    Duration(30 * time.Minute),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Accounting: AccountingConfig{
			SnapshotCacheTTL: Duration(5 * time.Minute),
			RefreshSchedule:  "0 */5 * * * *",
			RefreshBatchSize: 50,
			RefreshWorkers:   4,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// LoadConfig loads configuration from file and environment variables.
// A .env file in the working directory is loaded first when present.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	config := Default()

	// Load from file if exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func overrideWithEnv(config *Config) error {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid SERVER_PORT %q: %w", port, err)
		}
		config.Server.Port = p
	}

	if driver := os.Getenv("DATABASE_DRIVER"); driver != "" {
		config.Database.Driver = driver
	}
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DATABASE_PORT"); dbPort != "" {
		p, err := strconv.Atoi(dbPort)
		if err != nil {
			return fmt.Errorf("invalid DATABASE_PORT %q: %w", dbPort, err)
		}
		config.Database.Port = p
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if schedule := os.Getenv("SNAPSHOT_REFRESH_SCHEDULE"); schedule != "" {
		config.Accounting.RefreshSchedule = schedule
	}
	if ttl := os.Getenv("SNAPSHOT_CACHE_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return fmt.Errorf("invalid SNAPSHOT_CACHE_TTL %q: %w", ttl, err)
		}
		config.Accounting.SnapshotCacheTTL = Duration(d)
	}
	if catalog := os.Getenv("FACTOR_CATALOG_PATH"); catalog != "" {
		config.Accounting.FactorCatalogPath = catalog
	}
	if enabled := os.Getenv("METRICS_ENABLED"); enabled != "" {
		b, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid METRICS_ENABLED %q: %w", enabled, err)
		}
		config.Metrics.Enabled = b
	}
	return nil
}

// Validate rejects settings the services cannot start with
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Accounting.SnapshotCacheTTL <= 0 {
		return fmt.Errorf("snapshot_cache_ttl must be positive")
	}
	if c.Accounting.RefreshBatchSize <= 0 {
		return fmt.Errorf("refresh_batch_size must be positive")
	}
	if c.Accounting.RefreshWorkers <= 0 {
		c.Accounting.RefreshWorkers = 1
	}
	return nil
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

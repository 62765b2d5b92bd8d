package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/turku-citybike/racks/internal/citybike"
	"github.com/turku-citybike/racks/internal/geo"
)

const configFileEnv = "CONFIG_FILE"

// Location source kinds
const (
	LocationManual = "manual"
	LocationStatic = "static"
	LocationRedis  = "redis"
)

// Config holds all configuration for the racks service
type Config struct {
	// Feed
	CitybikeURL        string `yaml:"citybike_url"`
	HTTPTimeoutSeconds int    `yaml:"http_timeout_seconds"`
	PollIntervalSecs   int    `yaml:"poll_interval_seconds"`

	// HTTP server
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	LogLevel       string   `yaml:"log_level"`

	Archive  ArchiveConfig  `yaml:"archive"`
	Location LocationConfig `yaml:"location"`
}

// ArchiveConfig selects and configures the snapshot archive
type ArchiveConfig struct {
	Driver         string `yaml:"driver"`
	SQLitePath     string `yaml:"sqlite_path"`
	DatabaseURL    string `yaml:"database_url"`
	RetentionHours int    `yaml:"retention_hours"`
}

// LocationConfig selects where user positions come from
type LocationConfig struct {
	Source        string   `yaml:"source"`
	Latitude      *float64 `yaml:"lat"`
	Longitude     *float64 `yaml:"lon"`
	RedisAddr     string   `yaml:"redis_addr"`
	RedisPassword string   `yaml:"redis_password"`
	Channel       string   `yaml:"channel"`
}

// LoadDotEnv loads .env then .env.local, the latter overriding
func LoadDotEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE and environment variables, in increasing precedence.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv(configFileEnv); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		CitybikeURL:        citybike.DefaultEndpoint,
		HTTPTimeoutSeconds: 15,
		PollIntervalSecs:   60,
		Port:               "8081",
		AllowedOrigins:     []string{"http://localhost:5173"},
		LogLevel:           "info",
		Archive: ArchiveConfig{
			Driver:         "sqlite",
			SQLitePath:     "./data/racks.db",
			RetentionHours: 24,
		},
		Location: LocationConfig{
			Source:    LocationManual,
			RedisAddr: "localhost:6379",
			Channel:   "citybike:location",
		},
	}
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.CitybikeURL = getEnv("CITYBIKE_URL", cfg.CitybikeURL)
	cfg.HTTPTimeoutSeconds = getEnvInt("HTTP_TIMEOUT_SECONDS", cfg.HTTPTimeoutSeconds)
	cfg.PollIntervalSecs = getEnvInt("POLL_INTERVAL", cfg.PollIntervalSecs)

	cfg.Port = getEnv("PORT", cfg.Port)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.Archive.Driver = strings.ToLower(getEnv("ARCHIVE_DRIVER", cfg.Archive.Driver))
	cfg.Archive.SQLitePath = getEnv("SQLITE_DATABASE", cfg.Archive.SQLitePath)
	cfg.Archive.DatabaseURL = getEnv("DATABASE_URL", cfg.Archive.DatabaseURL)
	cfg.Archive.RetentionHours = getEnvInt("RETENTION_HOURS", cfg.Archive.RetentionHours)

	cfg.Location.Source = strings.ToLower(getEnv("LOCATION_SOURCE", cfg.Location.Source))
	cfg.Location.RedisAddr = getEnv("REDIS_ADDR", cfg.Location.RedisAddr)
	cfg.Location.RedisPassword = getEnv("REDIS_PASSWORD", cfg.Location.RedisPassword)
	cfg.Location.Channel = getEnv("LOCATION_CHANNEL", cfg.Location.Channel)

	var err error
	if cfg.Location.Latitude, err = getEnvFloat("USER_LAT", cfg.Location.Latitude); err != nil {
		return err
	}
	if cfg.Location.Longitude, err = getEnvFloat("USER_LON", cfg.Location.Longitude); err != nil {
		return err
	}
	return nil
}

// Validate rejects combinations the service cannot start with
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("HTTP_TIMEOUT_SECONDS must be positive, got %d", c.HTTPTimeoutSeconds))
	}
	if c.PollIntervalSecs < 0 {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must not be negative, got %d", c.PollIntervalSecs))
	}

	switch c.Archive.Driver {
	case "sqlite", "none":
	case "postgres":
		if c.Archive.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres archive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ARCHIVE_DRIVER %q", c.Archive.Driver))
	}

	switch c.Location.Source {
	case LocationManual, LocationRedis:
	case LocationStatic:
		if _, err := c.StaticCoordinate(); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LOCATION_SOURCE %q", c.Location.Source))
	}

	return errors.Join(errs...)
}

// HTTPTimeout is the per-request timeout for the feed
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// PollInterval is the automatic refresh period; zero disables it
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

// Retention is how long archived snapshots are kept
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Archive.RetentionHours) * time.Hour
}

// StaticCoordinate returns the fixed user position. A missing position is
// not an error; it means location services are disabled.
func (c *Config) StaticCoordinate() (*geo.Coordinate, error) {
	lat, lon := c.Location.Latitude, c.Location.Longitude
	if lat == nil && lon == nil {
		return nil, nil
	}
	if lat == nil || lon == nil {
		return nil, errors.New("USER_LAT and USER_LON must be set together")
	}
	coord := geo.Coordinate{Latitude: *lat, Longitude: *lon}
	if !coord.Valid() {
		return nil, fmt.Errorf("invalid user coordinate %s", coord)
	}
	return &coord, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue *float64) (*float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", key, err)
	}
	return &f, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

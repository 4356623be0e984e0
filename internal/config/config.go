// Package config provides configuration management for the work plan generator.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig    `envPrefix:"SERVER_"`
	Catalog   CatalogConfig   `envPrefix:"CATALOG_"`
	S3        S3Config        `envPrefix:"S3_"`
	Mask      MaskConfig      `envPrefix:"MASK_"`
	Plan      PlanConfig      `envPrefix:"PLAN_"`
	DB        DBConfig        `envPrefix:"DB_"`
	NATS      NATSConfig      `envPrefix:"NATS_"`
	Telemetry TelemetryConfig `envPrefix:"TELEMETRY_"`
	Logging   LoggingConfig   `envPrefix:"LOG_"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// CatalogConfig contains the catalog endpoints. Empty STAC URLs select the
// profile defaults.
type CatalogConfig struct {
	CreodiasURL    string        `env:"CREODIAS_URL" envDefault:"https://finder.creodias.eu"`
	ASFURL         string        `env:"ASF_URL" envDefault:"https://api.daac.asf.alaska.edu"`
	EarthSearchURL string        `env:"EARTH_SEARCH_URL" envDefault:""`
	USGSURL        string        `env:"USGS_URL" envDefault:""`
	AstraeaURL     string        `env:"ASTRAEA_URL" envDefault:""`
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"60s"`
	PageSize       int           `env:"PAGE_SIZE" envDefault:"500"`
}

// S3Config contains object storage access settings.
type S3Config struct {
	Endpoint      string `env:"ENDPOINT" envDefault:""`
	Region        string `env:"REGION" envDefault:"eu-central-1"`
	AccessKey     string `env:"ACCESS_KEY" envDefault:""`
	SecretKey     string `env:"SECRET_KEY" envDefault:""`
	UsePathStyle  bool   `env:"USE_PATH_STYLE" envDefault:"false"`
	RequesterPays bool   `env:"REQUESTER_PAYS" envDefault:"true"`
	// OutputBucket and OutputPrefix locate generated plans and ARD outputs.
	OutputBucket string `env:"OUTPUT_BUCKET" envDefault:""`
	OutputPrefix string `env:"OUTPUT_PREFIX" envDefault:""`
}

// MaskConfig selects the Landsat cloud mask index.
type MaskConfig struct {
	// Backend is "s3" or "sqlite".
	Backend     string        `env:"BACKEND" envDefault:"s3"`
	Bucket      string        `env:"BUCKET" envDefault:"ewoc-aux-data"`
	KeyTemplate string        `env:"KEY_TEMPLATE" envDefault:"L8/{path}/{row}/{year}/{date}/L8_{path}{row}_{date}_MASK.tif"`
	SQLitePath  string        `env:"SQLITE_PATH" envDefault:""`
	CacheSize   int           `env:"CACHE_SIZE" envDefault:"10000"`
	CacheTTL    time.Duration `env:"CACHE_TTL" envDefault:"1h"`
}

// PlanConfig contains plan building defaults.
type PlanConfig struct {
	TileGrid    string `env:"TILE_GRID" envDefault:""`
	PolicyFile  string `env:"POLICY_FILE" envDefault:""`
	OrbitFile   string `env:"ORBIT_FILE" envDefault:""`
	S1Provider  string `env:"S1_PROVIDER" envDefault:"creodias"`
	L8Provider  string `env:"L8_PROVIDER" envDefault:"usgs_satapi_aws"`
	Concurrency int    `env:"CONCURRENCY" envDefault:"1"`
}

// DBConfig contains the plan database settings. An empty URL disables it.
type DBConfig struct {
	URL string `env:"URL" envDefault:""`
}

// NATSConfig contains plan event settings. An empty URL disables events.
type NATSConfig struct {
	URL     string `env:"URL" envDefault:""`
	Subject string `env:"SUBJECT" envDefault:"ewoc.workplan.created"`
}

// TelemetryConfig contains tracing settings.
type TelemetryConfig struct {
	Enabled     bool   `env:"ENABLED" envDefault:"false"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"ewoc-work-plan"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables, after loading the
// .env and .env.local files of the working directory when they exist.
// Variables already set in the environment take precedence.
func Load() (*Config, error) {
	if err := loadDotEnv(".env", ".env.local"); err != nil {
		return nil, err
	}

	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	if c.Catalog.CreodiasURL == "" || c.Catalog.ASFURL == "" {
		return fmt.Errorf("creodias and ASF catalog URLs are required")
	}

	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("catalog timeout must be positive, got %s", c.Catalog.Timeout)
	}

	if c.Catalog.PageSize < 1 {
		return fmt.Errorf("catalog page size must be at least 1, got %d", c.Catalog.PageSize)
	}

	switch c.Mask.Backend {
	case "s3":
		if c.Mask.Bucket == "" {
			return fmt.Errorf("mask bucket is required for the s3 mask backend")
		}
	case "sqlite":
		if c.Mask.SQLitePath == "" {
			return fmt.Errorf("mask sqlite path is required for the sqlite mask backend")
		}
	default:
		return fmt.Errorf("mask backend must be 's3' or 'sqlite', got %q", c.Mask.Backend)
	}

	if c.Mask.CacheSize < 0 {
		return fmt.Errorf("mask cache size must not be negative, got %d", c.Mask.CacheSize)
	}

	if c.Plan.Concurrency < 1 {
		return fmt.Errorf("plan concurrency must be at least 1, got %d", c.Plan.Concurrency)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Test defaults
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected default host 0.0.0.0, got %s", cfg.Server.Host)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}

	if cfg.Catalog.CreodiasURL != "https://finder.creodias.eu" {
		t.Errorf("expected default creodias URL, got %s", cfg.Catalog.CreodiasURL)
	}

	if cfg.S3.Region != "eu-central-1" || !cfg.S3.RequesterPays {
		t.Errorf("expected eu-central-1 with requester pays, got %s %v", cfg.S3.Region, cfg.S3.RequesterPays)
	}

	if cfg.Mask.Backend != "s3" {
		t.Errorf("expected default mask backend s3, got %s", cfg.Mask.Backend)
	}

	if cfg.Plan.Concurrency != 1 {
		t.Errorf("expected default concurrency 1, got %d", cfg.Plan.Concurrency)
	}

	if cfg.NATS.Subject != "ewoc.workplan.created" {
		t.Errorf("expected default subject, got %s", cfg.NATS.Subject)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadWithCustomValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_READ_TIMEOUT", "60s")
	t.Setenv("CATALOG_TIMEOUT", "45s")
	t.Setenv("CATALOG_ASF_URL", "https://asf.example.com")
	t.Setenv("MASK_BACKEND", "sqlite")
	t.Setenv("MASK_SQLITE_PATH", "/data/masks.db")
	t.Setenv("PLAN_CONCURRENCY", "4")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}

	if cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("expected read timeout 60s, got %s", cfg.Server.ReadTimeout)
	}

	if cfg.Catalog.Timeout != 45*time.Second {
		t.Errorf("expected catalog timeout 45s, got %s", cfg.Catalog.Timeout)
	}

	if cfg.Catalog.ASFURL != "https://asf.example.com" {
		t.Errorf("expected ASF URL https://asf.example.com, got %s", cfg.Catalog.ASFURL)
	}

	if cfg.Mask.Backend != "sqlite" || cfg.Mask.SQLitePath != "/data/masks.db" {
		t.Errorf("expected sqlite mask backend, got %s %s", cfg.Mask.Backend, cfg.Mask.SQLitePath)
	}

	if cfg.Plan.Concurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", cfg.Plan.Concurrency)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("expected log format text, got %s", cfg.Logging.Format)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PLAN_S1_PROVIDER=asf\nSERVER_PORT=7070\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SERVER_PORT", "9191")
	t.Cleanup(func() { os.Unsetenv("PLAN_S1_PROVIDER") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Plan.S1Provider != "asf" {
		t.Errorf("expected S1 provider from .env, got %s", cfg.Plan.S1Provider)
	}

	if cfg.Server.Port != 9191 {
		t.Errorf("expected environment to win over .env, got %d", cfg.Server.Port)
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Catalog: CatalogConfig{
			CreodiasURL: "https://finder.creodias.eu",
			ASFURL:      "https://api.daac.asf.alaska.edu",
			Timeout:     30 * time.Second,
			PageSize:    500,
		},
		Mask: MaskConfig{
			Backend: "s3",
			Bucket:  "ewoc-aux-data",
		},
		Plan: PlanConfig{
			Concurrency: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
	}{
		{
			name:      "valid config",
			mutate:    func(*Config) {},
			wantError: false,
		},
		{
			name: "valid sqlite mask backend",
			mutate: func(c *Config) {
				c.Mask.Backend = "sqlite"
				c.Mask.SQLitePath = "masks.db"
			},
			wantError: false,
		},
		{
			name:      "invalid port",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantError: true,
		},
		{
			name:      "missing creodias URL",
			mutate:    func(c *Config) { c.Catalog.CreodiasURL = "" },
			wantError: true,
		},
		{
			name:      "zero page size",
			mutate:    func(c *Config) { c.Catalog.PageSize = 0 },
			wantError: true,
		},
		{
			name:      "invalid mask backend",
			mutate:    func(c *Config) { c.Mask.Backend = "ftp" },
			wantError: true,
		},
		{
			name:      "sqlite backend without path",
			mutate:    func(c *Config) { c.Mask.Backend = "sqlite" },
			wantError: true,
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Plan.Concurrency = 0 },
			wantError: true,
		},
		{
			name:      "invalid log level",
			mutate:    func(c *Config) { c.Logging.Level = "invalid" },
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestServerConfigAddress(t *testing.T) {
	cfg := ServerConfig{
		Host: "localhost",
		Port: 3000,
	}

	addr := cfg.Address()
	expected := "localhost:3000"
	if addr != expected {
		t.Errorf("Address() = %s, expected %s", addr, expected)
	}
}

package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the top-level application configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Signs    SignsConfig    `toml:"signs"`
	Geometry GeometryConfig `toml:"geometry"`
	Analysis AnalysisConfig `toml:"analysis"`
	Jobs     JobsConfig     `toml:"jobs"`
	Logging  LoggingConfig  `toml:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host                string   `toml:"host"`
	Port                int      `toml:"port"`
	ReadTimeoutSeconds  int      `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `toml:"write_timeout_seconds"`
	CORSAllowedOrigins  []string `toml:"cors_allowed_origins"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// SignsConfig holds signalization import settings
type SignsConfig struct {
	ImportBatchSize int `toml:"import_batch_size"`
}

// GeometryConfig holds street-geometry provider settings
type GeometryConfig struct {
	OverpassURL           string  `toml:"overpass_url"`
	RequestTimeoutSeconds int     `toml:"request_timeout_seconds"`
	MaxRetries            int     `toml:"max_retries"`
	RequestsPerSecond     float64 `toml:"requests_per_second"`
	SearchRadiusMeters    float64 `toml:"search_radius_meters"`
	MaxSnapMeters         float64 `toml:"max_snap_meters"`
	IntervalLengthMeters  float64 `toml:"interval_length_meters"`
	CacheSize             int     `toml:"cache_size"`
}

// AnalysisConfig holds area-analysis settings
type AnalysisConfig struct {
	DefaultRadiusKm  float64 `toml:"default_radius_km"`
	MaxRadiusKm      float64 `toml:"max_radius_km"`
	QueryRadiusKm    float64 `toml:"query_radius_km"`
	Concurrency      int     `toml:"concurrency"`
	DefaultCenterLat float64 `toml:"default_center_lat"`
	DefaultCenterLon float64 `toml:"default_center_lon"`
}

// JobsConfig holds scheduler settings
type JobsConfig struct {
	Workers             int `toml:"workers"`
	QueueSize           int `toml:"queue_size"`
	ProgressStepPercent int `toml:"progress_step_percent"`
	JobTimeoutMinutes   int `toml:"job_timeout_minutes"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 30,
			CORSAllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			Path: "parkscan.db",
		},
		Signs: SignsConfig{
			ImportBatchSize: 5000,
		},
		Geometry: GeometryConfig{
			OverpassURL:           "https://overpass-api.de/api/interpreter",
			RequestTimeoutSeconds: 30,
			MaxRetries:            3,
			RequestsPerSecond:     10,
			SearchRadiusMeters:    100,
			MaxSnapMeters:         50,
			IntervalLengthMeters:  50,
			CacheSize:             1024,
		},
		Analysis: AnalysisConfig{
			DefaultRadiusKm:  0.5,
			MaxRadiusKm:      2.0,
			QueryRadiusKm:    0.1,
			Concurrency:      4,
			DefaultCenterLat: 45.4767,
			DefaultCenterLon: -73.6387,
		},
		Jobs: JobsConfig{
			Workers:             2,
			QueueSize:           64,
			ProgressStepPercent: 5,
			JobTimeoutMinutes:   15,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig reads a TOML file over the defaults. An empty path returns the
// defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not accessible: %w", err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.Analysis.MaxRadiusKm <= 0 {
		return fmt.Errorf("max radius must be positive, got %f", c.Analysis.MaxRadiusKm)
	}
	if c.Analysis.DefaultRadiusKm <= 0 || c.Analysis.DefaultRadiusKm > c.Analysis.MaxRadiusKm {
		return fmt.Errorf("default radius %f outside (0, %f]", c.Analysis.DefaultRadiusKm, c.Analysis.MaxRadiusKm)
	}
	if c.Analysis.Concurrency < 1 {
		return fmt.Errorf("analysis concurrency must be at least 1")
	}
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("job workers must be at least 1")
	}
	if c.Jobs.QueueSize < 1 {
		return fmt.Errorf("job queue size must be at least 1")
	}
	if c.Jobs.ProgressStepPercent < 1 || c.Jobs.ProgressStepPercent > 100 {
		return fmt.Errorf("progress step must be in [1, 100], got %d", c.Jobs.ProgressStepPercent)
	}
	if c.Geometry.MaxSnapMeters <= 0 {
		return fmt.Errorf("max snap distance must be positive")
	}
	if c.Geometry.IntervalLengthMeters <= 0 {
		return fmt.Errorf("interval length must be positive")
	}
	return nil
}

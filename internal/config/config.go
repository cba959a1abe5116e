// Package config provides YAML-based configuration for the converter and its
// server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sonde-czml/backend/internal/filter"
	"github.com/sonde-czml/backend/internal/models"
	"github.com/sonde-czml/backend/internal/parser"
	"gopkg.in/yaml.v3"
)

// AppConfig is the root configuration document.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Processing ProcessingConfig `yaml:"processing"`
	Selection  SelectionConfig  `yaml:"selection"`
	Output     OutputConfig     `yaml:"output"`
	Advanced   AdvancedConfig   `yaml:"advanced"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port                  int    `yaml:"port" validate:"min=1,max=65535"`
	BindAddress           string `yaml:"bind_address" validate:"required"`
	EnableCORS            bool   `yaml:"enable_cors"`
	AllowOrigins          string `yaml:"allow_origins"`
	ReadTimeout           int    `yaml:"read_timeout_seconds" validate:"gte=0"`
	WriteTimeout          int    `yaml:"write_timeout_seconds" validate:"gte=0"`
	IdleTimeout           int    `yaml:"idle_timeout_seconds" validate:"gte=0"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds" validate:"gte=0"`
	BodyLimit             string `yaml:"body_limit"`
}

// StorageConfig contains file storage settings.
type StorageConfig struct {
	DataDirectory    string `yaml:"data_directory" validate:"required"`
	UploadsDirectory string `yaml:"uploads_directory" validate:"required"`
	TempDirectory    string `yaml:"temp_directory" validate:"required"`
}

// ProcessingConfig contains conversion session settings.
type ProcessingConfig struct {
	MaxSessions             int `yaml:"max_sessions" validate:"min=1"`
	SessionTimeoutMinutes   int `yaml:"session_timeout_minutes" validate:"min=1"`
	CleanupIntervalMinutes  int `yaml:"cleanup_interval_minutes" validate:"min=1"`
	SessionKeepAliveSeconds int `yaml:"session_keepalive_seconds" validate:"gte=0"`
	DefaultPageSize         int `yaml:"default_page_size" validate:"min=1"`
	MaxPageSize             int `yaml:"max_page_size" validate:"gtefield=DefaultPageSize"`
}

// SelectionConfig is the default filter applied when a request or the
// command line does not override it.
type SelectionConfig struct {
	BBox              [4]float64 `yaml:"bbox"`
	HeightRange       [2]float64 `yaml:"height_range"`
	After             string     `yaml:"after,omitempty"`
	Before            string     `yaml:"before,omitempty"`
	GPXFile           string     `yaml:"gpx_file,omitempty"`
	ClampSpanToWindow bool       `yaml:"clamp_span_to_window"`
}

// OutputConfig contains CZML document settings.
type OutputConfig struct {
	DocumentName        string  `yaml:"document_name" validate:"required"`
	DocumentDescription string  `yaml:"document_description"`
	ClockMultiplier     float64 `yaml:"clock_multiplier" validate:"gt=0"`
	ModelURL            string  `yaml:"model_url" validate:"omitempty,url"`
	StylesFile          string  `yaml:"styles_file,omitempty"`
}

// AdvancedConfig contains logging options.
type AdvancedConfig struct {
	LogLevel             string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat            string `yaml:"log_format" validate:"oneof=text json"`
	Debug                bool   `yaml:"debug"`
	EnableRequestLogging bool   `yaml:"enable_request_logging"`
	Environment          string `yaml:"environment" validate:"oneof=development production"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *AppConfig {
	vol := models.DefaultBoundingVolume()
	return &AppConfig{
		Server: ServerConfig{
			Port:                  8089,
			BindAddress:           "0.0.0.0",
			EnableCORS:            true,
			AllowOrigins:          "*",
			ReadTimeout:           30,
			WriteTimeout:          60,
			IdleTimeout:           120,
			RequestTimeoutSeconds: 60,
			BodyLimit:             "256M",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			TempDirectory:    "./data/temp",
		},
		Processing: ProcessingConfig{
			MaxSessions:             20,
			SessionTimeoutMinutes:   30,
			CleanupIntervalMinutes:  5,
			SessionKeepAliveSeconds: 300,
			DefaultPageSize:         500,
			MaxPageSize:             10000,
		},
		Selection: SelectionConfig{
			BBox:        [4]float64{vol.MinLon, vol.MaxLon, vol.MinLat, vol.MaxLat},
			HeightRange: [2]float64{vol.MinElevation, vol.MaxElevation},
		},
		Output: OutputConfig{
			DocumentName:        "document",
			DocumentDescription: "document description from prolog",
			ClockMultiplier:     7200,
			ModelURL:            models.DefaultModelURL,
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			LogFormat:            "text",
			EnableRequestLogging: true,
			Environment:          "production",
		},
	}
}

// LoadConfig loads configuration from a YAML file. A missing file is created
// with the defaults. Environment overrides are applied after the file and
// relative paths are resolved against the file's directory.
func LoadConfig(configPath string) (*AppConfig, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		cfg.applyEnvironmentOverrides()
		cfg.resolvePaths(filepath.Dir(configPath))
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(configPath))
	return cfg, nil
}

// Validate checks every section against its constraints.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# sonde-czml configuration\n# This file is auto-generated on first run\n\n")
	if err := os.WriteFile(configPath, append(header, output...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
		c.Storage.TempDirectory = filepath.Join(dataDir, "temp")
	}
	if tempDir := os.Getenv("SONDE_TEMP_DIR"); tempDir != "" {
		c.Storage.TempDirectory = tempDir
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.Advanced.LogFormat = format
	}
	if debug := os.Getenv("SONDE_DEBUG"); debug != "" {
		if d, err := strconv.ParseBool(debug); err == nil {
			c.Advanced.Debug = d
		}
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		c.Advanced.Environment = env
	}
}

func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.TempDirectory,
		&c.Selection.GPXFile,
		&c.Output.StylesFile,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetServerAddr returns the server bind address.
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// SessionTimeout returns the idle age after which sessions are dropped.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Processing.SessionTimeoutMinutes) * time.Minute
}

// CleanupInterval returns the period of the session cleanup ticker.
func (c *AppConfig) CleanupInterval() time.Duration {
	return time.Duration(c.Processing.CleanupIntervalMinutes) * time.Minute
}

// IsDevelopment reports whether error responses may carry internal details.
func (c *AppConfig) IsDevelopment() bool {
	return c.Advanced.Environment == "development"
}

// EnsureDirectories creates all necessary directories.
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.TempDirectory,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Build resolves the configured selection. A GPX file, when set, replaces
// the bounding box and height range.
func (s SelectionConfig) Build() (models.Selection, error) {
	sel := models.DefaultSelection()
	sel.Volume = models.NewBoundingVolume(s.BBox, s.HeightRange)
	if s.GPXFile != "" {
		vol, err := filter.VolumeFromGPXFile(s.GPXFile)
		if err != nil {
			return sel, fmt.Errorf("gpx bounding volume: %w", err)
		}
		sel.Volume = vol
	}

	window, err := filter.NewTimeWindow(s.After, s.Before)
	if err != nil {
		return sel, err
	}
	sel.Window = window
	sel.ClampSpanToWindow = s.ClampSpanToWindow
	return sel, nil
}

// LoadStyles reads the styles file, if any, and applies ModelURL to the
// default style when the file does not name a model itself.
func (o OutputConfig) LoadStyles() (*models.StyleRules, error) {
	rules := &models.StyleRules{}
	if o.StylesFile != "" {
		r, err := parser.ParseStyleRules(o.StylesFile)
		if err != nil {
			return nil, fmt.Errorf("styles file: %w", err)
		}
		rules = r
	}
	if rules.Default.ModelURL == "" {
		rules.Default.ModelURL = o.ModelURL
	}
	return rules, nil
}

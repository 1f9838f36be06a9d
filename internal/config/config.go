// Package config handles AutoMed configuration loading.
//
// Sources are layered: built-in defaults, an optional TOML file, an optional
// .env file and finally process environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/teslashibe/go-automed/internal/log"
	"github.com/teslashibe/go-automed/pkg/camera"
	"github.com/teslashibe/go-automed/pkg/classifier"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "automed.toml"

// Backend names accepted by Model.Backend.
const (
	BackendONNX = "onnx"
	BackendDNN  = "dnn"
	BackendAuto = "auto"
)

// Config is the full application configuration.
type Config struct {
	Server ServerConfig  `toml:"server"`
	Model  ModelConfig   `toml:"model"`
	Camera camera.Config `toml:"camera"`
	Loop   LoopConfig    `toml:"loop"`
	Log    LogConfig     `toml:"log"`
}

// ServerConfig configures the web front end.
type ServerConfig struct {
	Port int `toml:"port"`
}

// ModelConfig locates the classifier.
type ModelConfig struct {
	// BaseURL is the directory holding model.json and metadata.json.
	BaseURL string `toml:"base_url"`

	// Backend is "onnx", "dnn" or "auto" (onnx first, then dnn).
	Backend string `toml:"backend"`

	// ONNXLibrary overrides the onnxruntime shared library path.
	ONNXLibrary string `toml:"onnx_library"`

	FetchTimeout time.Duration `toml:"fetch_timeout"`
}

// LoopConfig tunes the inference loop.
type LoopConfig struct {
	// RefreshRate is the cycle frequency in Hz.
	RefreshRate int `toml:"refresh_rate"`
}

// LogConfig mirrors log.Options for the file format.
type LogConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Options converts to logger options.
func (l LogConfig) Options() log.Options {
	return log.Options{
		Level:      l.Level,
		File:       l.File,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Model: ModelConfig{
			BaseURL:      classifier.DefaultModelURL,
			Backend:      BackendAuto,
			FetchTimeout: 30 * time.Second,
		},
		Camera: camera.DefaultConfig(),
		Loop:   LoopConfig{RefreshRate: 60},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Load loads the configuration from the given path.
// If the file doesn't exist, returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads .env files into the environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("config: load env: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto the config.
func (c *Config) ApplyEnv() error {
	var errs []string

	if v := os.Getenv("AUTOMED_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		} else {
			errs = append(errs, "AUTOMED_PORT: "+err.Error())
		}
	} else if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.Port = n
		}
	}

	if v := os.Getenv("AUTOMED_MODEL_URL"); v != "" {
		c.Model.BaseURL = v
	}
	if v := os.Getenv("AUTOMED_BACKEND"); v != "" {
		c.Model.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("ONNXRUNTIME_LIB"); v != "" {
		c.Model.ONNXLibrary = v
	}
	if v := os.Getenv("AUTOMED_CAMERA_DEVICE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Camera.Device = n
		} else {
			errs = append(errs, "AUTOMED_CAMERA_DEVICE: "+err.Error())
		}
	}
	if v := os.Getenv("AUTOMED_CAMERA_PRESET"); v != "" {
		p := camera.GetPreset(v)
		if p == nil {
			errs = append(errs, fmt.Sprintf("AUTOMED_CAMERA_PRESET: unknown preset %q (have %s)",
				v, strings.Join(camera.PresetNames(), ", ")))
		} else {
			dev := c.Camera.Device
			c.Camera = *p
			c.Camera.Device = dev
		}
	}
	if v := os.Getenv("AUTOMED_REFRESH_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Loop.RefreshRate = n
		} else {
			errs = append(errs, "AUTOMED_REFRESH_RATE: "+err.Error())
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("AUTOMED_LOG_FILE"); v != "" {
		c.Log.File = v
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() []string {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range (1-65535)", c.Server.Port))
	}
	if c.Model.BaseURL == "" {
		errs = append(errs, "model.base_url is required")
	}
	switch c.Model.Backend {
	case BackendONNX, BackendDNN, BackendAuto:
	default:
		errs = append(errs, fmt.Sprintf("model.backend %q must be onnx, dnn or auto", c.Model.Backend))
	}
	if c.Model.FetchTimeout <= 0 {
		errs = append(errs, "model.fetch_timeout must be positive")
	}
	if c.Loop.RefreshRate < 1 || c.Loop.RefreshRate > 240 {
		errs = append(errs, fmt.Sprintf("loop.refresh_rate %d out of range (1-240)", c.Loop.RefreshRate))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}

	for _, e := range c.Camera.Validate() {
		errs = append(errs, "camera: "+e)
	}
	return errs
}

// RefreshInterval is the time between loop cycles.
func (c *Config) RefreshInterval() time.Duration {
	if c.Loop.RefreshRate <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(c.Loop.RefreshRate)
}

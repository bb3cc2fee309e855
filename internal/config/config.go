package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/caarlos0/env"
	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation, environment
// variable overrides for secrets, and 0600 permissions.

// GeminiConfig holds settings for the Gemini recommendation backend.
type GeminiConfig struct {
	// APIKey authenticates against the Gemini REST API. Usually supplied
	// via GEMINI_API_KEY rather than the config file.
	APIKey string `yaml:"api_key,omitempty" json:"-" env:"GEMINI_API_KEY"`
	// Model is the Gemini model name used for generation.
	Model string `yaml:"model" json:"model" env:"GEMINI_MODEL"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// PreviewConfig controls the headless-Chromium grid snapshot.
type PreviewConfig struct {
	// Enabled toggles preview capture entirely. Chromium must be installed
	// on the host for captures to succeed.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Cron is a cron-style schedule string (e.g. "*/15 * * * *") used for
	// periodic preview refresh.
	Cron string `yaml:"cron" json:"cron"`
	// Path is where the PNG snapshot is written.
	Path string `yaml:"path" json:"path"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as the default zone for busy
	// interval normalization and recommendations (e.g. "America/New_York").
	Timezone string `yaml:"timezone" json:"timezone"`

	// DebounceMs is the quiet period, in milliseconds, the sync coordinator
	// waits after the last calendar edit before pushing busy state.
	DebounceMs int `yaml:"debounce_ms" json:"debounce_ms"`

	// BackendBaseURL is the base URL the per-session sync coordinator talks
	// to. Empty means "this process" (derived from Listen).
	BackendBaseURL string `yaml:"backend_base_url" json:"backend_base_url"`

	// MeetingDurationMinutes is the length of recommended meeting slots.
	MeetingDurationMinutes int `yaml:"meeting_duration_minutes" json:"meeting_duration_minutes" env:"MEETING_DURATION_MINUTES"`

	// WindowDays is the number of future days candidate slots are drawn from.
	WindowDays int `yaml:"window_days" json:"window_days" env:"RECOMMENDATION_WINDOW_DAYS"`

	// Gemini configures the recommendation model backend.
	Gemini GeminiConfig `yaml:"gemini" json:"gemini"`

	// Preview configures the cron-driven week-grid PNG snapshot.
	Preview PreviewConfig `yaml:"preview" json:"preview"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:                 "127.0.0.1:8080",
		Timezone:               "UTC",
		DebounceMs:             400,
		BackendBaseURL:         "",
		MeetingDurationMinutes: 60,
		WindowDays:             7,
		Gemini: GeminiConfig{
			Model: "gemini-2.5-pro",
		},
		Preview: PreviewConfig{
			Enabled: false,
			Cron:    "*/15 * * * *",
			Path:    "/var/lib/schedcal/preview.png",
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.DebounceMs <= 0 {
		c.DebounceMs = 400
	}
	if c.MeetingDurationMinutes <= 0 {
		c.MeetingDurationMinutes = 60
	}
	if c.WindowDays <= 0 {
		c.WindowDays = 7
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.5-pro"
	}
	if c.Preview.Cron == "" {
		c.Preview.Cron = "*/15 * * * *"
	}
	if c.Preview.Path == "" {
		c.Preview.Path = "/var/lib/schedcal/preview.png"
	}
}

// applyEnv overlays environment variables onto the loaded config. Env values
// win over file values so that secrets never need to live on disk.
func (c *Config) applyEnv() error {
	if err := env.Parse(c); err != nil {
		return err
	}
	return env.Parse(&c.Gemini)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config (env overrides still applied)
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - apply env overrides, then normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			if err := cfg.applyEnv(); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".schedcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Set permissions to 0600 on temp file before rename.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	// Rename over the target path.
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

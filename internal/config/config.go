// Package config loads the allow-listed configuration (spec §6) from
// defaults, environment variables, an optional YAML file, and persisted
// Catalog overrides, in that priority order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the live, typed value of every allow-listed key.
type Config struct {
	RawPath            string  `yaml:"raw_path"`
	CompletedPath      string  `yaml:"completed_path"`
	WorkPath           string  `yaml:"work_path"`
	DBPath             string  `yaml:"db_path"`
	PresetPath         string  `yaml:"preset_path"`
	VideoEncoder       string  `yaml:"video_encoder"`
	VideoQuality       int     `yaml:"video_quality"`
	AudioEncoder       string  `yaml:"audio_encoder"`
	SubtitleMode       string  `yaml:"subtitle_mode"`
	HandbrakePreset    string  `yaml:"handbrake_preset"`
	HandbrakePreset4K  string  `yaml:"handbrake_preset_4k"`
	HandbrakePresetDVD string  `yaml:"handbrake_preset_dvd"`
	DeleteSource       bool    `yaml:"delete_source"`
	OutputExtension    string  `yaml:"output_extension"`
	MoviesSubdir       string  `yaml:"movies_subdir"`
	TVSubdir           string  `yaml:"tv_subdir"`
	AudioSubdir        string  `yaml:"audio_subdir"`
	MaxConcurrent      int     `yaml:"max_concurrent"`
	StabilizeSeconds   int     `yaml:"stabilize_seconds"`
	MinimumFreeSpaceGB float64 `yaml:"minimum_free_space_gb"`
	MaxRetryCount      int     `yaml:"max_retry_count"`
	LogLevel           string  `yaml:"log_level"`
	RequireAPIAuth     bool    `yaml:"require_api_auth"`
	APIKeys            string  `yaml:"api_keys"`
	WebhookSecret      string  `yaml:"webhook_secret"`

	// overridden tracks which keys were set by a persisted Catalog
	// override; GPU-aware auto-resolution (internal/backend) only touches
	// keys absent from this set (spec §3.2, §4.4).
	overridden map[string]bool
}

// DefaultConfig returns the built-in baseline values (spec §6 defaults).
func DefaultConfig() *Config {
	c := &Config{overridden: map[string]bool{}}
	for _, f := range Schema {
		c.setField(f.Key, f.Default)
	}
	return c
}

// envKey maps a schema key to its ARMTC_-prefixed environment variable
// name, e.g. video_quality -> ARMTC_VIDEO_QUALITY.
func envKey(key string) string {
	return "ARMTC_" + strings.ToUpper(key)
}

// LoadEnv applies ARMTC_-prefixed environment variable overrides on top
// of the current values, matching the teacher's env-override layering in
// cmd/shrinkray/main.go (MEDIA_PATH/CONFIG_PATH).
func (c *Config) LoadEnv() {
	for _, f := range Schema {
		if v, ok := os.LookupEnv(envKey(f.Key)); ok && v != "" {
			c.setField(f.Key, v)
		}
	}
}

// LoadFile merges an optional YAML file on top of the current values. A
// missing file is not an error (the teacher's Load auto-creates one; here
// the file is purely optional since env vars and Catalog overrides cover
// the same ground).
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// ApplyOverrides layers persisted Catalog overrides on top of the current
// values and records which keys were touched, for the Backend Selector's
// gating rule.
func (c *Config) ApplyOverrides(overrides []Override) error {
	if c.overridden == nil {
		c.overridden = map[string]bool{}
	}
	for _, o := range overrides {
		if _, ok := lookupSchema(o.Key); !ok {
			continue // stale/unknown key in the overrides table; ignore rather than fail startup
		}
		c.setField(o.Key, o.Value)
		c.overridden[o.Key] = true
	}
	return nil
}

// Override is the minimal shape ApplyOverrides needs from a persisted
// Catalog row, kept independent of the catalog package to avoid an import
// cycle (internal/catalog never needs to import internal/config).
type Override struct {
	Key   string
	Value string
}

// IsOverridden reports whether key carries a persisted Catalog override —
// hardware auto-resolution (internal/backend) skips such keys.
func (c *Config) IsOverridden(key string) bool {
	return c.overridden[key]
}

// SetDefault applies a GPU-aware default value to key without marking it
// as overridden (spec §4.4) — a subsequent persisted override, or a later
// call to this same method from a different family's table, can still
// change it.
func (c *Config) SetDefault(key, value string) {
	c.setField(key, value)
}

// Get returns the current text-form value of an allow-listed key.
func (c *Config) Get(key string) (string, bool) {
	switch key {
	case "raw_path":
		return c.RawPath, true
	case "completed_path":
		return c.CompletedPath, true
	case "work_path":
		return c.WorkPath, true
	case "db_path":
		return c.DBPath, true
	case "preset_path":
		return c.PresetPath, true
	case "video_encoder":
		return c.VideoEncoder, true
	case "video_quality":
		return strconv.Itoa(c.VideoQuality), true
	case "audio_encoder":
		return c.AudioEncoder, true
	case "subtitle_mode":
		return c.SubtitleMode, true
	case "handbrake_preset":
		return c.HandbrakePreset, true
	case "handbrake_preset_4k":
		return c.HandbrakePreset4K, true
	case "handbrake_preset_dvd":
		return c.HandbrakePresetDVD, true
	case "delete_source":
		return strconv.FormatBool(c.DeleteSource), true
	case "output_extension":
		return c.OutputExtension, true
	case "movies_subdir":
		return c.MoviesSubdir, true
	case "tv_subdir":
		return c.TVSubdir, true
	case "audio_subdir":
		return c.AudioSubdir, true
	case "max_concurrent":
		return strconv.Itoa(c.MaxConcurrent), true
	case "stabilize_seconds":
		return strconv.Itoa(c.StabilizeSeconds), true
	case "minimum_free_space_gb":
		return strconv.FormatFloat(c.MinimumFreeSpaceGB, 'f', -1, 64), true
	case "max_retry_count":
		return strconv.Itoa(c.MaxRetryCount), true
	case "log_level":
		return c.LogLevel, true
	case "require_api_auth":
		return strconv.FormatBool(c.RequireAPIAuth), true
	case "api_keys":
		return c.APIKeys, true
	case "webhook_secret":
		return c.WebhookSecret, true
	default:
		return "", false
	}
}

// Set validates value against key's schema and, if valid, applies it to
// the live struct field. It does not mark the key as overridden or
// persist anything — callers (the PATCH /config handler) do that via the
// Catalog directly after Set succeeds.
func (c *Config) Set(key, value string) error {
	normalized, err := Validate(key, value)
	if err != nil {
		return err
	}
	c.setField(key, normalized)
	return nil
}

// setField applies a raw text value to the corresponding struct field
// without validation; used for defaults/env/file/override layering where
// the value is already trusted (defaults) or will be validated by the
// caller (PATCH).
func (c *Config) setField(key, value string) {
	switch key {
	case "raw_path":
		c.RawPath = value
	case "completed_path":
		c.CompletedPath = value
	case "work_path":
		c.WorkPath = value
	case "db_path":
		c.DBPath = value
	case "preset_path":
		c.PresetPath = value
	case "video_encoder":
		c.VideoEncoder = value
	case "video_quality":
		c.VideoQuality, _ = strconv.Atoi(value)
	case "audio_encoder":
		c.AudioEncoder = value
	case "subtitle_mode":
		c.SubtitleMode = value
	case "handbrake_preset":
		c.HandbrakePreset = value
	case "handbrake_preset_4k":
		c.HandbrakePreset4K = value
	case "handbrake_preset_dvd":
		c.HandbrakePresetDVD = value
	case "delete_source":
		c.DeleteSource, _ = strconv.ParseBool(value)
	case "output_extension":
		c.OutputExtension = value
	case "movies_subdir":
		c.MoviesSubdir = value
	case "tv_subdir":
		c.TVSubdir = value
	case "audio_subdir":
		c.AudioSubdir = value
	case "max_concurrent":
		c.MaxConcurrent, _ = strconv.Atoi(value)
	case "stabilize_seconds":
		c.StabilizeSeconds, _ = strconv.Atoi(value)
	case "minimum_free_space_gb":
		c.MinimumFreeSpaceGB, _ = strconv.ParseFloat(value, 64)
	case "max_retry_count":
		c.MaxRetryCount, _ = strconv.Atoi(value)
	case "log_level":
		c.LogLevel = value
	case "require_api_auth":
		c.RequireAPIAuth, _ = strconv.ParseBool(value)
	case "api_keys":
		c.APIKeys = value
	case "webhook_secret":
		c.WebhookSecret = value
	}
}

// AsMap returns every allow-listed key and its current text-form value,
// used by GET /config and GET /health's config subset.
func (c *Config) AsMap() map[string]string {
	out := make(map[string]string, len(Schema))
	for _, f := range Schema {
		v, _ := c.Get(f.Key)
		out[f.Key] = v
	}
	return out
}

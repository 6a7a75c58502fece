package config

import (
	"fmt"
	"strconv"
)

// FieldType is the coercion type a config_overrides value is parsed as
// (spec §3.2: "stored as text and coerced on load based on the configured
// schema type (bool, int, float, text)").
type FieldType string

const (
	TypeBool  FieldType = "bool"
	TypeInt   FieldType = "int"
	TypeFloat FieldType = "float"
	TypeText  FieldType = "text"
)

// FieldSchema describes one allow-listed configuration key (spec §6).
type FieldSchema struct {
	Key       string    `json:"key"`
	Type      FieldType `json:"type"`
	Enum      []string  `json:"enum,omitempty"` // non-nil means the text value must be one of these
	Min       float64   `json:"min,omitempty"`  // only consulted when HasBounds
	Max       float64   `json:"max,omitempty"`
	HasBounds bool      `json:"has_bounds,omitempty"`
	Default   string    `json:"default"`
}

// Schema is the fixed allow-list of tunable keys. PATCH /config rejects
// any key not present here with 400 (spec §6, §8).
var Schema = []FieldSchema{
	{Key: "raw_path", Type: TypeText, Default: "/media/raw"},
	{Key: "completed_path", Type: TypeText, Default: "/media/completed"},
	{Key: "work_path", Type: TypeText, Default: "/media/work"},
	{Key: "db_path", Type: TypeText, Default: "/config/armtc.db"},
	{Key: "preset_path", Type: TypeText, Default: "/config/presets"},
	{Key: "video_encoder", Type: TypeText, Default: "nvenc_hevc"},
	{Key: "video_quality", Type: TypeInt, HasBounds: true, Min: 0, Max: 51, Default: "20"},
	{Key: "audio_encoder", Type: TypeText, Enum: []string{"copy", "aac", "ac3", "eac3", "flac", "mp3"}, Default: "copy"},
	{Key: "subtitle_mode", Type: TypeText, Enum: []string{"all", "none", "first"}, Default: "all"},
	{Key: "handbrake_preset", Type: TypeText, Default: "Fast 1080p30"},
	{Key: "handbrake_preset_4k", Type: TypeText, Default: "Fast 2160p60"},
	{Key: "handbrake_preset_dvd", Type: TypeText, Default: ""},
	{Key: "delete_source", Type: TypeBool, Default: "true"},
	{Key: "output_extension", Type: TypeText, Default: "mkv"},
	{Key: "movies_subdir", Type: TypeText, Default: "movies"},
	{Key: "tv_subdir", Type: TypeText, Default: "tv"},
	{Key: "audio_subdir", Type: TypeText, Default: "audio"},
	{Key: "max_concurrent", Type: TypeInt, HasBounds: true, Min: 1, Max: 10, Default: "1"},
	{Key: "stabilize_seconds", Type: TypeInt, HasBounds: true, Min: 10, Max: 600, Default: "60"},
	{Key: "minimum_free_space_gb", Type: TypeFloat, Default: "10"},
	{Key: "max_retry_count", Type: TypeInt, HasBounds: true, Min: 0, Max: 10, Default: "3"},
	{Key: "log_level", Type: TypeText, Enum: []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}, Default: "INFO"},
	{Key: "require_api_auth", Type: TypeBool, Default: "false"},
	{Key: "api_keys", Type: TypeText, Default: ""},
	{Key: "webhook_secret", Type: TypeText, Default: ""},
}

func lookupSchema(key string) (FieldSchema, bool) {
	for _, f := range Schema {
		if f.Key == key {
			return f, true
		}
	}
	return FieldSchema{}, false
}

// Validate coerces and bounds-checks a raw text value against its schema
// entry. Returns the normalized text form (for enums, as-given; numeric
// values pass through unchanged as text).
func Validate(key, value string) (string, error) {
	f, ok := lookupSchema(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	switch f.Type {
	case TypeBool:
		if _, err := strconv.ParseBool(value); err != nil {
			return "", fmt.Errorf("%w: %s must be a bool", ErrSchemaViolation, key)
		}
	case TypeInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return "", fmt.Errorf("%w: %s must be an int", ErrSchemaViolation, key)
		}
		if f.HasBounds && (float64(n) < f.Min || float64(n) > f.Max) {
			return "", fmt.Errorf("%w: %s out of range [%v, %v]", ErrSchemaViolation, key, f.Min, f.Max)
		}
	case TypeFloat:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return "", fmt.Errorf("%w: %s must be a float", ErrSchemaViolation, key)
		}
		if f.HasBounds && (n < f.Min || n > f.Max) {
			return "", fmt.Errorf("%w: %s out of range [%v, %v]", ErrSchemaViolation, key, f.Min, f.Max)
		}
	case TypeText:
		if len(f.Enum) > 0 {
			valid := false
			for _, e := range f.Enum {
				if e == value {
					valid = true
					break
				}
			}
			if !valid {
				return "", fmt.Errorf("%w: %s must be one of %v", ErrSchemaViolation, key, f.Enum)
			}
		}
	}
	return value, nil
}

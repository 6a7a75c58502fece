package config

import "errors"

// Sentinel errors for PATCH /config handling (spec §6, §7).
var (
	ErrUnknownKey      = errors.New("unknown config key")
	ErrSchemaViolation = errors.New("config value violates schema")
)

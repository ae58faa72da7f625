// Package config provides file- and environment-based configuration for
// the TokenWarden decision service.
//
// Configuration is loaded from tokenwarden.yaml in the current directory,
// $HOME/.tokenwarden/, or /etc/tokenwarden/, with TOKENWARDEN_-prefixed
// environment variables overriding file values.
package config

import (
	"fmt"
	"time"

	"github.com/tokenwarden/tokenwarden/internal/domain/authz"
)

// Config is the top-level configuration.
type Config struct {
	// Server configures the HTTP decision API listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Limits bounds every authorization run.
	Limits LimitsConfig `yaml:"limits" mapstructure:"limits"`

	// Audit configures where decision records are written.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Auth configures API keys guarding the decision API.
	// Optional: when empty, the API runs unauthenticated (dev only).
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// DevMode enables development features (verbose logging, stdout
	// trace export).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8443" or "127.0.0.1:8080".
	Addr string `yaml:"addr" mapstructure:"addr" validate:"required"`
}

// LimitsConfig configures the executor's resource bounds.
type LimitsConfig struct {
	// MaxFacts caps the number of derived facts per authorization.
	MaxFacts uint64 `yaml:"max_facts" mapstructure:"max_facts" validate:"gt=0"`
	// MaxIterations caps fixpoint rounds per authorization.
	MaxIterations uint64 `yaml:"max_iterations" mapstructure:"max_iterations" validate:"gt=0"`
	// MaxTime is the wall-clock deadline per authorization (e.g. "5ms").
	MaxTime string `yaml:"max_time" mapstructure:"max_time" validate:"required,duration"`
	// AllowBlockPrograms permits attenuation blocks to carry facts and
	// rules. Disable to accept checks-only attenuations.
	AllowBlockPrograms bool `yaml:"allow_block_programs" mapstructure:"allow_block_programs"`
}

// ToLimits converts the configuration into executor limits.
func (c LimitsConfig) ToLimits() (authz.Limits, error) {
	maxTime, err := time.ParseDuration(c.MaxTime)
	if err != nil {
		return authz.Limits{}, fmt.Errorf("limits.max_time: %w", err)
	}
	return authz.Limits{
		MaxFacts:           c.MaxFacts,
		MaxIterations:      c.MaxIterations,
		MaxTime:            maxTime,
		AllowBlockPrograms: c.AllowBlockPrograms,
	}, nil
}

// AuditConfig configures the decision log sink.
type AuditConfig struct {
	// Output selects the sink: "stdout", "file://<absolute-dir>", or
	// "sqlite://<path>".
	Output string `yaml:"output" mapstructure:"output" validate:"required,audit_output"`
	// RetentionDays applies to the file sink (default 7).
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days"`
}

// AuthConfig configures decision API authentication.
type AuthConfig struct {
	// Keys lists accepted API keys as hashes (SHA-256 hex or Argon2id
	// PHC format, as produced by `tokenwarden hash-key`).
	Keys []KeyConfig `yaml:"keys" mapstructure:"keys" validate:"omitempty,dive"`
}

// KeyConfig is one configured API key.
type KeyConfig struct {
	// Name identifies the key in logs.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
	// Hash is the stored key hash.
	Hash string `yaml:"hash" mapstructure:"hash" validate:"required"`
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/conceptforge/services/resolve"
	"github.com/AleutianAI/conceptforge/services/vocab"
)

// ServiceConfig holds the HTTP service configuration.
type ServiceConfig struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port" validate:"gte=0,lte=65535"`

	// GinMode sets the Gin framework mode: debug, release, or test.
	GinMode string `yaml:"gin_mode" validate:"omitempty,oneof=debug release test"`

	// AthenaBaseURL overrides the ATHENA API endpoint.
	AthenaBaseURL string `yaml:"athena_base_url" validate:"omitempty,url"`

	// AthenaRateLimit is the request rate against ATHENA, per second.
	AthenaRateLimit float64 `yaml:"athena_rate_limit" validate:"gte=0"`

	// CacheSize bounds each concept cache map.
	CacheSize int `yaml:"cache_size" validate:"gte=0"`

	// CacheTTL is the concept cache entry lifetime.
	CacheTTL time.Duration `yaml:"cache_ttl" validate:"gte=0"`

	// OracleModel overrides the evaluation model name.
	OracleModel string `yaml:"oracle_model"`

	// MaxParallelSets bounds concurrent set resolutions per build.
	MaxParallelSets int `yaml:"max_parallel_sets" validate:"gte=0"`

	// Resolve holds the exploration bounds.
	Resolve resolve.Config `yaml:"resolve"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// LogDir is where file logs go; empty disables file logging.
	LogDir string `yaml:"log_dir"`
}

// DefaultServiceConfig returns the service defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Port:            12230,
		GinMode:         "release",
		AthenaRateLimit: 4,
		CacheSize:       vocab.DefaultCacheSize,
		CacheTTL:        30 * time.Minute,
		MaxParallelSets: DefaultMaxParallel,
		Resolve:         resolve.DefaultConfig(),
		LogLevel:        "info",
	}
}

var validate = validator.New()

// LoadServiceConfig reads a YAML config file over the defaults. An
// empty path returns the defaults unchanged.
func LoadServiceConfig(path string) (ServiceConfig, error) {
	cfg := DefaultServiceConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints and the nested resolve bounds.
func (c ServiceConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid service config: %w", err)
	}
	if err := c.Resolve.Validate(); err != nil {
		return fmt.Errorf("invalid resolve config: %w", err)
	}
	return nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the punchcard yaml configuration. The file is
// created with defaults on first run. Loaded configs are explicit values
// handed to constructors; there is no package-global config state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/punchcard/services/loyalty/telemetry"
)

// Config is the full application configuration.
type Config struct {
	Customer  CustomerConfig   `yaml:"customer"`
	Storage   StorageConfig    `yaml:"storage"`
	Sync      SyncConfig       `yaml:"sync"`
	Proxy     ProxyConfig      `yaml:"proxy"`
	Log       LogConfig        `yaml:"log"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// CustomerConfig carries identity overrides. Empty values mean "mint and
// persist locally".
type CustomerConfig struct {
	// ID is an identity-provider-supplied customer id, accepted verbatim.
	ID string `yaml:"id" validate:"omitempty,max=64"`
}

// StorageConfig locates the local record store.
type StorageConfig struct {
	// Path is the BadgerDB directory. Empty selects in-memory storage,
	// which only makes sense in tests.
	Path string `yaml:"path"`
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	// ProxyURL is the base URL of the hosted key/value proxy.
	ProxyURL string `yaml:"proxy_url" validate:"omitempty,url"`

	// AutoSyncInterval is the period between background cycles.
	AutoSyncInterval time.Duration `yaml:"auto_sync_interval" validate:"min=0"`

	// MaxRetries bounds push attempts per outbox operation.
	MaxRetries int `yaml:"max_retries" validate:"min=1,max=10"`

	// ProbeAddr is the TCP address dialed to detect connectivity.
	ProbeAddr string `yaml:"probe_addr" validate:"omitempty,hostname_port"`
}

// ProxyConfig configures the dev sync proxy server.
type ProxyConfig struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" validate:"omitempty,hostname_port"`

	// RedisAddr is the backing Redis instance.
	RedisAddr string `yaml:"redis_addr" validate:"omitempty,hostname_port"`

	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" validate:"min=0"`
}

// LogConfig tunes the structured logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Dir, when set, adds a rotating file handler alongside stderr.
	Dir string `yaml:"dir"`

	// JSON switches the stderr handler to JSON output.
	JSON bool `yaml:"json"`
}

// DefaultConfig returns the first-run configuration.
func DefaultConfig() Config {
	dataDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".punchcard", "data")
	}
	return Config{
		Storage: StorageConfig{Path: dataDir},
		Sync: SyncConfig{
			ProxyURL:         "http://localhost:8099",
			AutoSyncInterval: 30 * time.Second,
			MaxRetries:       3,
			ProbeAddr:        "1.1.1.1:443",
		},
		Proxy: ProxyConfig{
			Listen:    "localhost:8099",
			RedisAddr: "localhost:6379",
		},
		Log:       LogConfig{Level: "info"},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// DefaultPath returns the conventional config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".punchcard", "punchcard.yaml"), nil
}

// Load reads and validates the config at path, creating it with defaults
// on first run. An empty path uses DefaultPath().
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse the config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

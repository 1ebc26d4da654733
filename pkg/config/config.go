// Copyright (C) 2025 Driftline Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the Driftline configuration file.
//
// The config lives at ~/.driftline/driftline.yaml and is created with
// defaults on first run. Values are validated after parsing; a config
// that fails validation is rejected rather than silently corrected.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Config holds all Driftline settings.
type Config struct {
	// DataDir is the directory holding the four dataset CSV files
	// (customers.csv, orders.csv, products.csv, revenue.csv).
	DataDir string `yaml:"data_dir" validate:"required"`

	// CredentialsPath is the flat YAML credential store.
	CredentialsPath string `yaml:"credentials_path" validate:"required"`

	// Model is the chat-completion model name.
	Model string `yaml:"model" validate:"required"`

	// DisplayCap is the maximum number of records rendered per table
	// report before truncation.
	DisplayCap int `yaml:"display_cap" validate:"gte=1,lte=100"`

	Log LogConfig `yaml:"log"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Dir enables file logging when set.
	Dir string `yaml:"dir"`
}

// Default returns the configuration written on first run.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".driftline")
	return Config{
		DataDir:         filepath.Join(base, "data"),
		CredentialsPath: filepath.Join(base, "credentials.yaml"),
		Model:           "gpt-4o-mini",
		DisplayCap:      10,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the standard config file location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".driftline", "driftline.yaml"), nil
}

// Load reads the config at path, creating it with defaults first if it
// does not exist.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return Config{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse the config file: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config at %s: %w", path, err)
	}
	return cfg, nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

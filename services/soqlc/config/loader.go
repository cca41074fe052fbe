// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// Global is the singleton configuration instance.
	Global SoqlcConfig
	once   sync.Once
)

// Load ensures the config is loaded into the Global variable exactly once.
// Missing files are created with defaults on first run.
func Load() error {
	var err error
	once.Do(func() {
		err = loadInternal()
	})
	return err
}

func loadInternal() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not find the user's home directory: %w", err)
	}
	configPath := filepath.Join(home, ".soqlforge", "soqlc.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeDefault(configPath); err != nil {
			return err
		}
	}
	cfg, err := LoadFile(configPath)
	if err != nil {
		return err
	}
	Global = cfg
	return nil
}

// LoadFile reads and parses a configuration file, filling unset fields
// with defaults.
func LoadFile(path string) (SoqlcConfig, error) {
	var cfg SoqlcConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse the config file: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(Defaults())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}

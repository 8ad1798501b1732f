// Copyright © 2026 MosaicTerm contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: config/config.go
// Summary: User configuration record for mosaicterm.

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"

	"github.com/mosaicterm/mosaicterm/block"
	"github.com/mosaicterm/mosaicterm/exec"
	"github.com/mosaicterm/mosaicterm/parser"
)

const configFileName = "mosaicterm.json"

// Config is the loadable configuration record. Zero fields are replaced by
// defaults on load.
type Config struct {
	DirectExecAllowlist []string `json:"direct_exec_allowlist"`
	InteractiveDenylist []string `json:"interactive_denylist"`
	PromptPatterns      []string `json:"prompt_patterns"`
	OscPayloadCap       int      `json:"osc_payload_cap"`
	DeltaQueueCapacity  int      `json:"delta_queue_capacity"`
	DirectTimeoutMs     int      `json:"direct_timeout_ms"`
	DefaultShell        string   `json:"default_shell"`
}

// Default returns the built-in configuration.
func Default() Config {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/bash"
	}
	return Config{
		DirectExecAllowlist: exec.DefaultAllowlist(),
		InteractiveDenylist: exec.DefaultDenylist(),
		PromptPatterns:      block.DefaultPromptPatterns(),
		OscPayloadCap:       parser.DefaultPayloadCap,
		DeltaQueueCapacity:  1024,
		DirectTimeoutMs:     30000,
		DefaultShell:        shell,
	}
}

// Validate checks the parts that can be wrong: prompt regexes and caps.
func (c *Config) Validate() error {
	for _, p := range c.PromptPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("config: prompt pattern %q: %w", p, err)
		}
	}
	if c.OscPayloadCap <= 0 {
		return errors.New("config: osc_payload_cap must be positive")
	}
	if c.DeltaQueueCapacity <= 0 {
		return errors.New("config: delta_queue_capacity must be positive")
	}
	if c.DirectTimeoutMs <= 0 {
		return errors.New("config: direct_timeout_ms must be positive")
	}
	return nil
}

// applyDefaults fills unset fields from the default record.
func (c *Config) applyDefaults() {
	def := Default()
	if c.DirectExecAllowlist == nil {
		c.DirectExecAllowlist = def.DirectExecAllowlist
	}
	if c.InteractiveDenylist == nil {
		c.InteractiveDenylist = def.InteractiveDenylist
	}
	if c.PromptPatterns == nil {
		c.PromptPatterns = def.PromptPatterns
	}
	if c.OscPayloadCap == 0 {
		c.OscPayloadCap = def.OscPayloadCap
	}
	if c.DeltaQueueCapacity == 0 {
		c.DeltaQueueCapacity = def.DeltaQueueCapacity
	}
	if c.DirectTimeoutMs == 0 {
		c.DirectTimeoutMs = def.DirectTimeoutMs
	}
	if c.DefaultShell == "" {
		c.DefaultShell = def.DefaultShell
	}
}

// Path resolves the user config file location.
func Path() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve config dir: %w", err)
	}
	return filepath.Join(base, "mosaicterm", configFileName), nil
}

// Load reads the user config file, writing the defaults on first run.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		log.Printf("Config: Failed to resolve config path: %v", err)
		return Default(), err
	}
	return LoadFrom(path)
}

// LoadFrom reads a config file; a missing file materialises the defaults.
func LoadFrom(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		if werr := cfg.Save(path); werr != nil {
			log.Printf("Config: Failed to write default config: %v", werr)
		}
		return cfg, nil
	}
	if err != nil {
		return Default(), fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Default(), err
	}
	return cfg, nil
}

// Save writes the config as indented JSON, creating parent directories.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

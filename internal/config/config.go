// Copyright 2025 SirSeer, LLC
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://mariadb.com/bsl11
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config provides configuration management for datacat with
// support for multiple configuration sources and a well-defined precedence
// order.
//
// Configuration sources (in precedence order, highest to lowest):
//  1. Command-line flags
//  2. Environment variables
//  3. Configuration file
//  4. Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from multiple sources and applies them in
// the correct precedence order. If configPath is provided, it loads from
// that specific file. Otherwise, it searches standard locations:
//   - .datacat.yaml (current directory)
//   - .datacat.yml (current directory)
//   - ~/.datacat/config.yaml
//   - ~/.datacat/config.yml
//
// Returns an error if the specified config file cannot be loaded, but will
// succeed with defaults if no config file is found in standard locations.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := loadConfigFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		defaultPaths := []string{
			".datacat.yaml",
			".datacat.yml",
			filepath.Join(os.Getenv("HOME"), ".datacat", "config.yaml"),
			filepath.Join(os.Getenv("HOME"), ".datacat", "config.yml"),
		}

		for _, path := range defaultPaths {
			if _, err := os.Stat(path); err == nil {
				if err := loadConfigFile(path, cfg); err != nil {
					return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
				}
				break
			}
		}
	}

	applyEnvOverrides(cfg)

	cfg.Defaults.StateDir = expandPath(cfg.Defaults.StateDir)
	cfg.GitHub.Tokens = dedupeTokens(cfg.GitHub.Tokens)

	return cfg, nil
}

// loadConfigFile reads and parses a YAML config file
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	if cfg.GitHub.TokenEnv != "" {
		cfg.GitHub.Tokens = append(cfg.GitHub.Tokens, splitTokens(os.Getenv(cfg.GitHub.TokenEnv))...)
	}
	if token := strings.TrimSpace(os.Getenv("GITHUB_TOKEN")); token != "" {
		cfg.GitHub.Tokens = append(cfg.GitHub.Tokens, token)
	}

	if endpoint := os.Getenv("DATACAT_GRAPHQL_ENDPOINT"); endpoint != "" {
		cfg.GitHub.GraphQLEndpoint = endpoint
	}

	if v := os.Getenv("DATACAT_MAX_CONCURRENCY"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			cfg.Dispatch.MaxConcurrency = n
		}
	}
	if v := os.Getenv("DATACAT_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			cfg.Dispatch.MaxRetries = n
		}
	}

	if level := os.Getenv("DATACAT_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if addr := os.Getenv("DATACAT_REDIS_ADDR"); addr != "" {
		cfg.QuotaStore.RedisAddr = addr
	}
	if stateDir := os.Getenv("DATACAT_STATE_DIR"); stateDir != "" {
		cfg.Defaults.StateDir = stateDir
	}
}

// splitTokens splits a comma separated token list, dropping blanks.
func splitTokens(s string) []string {
	var tokens []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

func dedupeTokens(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// AddTokens appends command-line tokens, keeping the list free of duplicates.
func (c *Config) AddTokens(tokens ...string) {
	c.GitHub.Tokens = dedupeTokens(append(c.GitHub.Tokens, tokens...))
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home := os.Getenv("HOME")
		if home == "" {
			home = os.Getenv("USERPROFILE") // Windows
		}
		path = filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// parsePositiveInt parses a string to a positive integer
func parsePositiveInt(s string) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("failed to parse integer from '%s': %w", s, err)
	}
	if i <= 0 {
		return 0, fmt.Errorf("value must be positive, got: %d", i)
	}
	return i, nil
}

// IsTolerated reports whether an HTTP status code is on the tolerated list.
func (c *Config) IsTolerated(status int) bool {
	for _, code := range c.Dispatch.ToleratedStatusCodes {
		if code == status {
			return true
		}
	}
	return false
}

// Validate checks if the configuration contains valid values. It should be
// called after flags have been applied so that --token counts.
func (c *Config) Validate() error {
	if len(c.GitHub.Tokens) == 0 {
		return fmt.Errorf("at least one GitHub token is required (set %s, GITHUB_TOKEN or --token)", c.GitHub.TokenEnv)
	}
	if c.GitHub.GraphQLEndpoint == "" {
		return fmt.Errorf("GitHub GraphQL endpoint cannot be empty")
	}
	if c.Dispatch.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive, got: %d", c.Dispatch.MaxConcurrency)
	}
	if c.Dispatch.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative, got: %d", c.Dispatch.MaxRetries)
	}
	if c.Dispatch.RequestCostPrediction <= 0 {
		return fmt.Errorf("request cost prediction must be positive, got: %d", c.Dispatch.RequestCostPrediction)
	}
	if c.Dispatch.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got: %s", c.Dispatch.PollInterval)
	}
	if c.Dispatch.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative, got: %g", c.Dispatch.RequestsPerSecond)
	}
	for _, code := range c.Dispatch.ToleratedStatusCodes {
		if code < 100 || code > 599 {
			return fmt.Errorf("tolerated status code %d is not an HTTP status", code)
		}
	}
	return nil
}

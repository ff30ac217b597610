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

// Package config types define the configuration structures used throughout
// datacat. These types represent settings that can be loaded from YAML
// configuration files, environment variables, or command-line flags.
package config

import "time"

// Config represents the complete configuration for datacat.
type Config struct {
	GitHub     GitHubConfig     `yaml:"github"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	QuotaStore QuotaStoreConfig `yaml:"quota_store"`
	Defaults   DefaultsConfig   `yaml:"defaults"`
}

// GitHubConfig contains the GraphQL endpoint and the credential pool.
// Tokens listed in the file are merged with the ones found in TokenEnv
// (comma separated) and the ones passed with --token.
type GitHubConfig struct {
	GraphQLEndpoint string        `yaml:"graphql_endpoint"`
	Tokens          []string      `yaml:"tokens"`
	TokenEnv        string        `yaml:"token_env"`
	UserAgent       string        `yaml:"user_agent"`
	Timeout         time.Duration `yaml:"timeout"`
}

// DispatchConfig controls concurrency, quota reserve and retry behavior.
type DispatchConfig struct {
	MaxConcurrency        int           `yaml:"max_concurrency"`
	ToleratedStatusCodes  []int         `yaml:"tolerated_status_codes"`
	MaxRetries            int           `yaml:"max_retries"`
	RequestCostPrediction int           `yaml:"request_cost_prediction"`
	PollInterval          time.Duration `yaml:"poll_interval"`
	RequestsPerSecond     float64       `yaml:"requests_per_second"`
	RetryBackoff          time.Duration `yaml:"retry_backoff"`
	MaxRetryBackoff       time.Duration `yaml:"max_retry_backoff"`
	RefreshMargin         time.Duration `yaml:"refresh_margin"`
	RefreshFallback       time.Duration `yaml:"refresh_fallback"`
}

// LoggingConfig selects the log level and whether to emit human-readable output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// MetricsConfig enables the Prometheus endpoint when ListenAddr is set.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// QuotaStoreConfig points at a Redis instance used to share quota snapshots
// between datacat processes that use the same tokens. Empty RedisAddr disables it.
type QuotaStoreConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`
}

// DefaultsConfig contains settings that apply to every fetch.
type DefaultsConfig struct {
	StateDir string `yaml:"state_dir"`
}

// DefaultConfig returns a Config with defaults suitable for public GitHub.com.
func DefaultConfig() *Config {
	return &Config{
		GitHub: GitHubConfig{
			GraphQLEndpoint: "https://api.github.com/graphql",
			TokenEnv:        "GITHUB_TOKENS",
			UserAgent:       "datacat",
			Timeout:         60 * time.Second,
		},
		Dispatch: DispatchConfig{
			MaxConcurrency:        10,
			ToleratedStatusCodes:  []int{400, 401, 403, 404},
			MaxRetries:            10,
			RequestCostPrediction: 15,
			PollInterval:          10 * time.Second,
			RetryBackoff:          time.Second,
			MaxRetryBackoff:       30 * time.Second,
			RefreshMargin:         time.Second,
			RefreshFallback:       10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		QuotaStore: QuotaStoreConfig{
			KeyPrefix: "datacat:quota",
		},
		Defaults: DefaultsConfig{
			StateDir: "~/.datacat/state",
		},
	}
}

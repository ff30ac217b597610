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

// Package logging configures the process-wide zerolog logger and hands out
// component loggers. Every datacat component logs through a zerolog.Logger
// passed to its constructor; NewLogger derives those from the global logger.
//
// Level guidelines:
//
//	debug  per-attempt flow (slot acquired, credential chosen, page fetched)
//	info   probes, refresh scheduling, run start and finish
//	warn   retries, quota exhaustion, no eligible credential
//	error  protocol violations, exhausted retries, inconsistent quota bookkeeping
//
// Common fields: component, credential (fingerprint, never the secret),
// attempt, outcome, resource, owner, name.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string

	// Pretty switches from JSON lines to zerolog's console writer.
	Pretty bool

	// Output defaults to os.Stderr so stdout stays free for records.
	Output io.Writer
}

// ParseLevel converts a level name into a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) (zerolog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	return logger, nil
}

// NewLogger creates a logger for one component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

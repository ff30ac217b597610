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

package github

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig holds the retry budget and the backoff used between
// attempts that failed for reasons other than an exhausted quota.
type RetryConfig struct {
	// MaxRetries is the number of attempts allowed after the first one
	MaxRetries int
	// InitialBackoff is the initial backoff duration
	InitialBackoff time.Duration
	// MaxBackoff is the maximum backoff duration
	MaxBackoff time.Duration
	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the retry configuration used when none is given.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        10,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
	return c
}

// backoff calculates the wait before retry number attempt (0 based).
func (c RetryConfig) backoff(attempt int) time.Duration {
	// Calculate exponential backoff
	backoff := float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attempt))

	// Apply max backoff limit
	if backoff > float64(c.MaxBackoff) {
		backoff = float64(c.MaxBackoff)
	}

	// Add jitter (±10%) to prevent thundering herd
	jitter := backoff * 0.1 * (2*rand.Float64() - 1)
	backoff += jitter

	return time.Duration(backoff)
}

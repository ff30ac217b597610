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

// Package errors defines sentinel errors for consistent error handling across the application.
// These errors map to specific exit codes in the CLI for proper scripting support.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for consistent error handling and exit code mapping
var (
	// ErrNoCredentials indicates no GitHub token was configured.
	// Maps to exit code 2.
	ErrNoCredentials = errors.New("no github tokens configured")

	// ErrInvalidToken indicates GitHub authentication failed for every configured token.
	// Maps to exit code 2.
	ErrInvalidToken = errors.New("invalid github token")

	// ErrRepoNotFound indicates the specified repository does not exist or is not accessible.
	// Maps to exit code 2.
	ErrRepoNotFound = errors.New("repository not found")

	// ErrUserNotFound indicates the specified account does not exist.
	// Maps to exit code 2.
	ErrUserNotFound = errors.New("user not found")

	// ErrNetworkFailure indicates a network connection problem.
	// Maps to exit code 3.
	ErrNetworkFailure = errors.New("network connection failed")

	// ErrRateLimitExhausted indicates every retry of an operation hit an exhausted token quota.
	// Maps to exit code 2.
	ErrRateLimitExhausted = errors.New("github rate limit exhausted")

	// ErrRetriesExhausted indicates an operation kept failing past its retry budget.
	// Maps to exit code 3.
	ErrRetriesExhausted = errors.New("retry attempts exhausted")

	// ErrProtocolViolation indicates GitHub answered without the rateLimit telemetry
	// every query selects. The process keeps running; the caller decides what to do.
	// Maps to exit code 4.
	ErrProtocolViolation = errors.New("response is missing rate limit telemetry")

	// ErrNotInitialized indicates a query was attempted before the credential
	// pool probed its tokens. This is a programming error.
	// Maps to exit code 1.
	ErrNotInitialized = errors.New("credential pool is not initialized")

	// ErrCancelled indicates the caller aborted the operation.
	// Maps to exit code 130.
	ErrCancelled = errors.New("operation cancelled")
)

// FetchError reports which resource fetch failed and how. Kind is the
// executor outcome name (for example "retries_exhausted").
type FetchError struct {
	Resource string
	Owner    string
	Name     string
	Kind     string
	Err      error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	target := e.Owner
	if e.Name != "" {
		target = e.Owner + "/" + e.Name
	}
	return fmt.Sprintf("fetch %s for %s failed (%s): %v", e.Resource, target, e.Kind, e.Err)
}

// Unwrap exposes the underlying sentinel for errors.Is.
func (e *FetchError) Unwrap() error {
	return e.Err
}

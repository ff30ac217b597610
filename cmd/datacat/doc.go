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

// Package main implements the datacat command-line interface.
// datacat collects GitHub repository and account data through the GraphQL
// API, spreading the load over a pool of tokens, and writes it as NDJSON.
//
// The CLI supports:
//   - Fetching a repository record together with any of its stars, forks,
//     issues, pull requests and contributors
//   - Fetching a single collection, an organization's repositories, or a
//     user's profile, followers and following
//   - Incremental fetches that resume from per-resource watermarks
//   - Inspecting the remaining quota of every configured token
//
// Usage:
//
//	datacat fetch repo <owner>/<name> [--all] [--incremental]
//	datacat fetch stars <owner>/<name> --since 2025-01-01T00:00:00Z
//	datacat ratelimit
//
// Example:
//
//	export GITHUB_TOKENS=token1,token2
//	datacat fetch repo kubernetes/kubernetes --all --output k8s.ndjson
//
// Exit codes:
//   - 0: Success
//   - 1: General error
//   - 2: Authentication, not-found or rate limit error
//   - 3: Network error or retries exhausted
//   - 4: Protocol violation (response without rate limit telemetry)
//   - 130: Interrupted
package main

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

// Package github fetches GitHub data over the GraphQL API while spreading
// the load over a pool of tokens.
//
// The package is layered:
//   - GraphQLClient sends one operation with a given token and reports the
//     HTTP status, the typed GraphQL errors and any partial data.
//   - Executor runs an operation through the tokenpool dispatcher, retries
//     it, classifies the result as an Outcome and feeds the rateLimit
//     telemetry every query selects back into the pool.
//   - Walk and Collect follow cursor connections with an optional
//     watermark that ends a newest-first walk early.
//   - Fetcher implements Client: one method per resource plus
//     FullRepository, which fetches the collections of a repository in
//     parallel.
//
// Basic usage:
//
//	gql := github.NewGraphQLClient(endpoint, github.ClientOptions{})
//	pool, _ := tokenpool.New(tokens, tokenpool.Options{Prober: gql})
//	ex := github.NewExecutor(gql, pool, tokenpool.NewDispatcher(pool, tokenpool.DispatcherOptions{}), github.ExecutorOptions{})
//	f := github.NewFetcher(ex, logger)
//	if err := f.Init(ctx); err != nil {
//	    // Handle error
//	}
//	stars, err := f.Stars(ctx, "golang", "go", since)
package github

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

// Package tokenpool schedules GitHub GraphQL operations across a pool of
// access tokens.
//
// A Pool owns one Credential per token and tracks the quota GitHub last
// reported for it. A credential is eligible for new work only while its
// remaining quota exceeds the reserve threshold (predicted request cost times
// the maximum number of concurrent operations), so every operation already in
// flight could be charged to it without running it dry. When a credential
// drops to the reserve the pool schedules a single probe shortly after the
// quota window resets.
//
// A Dispatcher bounds the number of operations in flight. Acquire blocks until
// a slot and an eligible credential are both available, waking on Release, on
// quota updates from the pool, and on a fixed poll interval. Every Slot must be
// released exactly once; Release is idempotent so it is safe to defer.
//
// Lock order is Dispatcher then Pool. Pool update hooks run after the pool
// lock has been released.
package tokenpool

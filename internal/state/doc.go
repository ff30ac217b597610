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

// Package state persists incremental-sync watermarks.
//
// Each fetch target (a repository or an account) has one JSON state file in
// the state directory holding a watermark per resource kind. Writes are
// atomic, using a write-to-temp-and-rename pattern, and carry a SHA256
// checksum and a schema version so a corrupted or outdated file is rejected
// instead of silently skewing the next incremental fetch.
//
// Example usage:
//
//	st, err := state.Load(stateDir, "kubernetes/kubernetes")
//	since := st.Watermark("stars")
//	// ... fetch stars newer than since ...
//	st.SetWatermark("stars", runStart)
//	err = state.SaveState(st, state.StateFilePath(stateDir, "kubernetes/kubernetes"))
package state

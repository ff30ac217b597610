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

package state

import (
	"time"
)

// CurrentVersion is the current state schema version.
// Increment this when making breaking changes to the SyncState structure.
const CurrentVersion = 2

// SyncState is the persisted incremental-sync position of one fetch target:
// a repository ("owner/name") or an account login. It holds one watermark
// per resource kind; a fetch started with --incremental only asks for items
// newer than the watermark of its resource.
type SyncState struct {
	// Version indicates the schema version of this state file.
	// Used to handle migrations and compatibility checks.
	Version int `json:"version"`

	// Checksum is the SHA256 hash of the state content (excluding this field).
	// Used to detect corruption or tampering.
	Checksum string `json:"checksum"`

	// Target is the repository in "owner/name" format, or a login.
	Target string `json:"target"`

	// Watermarks maps a resource kind ("stars", "issues", ...) to the start
	// time of the last successful fetch of that resource.
	Watermarks map[string]time.Time `json:"watermarks"`

	// LastRunID is the run that last updated this state.
	LastRunID string `json:"last_run_id,omitempty"`

	// UpdatedAt records when the state was last saved.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSyncState returns an empty state for target.
func NewSyncState(target string) *SyncState {
	return &SyncState{
		Version:    CurrentVersion,
		Target:     target,
		Watermarks: make(map[string]time.Time),
	}
}

// Watermark returns the watermark of resource, zero when there is none.
func (s *SyncState) Watermark(resource string) time.Time {
	return s.Watermarks[resource]
}

// SetWatermark records that resource is complete up to t.
func (s *SyncState) SetWatermark(resource string, t time.Time) {
	if s.Watermarks == nil {
		s.Watermarks = make(map[string]time.Time)
	}
	s.Watermarks[resource] = t.UTC()
}

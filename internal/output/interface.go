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

package output

// RecordWriter defines the interface for emitting fetched records.
// This abstraction lets the CLI swap the NDJSON writer for a test double.
type RecordWriter interface {
	// Emit writes one record of the given kind for owner/name.
	// The record should be immediately flushed to avoid memory accumulation.
	Emit(kind, owner, name string, data any) error

	// Close closes the underlying writer and releases any resources.
	// This should be called when all writing is complete.
	Close() error
}

// Record kinds emitted by datacat.
const (
	KindRepository  = "repository"
	KindStar        = "star"
	KindFork        = "fork"
	KindIssue       = "issue"
	KindPullRequest = "pull_request"
	KindContributor = "contributor"
	KindUser        = "user"
	KindFollower    = "follower"
	KindFollowing   = "following"
	KindRateLimit   = "rate_limit"
)

// Record is one NDJSON line.
type Record struct {
	Kind  string `json:"kind"`
	Owner string `json:"owner"`
	Name  string `json:"name,omitempty"`
	Data  any    `json:"data"`
}

// EmitAll writes every item as a record of kind and returns how many were written.
func EmitAll[T any](w RecordWriter, kind, owner, name string, items []T) (int, error) {
	for i, item := range items {
		if err := w.Emit(kind, owner, name, item); err != nil {
			return i, err
		}
	}
	return len(items), nil
}

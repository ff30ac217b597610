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

// Package metadata provides functionality for tracking and persisting metadata
// about datacat runs. It records how many records of each resource kind were
// emitted, the executor's attempt and retry counters, and links incremental
// runs to the run they continue from.
//
// Metadata is saved as JSON files alongside state files, allowing external
// tools to analyze fetch history and quota usage.
package metadata

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracker collects statistics during a run and generates metadata.
// Create a new tracker at the start of each run; it is safe for concurrent use.
type Tracker struct {
	runID     string
	command   string
	target    string
	startTime time.Time

	mu    sync.Mutex
	items map[string]int
}

// New creates a tracker for command against target and starts its clock.
func New(command, target string) *Tracker {
	return &Tracker{
		runID:     uuid.NewString(),
		command:   command,
		target:    target,
		startTime: time.Now().UTC(),
		items:     make(map[string]int),
	}
}

// RunID returns the unique identifier of this run.
func (t *Tracker) RunID() string {
	return t.runID
}

// StartedAt returns when the tracker was created.
func (t *Tracker) StartedAt() time.Time {
	return t.startTime
}

// AddItems records n emitted records of a resource kind.
func (t *Tracker) AddItems(resource string, n int) {
	t.mu.Lock()
	t.items[resource] += n
	t.mu.Unlock()
}

// Items returns a copy of the per-resource counts.
func (t *Tracker) Items() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.items))
	for k, v := range t.items {
		out[k] = v
	}
	return out
}

// GenerateMetadata creates the RunMetadata record for the run. Call this
// once the run has finished.
func (t *Tracker) GenerateMetadata(version string, params RunParams, executor ExecutorStats, previous *RunRef) *RunMetadata {
	completedAt := time.Now().UTC()

	if executor.Outcomes == nil {
		executor.Outcomes = map[string]int64{}
	}

	return &RunMetadata{
		Version:     version,
		RunID:       t.runID,
		Command:     t.command,
		Target:      t.target,
		Parameters:  params,
		Items:       t.Items(),
		Executor:    executor,
		StartedAt:   t.startTime,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(t.startTime).String(),
		PreviousRun: previous,
	}
}

// SaveMetadata persists a RunMetadata record to a JSON file in the specified
// directory. The file is written atomically using a temporary file and rename
// to prevent corruption. The filename starts with the start timestamp for
// easy sorting.
//
// The metadata file will be named: run-metadata-{timestamp}-{run id prefix}.json
func SaveMetadata(metadata *RunMetadata, stateDir string) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	id := metadata.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	filename := fmt.Sprintf("run-metadata-%d-%s.json", metadata.StartedAt.Unix(), id)
	path := filepath.Join(stateDir, filename)

	// Write to temporary file first for atomicity
	tmpFile := path + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return fmt.Errorf("failed to create metadata file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(metadata); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpFile)
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("failed to close metadata file: %w", err)
	}

	if err := os.Rename(tmpFile, path); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("failed to save metadata file: %w", err)
	}

	return nil
}

// LoadLatestMetadata finds the most recently completed run for target in
// stateDir. Files that cannot be parsed are skipped.
//
// Returns nil if no metadata exists for the target.
func LoadLatestMetadata(stateDir, target string) (*RunMetadata, error) {
	files, err := filepath.Glob(filepath.Join(stateDir, "run-metadata-*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata files: %w", err)
	}

	var latest *RunMetadata
	for _, file := range files {
		md, readErr := readMetadata(file)
		if readErr != nil || md.Target != target {
			continue
		}
		if latest == nil || md.CompletedAt.After(latest.CompletedAt) {
			latest = md
		}
	}
	return latest, nil
}

func readMetadata(path string) (*RunMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var md RunMetadata
	if err := json.NewDecoder(file).Decode(&md); err != nil {
		return nil, err
	}
	return &md, nil
}

// Ref returns a reference to this run for linking from a later one.
func (m *RunMetadata) Ref() *RunRef {
	return &RunRef{RunID: m.RunID, CompletedAt: m.CompletedAt}
}

// WriteMetadataToWriter serializes metadata to JSON and writes it to the
// provided io.Writer. The output is formatted with indentation for readability.
func WriteMetadataToWriter(metadata *RunMetadata, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}

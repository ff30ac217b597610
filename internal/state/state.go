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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoState is returned by LoadState when the target was never synced.
var ErrNoState = errors.New("no previous sync state")

// StateFilePath returns the path of a target's state file inside stateDir.
// Target should be in "owner/name" format or a plain login.
// Returns: <stateDir>/owner-name.state
func StateFilePath(stateDir, target string) string {
	// Replace slashes with dashes for filesystem compatibility
	safeName := strings.ReplaceAll(target, "/", "-")

	return filepath.Join(stateDir, safeName+".state")
}

// Load reads the state of target from stateDir. A target that was never
// synced yields a fresh empty state.
func Load(stateDir, target string) (*SyncState, error) {
	st, err := LoadState(StateFilePath(stateDir, target))
	if errors.Is(err, ErrNoState) {
		return NewSyncState(target), nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// SaveState atomically saves the sync state to disk with integrity validation.
// It uses a write-to-temp-and-rename pattern to ensure atomicity.
// The checksum is calculated and stored to detect corruption.
func SaveState(state *SyncState, stateFile string) error {
	// Set version to current
	state.Version = CurrentVersion
	state.UpdatedAt = time.Now().UTC()
	state.Checksum = ""

	// Calculate checksum before adding it to the struct
	checksum, err := calculateChecksum(state)
	if err != nil {
		return fmt.Errorf("failed to calculate checksum: %w", err)
	}
	state.Checksum = checksum

	// Ensure the directory exists
	stateDir := filepath.Dir(stateFile)
	if mkdirErr := os.MkdirAll(stateDir, 0o755); mkdirErr != nil {
		return fmt.Errorf("failed to create state directory: %w", mkdirErr)
	}

	// Marshal state to compact JSON for efficiency
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Create a uniquely named temporary file in the same directory so
	// concurrent writers never share one
	file, err := os.CreateTemp(stateDir, filepath.Base(stateFile)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}
	tempFile := file.Name()

	// Restrict permissions, write and sync to ensure data is flushed to disk
	if err := file.Chmod(0o600); err != nil {
		_ = file.Close()
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to restrict temp file permissions: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to write temporary state file: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempFile, stateFile); err != nil {
		// Clean up temp file
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// LoadState reads and validates the sync state from disk.
// It verifies the checksum and version compatibility. A missing file
// yields an error wrapping ErrNoState.
func LoadState(stateFile string) (*SyncState, error) {
	// Read the state file
	data, err := os.ReadFile(stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrNoState, stateFile)
		}
		return nil, fmt.Errorf("failed to read state file %s: %w", stateFile, err)
	}

	// Unmarshal the state
	var state SyncState
	if unmarshalErr := json.Unmarshal(data, &state); unmarshalErr != nil {
		return nil, fmt.Errorf("state file is corrupted (invalid JSON): %w", unmarshalErr)
	}

	// Check version compatibility
	if state.Version != CurrentVersion {
		return nil, fmt.Errorf("state file version (%d) is incompatible with current version (%d)",
			state.Version, CurrentVersion)
	}

	// Verify checksum
	savedChecksum := state.Checksum
	state.Checksum = "" // Clear for recalculation

	calculatedChecksum, err := calculateChecksum(&state)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate checksum for validation: %w", err)
	}

	if savedChecksum != calculatedChecksum {
		return nil, fmt.Errorf("state file is corrupted (checksum mismatch)")
	}

	// Restore the checksum field
	state.Checksum = savedChecksum
	if state.Watermarks == nil {
		state.Watermarks = make(map[string]time.Time)
	}

	return &state, nil
}

// DeleteState removes a state file.
// This is useful for resetting to a clean state.
func DeleteState(stateFile string) error {
	err := os.Remove(stateFile)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state file: %w", err)
	}
	return nil
}

// calculateChecksum computes the SHA256 hash of the state content.
// The checksum field itself is excluded from the calculation.
func calculateChecksum(state *SyncState) (string, error) {
	// Create a copy without the checksum field
	stateCopy := *state
	stateCopy.Checksum = ""

	// Marshal to JSON for consistent hashing; map keys are sorted
	data, err := json.Marshal(stateCopy)
	if err != nil {
		return "", err
	}

	// Calculate SHA256
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

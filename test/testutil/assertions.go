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

package testutil

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// AssertNDJSONOutput validates that a file contains valid NDJSON records and
// returns how many records of each kind it holds.
func AssertNDJSONOutput(t *testing.T, filePath string) map[string]int {
	t.Helper()

	file, err := os.Open(filePath)
	if err != nil {
		t.Fatalf("Failed to open output file: %v", err)
	}
	defer file.Close()

	return AssertNDJSON(t, file)
}

// AssertNDJSON validates NDJSON records read from r and returns how many
// records of each kind it holds.
func AssertNDJSON(t *testing.T, r io.Reader) map[string]int {
	t.Helper()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	kinds := make(map[string]int)
	line := 0

	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			continue
		}

		var record map[string]interface{}
		if err := json.Unmarshal([]byte(text), &record); err != nil {
			t.Errorf("Line %d: invalid JSON: %v", line, err)
			continue
		}

		// Validate record has required fields
		for _, field := range []string{"kind", "owner", "data"} {
			if _, ok := record[field]; !ok {
				t.Errorf("Line %d: missing required field '%s'", line, field)
			}
		}

		kind, _ := record["kind"].(string)
		kinds[kind]++
	}

	if err := scanner.Err(); err != nil {
		t.Fatalf("Error reading records: %v", err)
	}

	return kinds
}

// AssertMetadataFile validates the newest run metadata file in dir
func AssertMetadataFile(t *testing.T, dir string) map[string]interface{} {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, "run-metadata-*.json"))
	if err != nil {
		t.Fatalf("Failed to glob metadata files: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("No metadata file found")
	}

	// Read and validate metadata
	data, err := os.ReadFile(matches[len(matches)-1])
	if err != nil {
		t.Fatalf("Failed to read metadata file: %v", err)
	}

	var metadata map[string]interface{}
	if err := json.Unmarshal(data, &metadata); err != nil {
		t.Fatalf("Invalid metadata JSON: %v", err)
	}

	// Check required fields
	requiredFields := []string{"version", "run_id", "command", "started_at", "completed_at", "items", "executor"}
	for _, field := range requiredFields {
		if _, ok := metadata[field]; !ok {
			t.Errorf("Missing required metadata field: %s", field)
		}
	}

	return metadata
}

// AssertContainsString checks if a string contains a substring
func AssertContainsString(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Errorf("Expected string to contain %q, got: %s", needle, haystack)
	}
}

// AssertErrorContains checks if an error contains expected text
func AssertErrorContains(t *testing.T, err error, expected string) {
	t.Helper()
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), expected) {
		t.Errorf("Expected error to contain %q, got: %v", expected, err)
	}
}

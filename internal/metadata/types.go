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

// Package metadata types define the structures used for tracking and
// persisting information about datacat runs. These types capture what was
// fetched, how much of it, and what it cost against the GitHub quota.
package metadata

import (
	"time"
)

// RunMetadata represents the complete metadata record for a single datacat
// run. It is written next to the state files so external tools can audit
// fetch history and spot runs that burned through retries.
type RunMetadata struct {
	Version     string         `json:"version"`
	RunID       string         `json:"run_id"`
	Command     string         `json:"command"`
	Target      string         `json:"target"`
	Parameters  RunParams      `json:"parameters"`
	Items       map[string]int `json:"items"`
	Executor    ExecutorStats  `json:"executor"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Duration    string         `json:"duration"`
	PreviousRun *RunRef        `json:"previous_run,omitempty"`
}

// RunParams captures the input parameters of a run.
type RunParams struct {
	Resources   []string   `json:"resources"`
	Since       *time.Time `json:"since,omitempty"`
	Incremental bool       `json:"incremental"`
	CommitLimit int        `json:"commit_limit,omitempty"`
}

// ExecutorStats mirrors the executor counters at the end of a run.
type ExecutorStats struct {
	Operations int64            `json:"operations"`
	Attempts   int64            `json:"attempts"`
	Retries    int64            `json:"retries"`
	Outcomes   map[string]int64 `json:"outcomes"`
}

// RunRef provides a lightweight reference to a previous run, used to link
// incremental runs to their predecessors.
type RunRef struct {
	RunID       string    `json:"run_id"`
	CompletedAt time.Time `json:"completed_at"`
}

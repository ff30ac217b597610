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

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirseerhq/datacat/internal/metadata"
	"github.com/sirseerhq/datacat/internal/state"
	"github.com/spf13/cobra"
)

// windowFlags are the --since and --incremental flags of a fetch.
type windowFlags struct {
	since       string
	incremental bool
}

func (f *windowFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.since, "since", "", "Only fetch items newer than this time (RFC3339 or YYYY-MM-DD)")
	cmd.Flags().BoolVar(&f.incremental, "incremental", false, "Resume from the watermarks of the last successful fetch")
}

// window is the time filter of one run and the sync state it advances.
type window struct {
	target      string
	since       time.Time
	incremental bool
	previous    *metadata.RunRef

	// st is nil when the run must not move watermarks: an explicit --since
	// leaves a gap between the old watermark and the requested time.
	st *state.SyncState
}

// openWindow resolves the watermark for resources of target.
func openWindow(s *session, target string, f windowFlags, resources []string) (*window, error) {
	if f.since != "" && f.incremental {
		return nil, errors.New("--since and --incremental cannot be used together")
	}

	w := &window{target: target, incremental: f.incremental}
	if f.since != "" {
		since, err := parseSince(f.since)
		if err != nil {
			return nil, err
		}
		w.since = since
		return w, nil
	}

	st, err := state.Load(s.stateDir, target)
	if err != nil {
		if f.incremental {
			return nil, fmt.Errorf("cannot resume %s: %w", target, err)
		}
		s.logger.Warn().Err(err).Str("target", target).Msg("ignoring unreadable sync state")
		st = state.NewSyncState(target)
	}
	w.st = st

	if f.incremental {
		w.since = oldestWatermark(st, resources)
		prev, err := metadata.LoadLatestMetadata(s.stateDir, target)
		if err != nil {
			s.logger.Warn().Err(err).Str("target", target).Msg("failed to read previous run metadata")
		} else if prev != nil {
			w.previous = prev.Ref()
		}
		if w.since.IsZero() {
			s.logger.Info().Str("target", target).Msg("no previous watermark; fetching everything")
		}
	}
	return w, nil
}

// oldestWatermark is the earliest watermark of resources, or zero when any
// of them was never synced.
func oldestWatermark(st *state.SyncState, resources []string) time.Time {
	var oldest time.Time
	for i, r := range resources {
		wm := st.Watermark(r)
		if wm.IsZero() {
			return time.Time{}
		}
		if i == 0 || wm.Before(oldest) {
			oldest = wm
		}
	}
	return oldest
}

// advance moves the watermarks of resources to the start of the run, so
// anything updated while the run was in progress is fetched again next time.
func (w *window) advance(s *session, tr *metadata.Tracker, resources ...string) error {
	if w.st == nil || len(resources) == 0 {
		return nil
	}
	for _, r := range resources {
		w.st.SetWatermark(r, tr.StartedAt())
	}
	w.st.LastRunID = tr.RunID()
	if err := state.SaveState(w.st, state.StateFilePath(s.stateDir, w.target)); err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}

// parseSince accepts RFC3339 timestamps and plain dates (UTC midnight).
func parseSince(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid --since %q: expected RFC3339 (2006-01-02T15:04:05Z) or YYYY-MM-DD", v)
}

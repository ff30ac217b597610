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
	"context"
	"fmt"
	"time"

	"github.com/sirseerhq/datacat/internal/output"
	"github.com/spf13/cobra"
)

// rateLimitRecord is the data of one rate_limit record.
type rateLimitRecord struct {
	Remaining  int        `json:"remaining"`
	ResetAt    *time.Time `json:"reset_at,omitempty"`
	Eligible   bool       `json:"eligible"`
	Refreshing bool       `json:"refreshing"`
}

func newRateLimitCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ratelimit",
		Short: "Show the remaining quota of every configured token",
		Long: `Probe every configured token and print one rate_limit record per token.
Tokens are identified by a short fingerprint, never by their value. A token is
eligible when its remaining quota is above the reserve kept for in-flight work.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := setup(cmd.Context(), g, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()
			return runRateLimit(cmd.Context(), s)
		},
	}
}

func runRateLimit(_ context.Context, s *session) error {
	if s.statuses == nil {
		return fmt.Errorf("no credential pool available")
	}
	for _, st := range s.statuses() {
		rec := rateLimitRecord{
			Remaining:  st.State.Remaining,
			Eligible:   st.Eligible,
			Refreshing: st.Refreshing,
		}
		if !st.State.ResetAt.IsZero() {
			resetAt := st.State.ResetAt.UTC()
			rec.ResetAt = &resetAt
		}
		if err := s.out.Emit(output.KindRateLimit, st.Fingerprint, "", rec); err != nil {
			return fmt.Errorf("failed to write rate limit: %w", err)
		}
	}
	return nil
}

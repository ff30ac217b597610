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

package quotastore

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sirseerhq/datacat/internal/tokenpool"
)

func TestStateFieldsRoundTrip(t *testing.T) {
	in := tokenpool.State{
		Remaining: 4321,
		ResetAt:   time.Unix(1735732800, 0),
		UpdatedAt: time.Date(2025, 1, 1, 11, 0, 0, 123, time.UTC),
	}

	raw := formatState(in)
	fields := map[string]string{
		fieldRemaining: "4321",
		fieldResetAt:   "1735732800",
		fieldUpdatedAt: raw[fieldUpdatedAt].(string),
	}

	out, err := parseState(fields)
	if err != nil {
		t.Fatalf("parseState failed: %v", err)
	}
	if out.Remaining != in.Remaining || !out.ResetAt.Equal(in.ResetAt) || !out.UpdatedAt.Equal(in.UpdatedAt) {
		t.Errorf("parseState() = %+v, want %+v", out, in)
	}
}

func TestParseStateErrors(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{name: "missing remaining", fields: map[string]string{fieldResetAt: "1"}},
		{name: "bad reset", fields: map[string]string{fieldRemaining: "1", fieldResetAt: "soon"}},
		{name: "bad updated", fields: map[string]string{fieldRemaining: "1", fieldUpdatedAt: "yesterday"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseState(tt.fields); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestParseStateUnknownReset(t *testing.T) {
	st, err := parseState(map[string]string{fieldRemaining: "0", fieldResetAt: "0"})
	if err != nil {
		t.Fatal(err)
	}
	if !st.ResetAt.IsZero() {
		t.Errorf("ResetAt = %v, want zero", st.ResetAt)
	}
}

func TestKeyPrefix(t *testing.T) {
	s := NewRedisStore(nil, "custom:", zerolog.Nop())
	if got := s.key("abc"); got != "custom:abc" {
		t.Errorf("key() = %q, want custom:abc", got)
	}
	if got := NewRedisStore(nil, "", zerolog.Nop()).key("abc"); got != "datacat:quota:abc" {
		t.Errorf("default key() = %q", got)
	}
}

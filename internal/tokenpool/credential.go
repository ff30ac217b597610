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

package tokenpool

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// UnknownRemaining marks a credential whose quota has not been observed yet.
const UnknownRemaining = -1

// State is the quota snapshot of one credential.
type State struct {
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Known reports whether the remaining quota has been observed.
func (s State) Known() bool {
	return s.Remaining != UnknownRemaining
}

// Credential is one access token and its quota bookkeeping. The state is
// guarded by the owning Pool.
type Credential struct {
	secret      string
	fingerprint string
	state       State
	refresh     *time.Timer
}

func newCredential(secret string) *Credential {
	return &Credential{
		secret:      secret,
		fingerprint: Fingerprint(secret),
		state:       State{Remaining: UnknownRemaining},
	}
}

// Secret returns the token to send in the Authorization header.
func (c *Credential) Secret() string {
	return c.secret
}

// Fingerprint identifies the credential in logs, metrics and the quota store.
func (c *Credential) Fingerprint() string {
	return c.fingerprint
}

// Fingerprint returns a short stable digest of a secret.
func Fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:6])
}

// Status is a read-only view of a credential for reporting.
type Status struct {
	Fingerprint string
	State       State
	Eligible    bool
	Refreshing  bool
}

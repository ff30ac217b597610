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

package github

import (
	"context"
	"time"
)

// Client defines the resource fetchers datacat exposes.
// This interface allows for easy mocking in tests.
type Client interface {
	// Repository returns the repository record, or nil when it does not exist.
	Repository(ctx context.Context, owner, name string) (*Repository, error)

	// OrgRepositories lists an owner's repositories updated after since,
	// most recently updated first.
	OrgRepositories(ctx context.Context, login string, since time.Time) ([]Repository, error)

	Stars(ctx context.Context, owner, name string, since time.Time) ([]Actor, error)
	Forks(ctx context.Context, owner, name string, since time.Time) ([]Actor, error)
	Issues(ctx context.Context, owner, name string, since time.Time) ([]Issue, error)
	PullRequests(ctx context.Context, owner, name string, since time.Time) ([]PullRequest, error)

	// Contributors scans the commit history of branch, at most about
	// commitLimit commits, and returns one entry per author login.
	Contributors(ctx context.Context, owner, name, branch string, commitLimit int) ([]Contributor, error)

	// User returns the profile, or nil when the login does not exist.
	User(ctx context.Context, login string) (*User, error)
	Followers(ctx context.Context, login string) ([]Follower, error)
	Following(ctx context.Context, login string) ([]Follower, error)

	// FullRepository fetches the repository record and the selected
	// collections. It returns nil when the repository does not exist.
	FullRepository(ctx context.Context, owner, name string, opts FullOptions) (*Repository, error)
}

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
	"fmt"
	"sync"
	"time"

	caterrors "github.com/sirseerhq/datacat/internal/errors"
)

// MockClient is a mock implementation of the Client interface for testing.
// Each method returns the matching canned data; since filters are applied
// the way the real fetchers apply them.
type MockClient struct {
	Repo         *Repository
	Repositories []Repository
	StarList     []Actor
	ForkList     []Actor
	IssueList    []Issue
	PullList     []PullRequest
	Contribs     []Contributor
	Profile      *User
	FollowerList []Follower

	// Error to return
	Error error

	// Behavior flags
	ShouldFailAuth     bool
	ShouldFailNetwork  bool
	ShouldFailNotFound bool

	mu    sync.Mutex
	calls []string
}

var _ Client = (*MockClient)(nil)

// NewMockClient creates a new mock client with default test data
func NewMockClient() *MockClient {
	now := time.Now().UTC()
	yesterday := now.Add(-24 * time.Hour)
	lastWeek := now.Add(-7 * 24 * time.Hour)

	return &MockClient{
		Repo: &Repository{
			ID:            "R_1",
			Name:          "repo",
			Owner:         Owner{Login: "test", Type: "Organization"},
			DefaultBranch: "main",
			StarCount:     2,
			ForkCount:     1,
			CreatedAt:     lastWeek,
			UpdatedAt:     now,
		},
		StarList: []Actor{
			{Login: "alice", Time: now},
			{Login: "bob", Time: lastWeek},
		},
		ForkList: []Actor{{Login: "charlie", Time: yesterday}},
		IssueList: []Issue{
			{Number: 12, Title: "Crash on empty input", State: "OPEN", Author: "alice", CreatedAt: lastWeek, UpdatedAt: now},
		},
		PullList: []PullRequest{
			{Number: 13, Title: "Handle empty input", State: "MERGED", Author: "bob", CreatedAt: yesterday, UpdatedAt: yesterday, MergedAt: &yesterday},
		},
		Contribs: []Contributor{{Login: "bob", Email: "bob@example.com", Time: lastWeek}},
		Profile:  &User{Login: "alice", DatabaseID: 1, CreatedAt: lastWeek},
		FollowerList: []Follower{
			{Login: "bob", DatabaseID: 2},
		},
	}
}

// Calls returns the names of the methods called so far, in order.
func (m *MockClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockClient) enter(ctx context.Context, method string) error {
	m.mu.Lock()
	m.calls = append(m.calls, method)
	m.mu.Unlock()

	// Check for context cancellation
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", caterrors.ErrCancelled, ctx.Err())
	default:
	}

	// Simulate various error conditions
	if m.ShouldFailAuth {
		return fmt.Errorf("authentication failed: %w", caterrors.ErrInvalidToken)
	}
	if m.ShouldFailNetwork {
		return fmt.Errorf("network timeout: %w", caterrors.ErrNetworkFailure)
	}
	return m.Error
}

func after[T any](items []T, since time.Time, ts func(T) time.Time) []T {
	if since.IsZero() {
		return items
	}
	return filter(items, func(item T) bool { return ts(item).After(since) })
}

// Repository implements Client.
func (m *MockClient) Repository(ctx context.Context, owner, name string) (*Repository, error) {
	if err := m.enter(ctx, "Repository"); err != nil {
		return nil, err
	}
	if m.ShouldFailNotFound || m.Repo == nil {
		return nil, nil
	}
	repo := *m.Repo
	return &repo, nil
}

// OrgRepositories implements Client.
func (m *MockClient) OrgRepositories(ctx context.Context, login string, since time.Time) ([]Repository, error) {
	if err := m.enter(ctx, "OrgRepositories"); err != nil {
		return nil, err
	}
	return after(m.Repositories, since, func(r Repository) time.Time { return r.UpdatedAt }), nil
}

// Stars implements Client.
func (m *MockClient) Stars(ctx context.Context, owner, name string, since time.Time) ([]Actor, error) {
	if err := m.enter(ctx, "Stars"); err != nil {
		return nil, err
	}
	return after(m.StarList, since, func(a Actor) time.Time { return a.Time }), nil
}

// Forks implements Client.
func (m *MockClient) Forks(ctx context.Context, owner, name string, since time.Time) ([]Actor, error) {
	if err := m.enter(ctx, "Forks"); err != nil {
		return nil, err
	}
	return after(m.ForkList, since, func(a Actor) time.Time { return a.Time }), nil
}

// Issues implements Client.
func (m *MockClient) Issues(ctx context.Context, owner, name string, since time.Time) ([]Issue, error) {
	if err := m.enter(ctx, "Issues"); err != nil {
		return nil, err
	}
	return after(m.IssueList, since, func(i Issue) time.Time { return i.UpdatedAt }), nil
}

// PullRequests implements Client.
func (m *MockClient) PullRequests(ctx context.Context, owner, name string, since time.Time) ([]PullRequest, error) {
	if err := m.enter(ctx, "PullRequests"); err != nil {
		return nil, err
	}
	return after(m.PullList, since, func(pr PullRequest) time.Time { return pr.UpdatedAt }), nil
}

// Contributors implements Client.
func (m *MockClient) Contributors(ctx context.Context, owner, name, branch string, commitLimit int) ([]Contributor, error) {
	if err := m.enter(ctx, "Contributors"); err != nil {
		return nil, err
	}
	return m.Contribs, nil
}

// User implements Client.
func (m *MockClient) User(ctx context.Context, login string) (*User, error) {
	if err := m.enter(ctx, "User"); err != nil {
		return nil, err
	}
	if m.ShouldFailNotFound || m.Profile == nil {
		return nil, nil
	}
	u := *m.Profile
	return &u, nil
}

// Followers implements Client.
func (m *MockClient) Followers(ctx context.Context, login string) ([]Follower, error) {
	if err := m.enter(ctx, "Followers"); err != nil {
		return nil, err
	}
	return m.FollowerList, nil
}

// Following implements Client.
func (m *MockClient) Following(ctx context.Context, login string) ([]Follower, error) {
	if err := m.enter(ctx, "Following"); err != nil {
		return nil, err
	}
	return m.FollowerList, nil
}

// FullRepository implements Client.
func (m *MockClient) FullRepository(ctx context.Context, owner, name string, opts FullOptions) (*Repository, error) {
	repo, err := m.Repository(ctx, owner, name)
	if err != nil || repo == nil {
		return nil, err
	}
	if opts.Stars {
		repo.Stars, _ = m.Stars(ctx, owner, name, opts.Since)
	}
	if opts.Forks {
		repo.Forks, _ = m.Forks(ctx, owner, name, opts.Since)
	}
	if opts.Issues {
		repo.Issues, _ = m.Issues(ctx, owner, name, opts.Since)
	}
	if opts.PullRequests {
		repo.PullRequests, _ = m.PullRequests(ctx, owner, name, opts.Since)
	}
	if opts.Contributors {
		repo.Contributors, _ = m.Contributors(ctx, owner, name, repo.DefaultBranch, opts.CommitLimit)
	}
	return repo, nil
}

// MockClientOption allows configuring the mock client
type MockClientOption func(*MockClient)

// WithError makes the client return a specific error
func WithError(err error) MockClientOption {
	return func(m *MockClient) {
		m.Error = err
	}
}

// WithAuthFailure makes the client simulate authentication failure
func WithAuthFailure() MockClientOption {
	return func(m *MockClient) {
		m.ShouldFailAuth = true
	}
}

// WithNotFound makes single-entity lookups report a missing entity
func WithNotFound() MockClientOption {
	return func(m *MockClient) {
		m.ShouldFailNotFound = true
	}
}

// NewMockClientWithOptions creates a mock client with options
func NewMockClientWithOptions(opts ...MockClientOption) *MockClient {
	mock := NewMockClient()
	for _, opt := range opts {
		opt(mock)
	}
	return mock
}

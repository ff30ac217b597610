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

import "time"

// Repository is the metadata record of one repository. The collections are
// filled only by FullRepository and only for the resources that were asked for.
type Repository struct {
	ID                   string     `json:"id"`
	DatabaseID           int        `json:"database_id"`
	Owner                Owner      `json:"owner"`
	Name                 string     `json:"name"`
	Description          string     `json:"description,omitempty"`
	Language             string     `json:"language,omitempty"`
	License              string     `json:"license,omitempty"`
	CodeOfConduct        string     `json:"code_of_conduct,omitempty"`
	IsFork               bool       `json:"is_fork"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	PushedAt             *time.Time `json:"pushed_at,omitempty"`
	DefaultBranch        string     `json:"default_branch,omitempty"`
	DefaultBranchCommits int        `json:"default_branch_commits"`
	BranchCount          int        `json:"branch_count"`
	ReleaseCount         int        `json:"release_count"`
	StarCount            int        `json:"star_count"`
	WatcherCount         int        `json:"watcher_count"`
	ForkCount            int        `json:"fork_count"`
	DirectForkCount      int        `json:"direct_fork_count"`

	Stars        []Actor       `json:"stars,omitempty"`
	Forks        []Actor       `json:"forks,omitempty"`
	Issues       []Issue       `json:"issues,omitempty"`
	PullRequests []PullRequest `json:"pull_requests,omitempty"`
	Contributors []Contributor `json:"contributors,omitempty"`
}

// Owner describes the account a repository belongs to. Type is "User" or
// "Organization"; the remaining fields depend on it.
type Owner struct {
	Login           string     `json:"login"`
	Type            string     `json:"type"`
	Name            string     `json:"name,omitempty"`
	Email           string     `json:"email,omitempty"`
	Bio             string     `json:"bio,omitempty"`
	Description     string     `json:"description,omitempty"`
	Company         string     `json:"company,omitempty"`
	Location        string     `json:"location,omitempty"`
	WebsiteURL      string     `json:"website_url,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	RepositoryCount int        `json:"repository_count"`
	MemberCount     int        `json:"member_count,omitempty"`
}

// Actor is a login with the time it acted: a star or a fork.
type Actor struct {
	Login string    `json:"login"`
	Time  time.Time `json:"time"`
}

// Contributor is a commit author on a branch with the time of their
// earliest commit seen.
type Contributor struct {
	Login string    `json:"login"`
	Email string    `json:"email,omitempty"`
	Time  time.Time `json:"time"`
}

// Comment is an issue, pull request or review comment.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	URL       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Issue represents a GitHub issue with its labels and comments.
type Issue struct {
	ID        string     `json:"id"`
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"`
	Author    string     `json:"author"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Labels    []string   `json:"labels,omitempty"`
	Comments  []Comment  `json:"comments,omitempty"`
}

// PullRequest represents a GitHub pull request. Additions and Deletions are
// summed over the fetched commits; ReviewComments holds the comments of all
// fetched reviews.
type PullRequest struct {
	ID             string     `json:"id"`
	Number         int        `json:"number"`
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	State          string     `json:"state"`
	Author         string     `json:"author"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	MergedAt       *time.Time `json:"merged_at,omitempty"`
	Labels         []string   `json:"labels,omitempty"`
	Comments       []Comment  `json:"comments,omitempty"`
	ReviewComments []Comment  `json:"review_comments,omitempty"`
	Commits        int        `json:"commits"`
	Additions      int        `json:"additions"`
	Deletions      int        `json:"deletions"`
}

// User is a GitHub user profile.
type User struct {
	Login      string    `json:"login"`
	DatabaseID int       `json:"database_id"`
	Name       string    `json:"name,omitempty"`
	Email      string    `json:"email,omitempty"`
	Bio        string    `json:"bio,omitempty"`
	Company    string    `json:"company,omitempty"`
	Location   string    `json:"location,omitempty"`
	IsEmployee bool      `json:"is_employee"`
	CreatedAt  time.Time `json:"created_at"`
}

// Follower is one entry of a followers or following list.
type Follower struct {
	Login      string `json:"login"`
	DatabaseID int    `json:"database_id"`
}

// FullOptions selects the collections FullRepository fetches next to the
// repository record.
type FullOptions struct {
	Stars        bool
	Forks        bool
	Issues       bool
	PullRequests bool
	Contributors bool

	// Since is the watermark for stars, forks, issues and pull requests.
	Since time.Time
	// CommitLimit bounds the commits scanned for contributors.
	CommitLimit int
}

// Page sizes per resource. Nested collections are fetched with the
// parent in a single request and are not paginated further.
const (
	orgRepositoriesPageSize = 5
	starsPageSize           = 20
	forksPageSize           = 20
	issuesPageSize          = 5
	pullRequestsPageSize    = 5
	contributorsPageSize    = 20
	followersPageSize       = 50

	// DefaultCommitLimit bounds the commits scanned for contributors.
	DefaultCommitLimit = 1000
)

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

	"github.com/shurcooL/graphql"
)

type pullRequestNode struct {
	ID        graphql.String
	Number    graphql.Int
	Title     graphql.String
	Body      graphql.String
	State     graphql.String
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
	MergedAt  *time.Time
	Author    *actorNode
	Labels    labelNodes   `graphql:"labels(first: 10)"`
	Comments  commentNodes `graphql:"comments(first: 100)"`
	Commits   struct {
		TotalCount graphql.Int
		Nodes      []struct {
			Commit struct {
				Additions graphql.Int
				Deletions graphql.Int
			}
		}
	} `graphql:"commits(first: 100)"`
	Reviews struct {
		Nodes []struct {
			Comments commentNodes `graphql:"comments(first: 100)"`
		}
	} `graphql:"reviews(first: 100)"`
}

type pullRequestsQuery struct {
	RateLimited
	Repository *struct {
		PullRequests struct {
			PageInfo pageInfo
			Nodes    []pullRequestNode
		} `graphql:"pullRequests(first: $first, after: $cursor, orderBy: {field: UPDATED_AT, direction: DESC})"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

func (n *pullRequestNode) toPullRequest() PullRequest {
	pr := PullRequest{
		ID:        string(n.ID),
		Number:    int(n.Number),
		Title:     string(n.Title),
		Body:      string(n.Body),
		State:     string(n.State),
		Author:    n.Author.login(),
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
		ClosedAt:  n.ClosedAt,
		MergedAt:  n.MergedAt,
		Labels:    n.Labels.names(),
		Comments:  n.Comments.comments(),
		Commits:   int(n.Commits.TotalCount),
	}
	for _, c := range n.Commits.Nodes {
		pr.Additions += int(c.Commit.Additions)
		pr.Deletions += int(c.Commit.Deletions)
	}
	for _, r := range n.Reviews.Nodes {
		pr.ReviewComments = append(pr.ReviewComments, r.Comments.comments()...)
	}
	return pr
}

// PullRequests lists the pull requests updated after since, most recently
// updated first. Additions and deletions are summed over the first 100
// commits and review comments are flattened over the first 100 reviews.
func (f *Fetcher) PullRequests(ctx context.Context, owner, name string, since time.Time) ([]PullRequest, error) {
	fetch := func(ctx context.Context, req PageRequest) (Page[PullRequest], Outcome) {
		q, out := Execute[pullRequestsQuery](ctx, f.ex, pageVars(repoVars(owner, name), req))
		if q == nil || q.Repository == nil {
			return Page[PullRequest]{}, out
		}
		conn := q.Repository.PullRequests
		prs := make([]PullRequest, 0, len(conn.Nodes))
		for i := range conn.Nodes {
			prs = append(prs, conn.Nodes[i].toPullRequest())
		}
		return toPage(prs, conn.PageInfo), out
	}

	prs, err := Collect(ctx, fetch, WalkOptions[PullRequest]{
		PageSize:   pullRequestsPageSize,
		Watermark:  since,
		Descending: true,
		Timestamp:  func(pr PullRequest) time.Time { return pr.UpdatedAt },
		Keep:       func(pr PullRequest) bool { return pr.Author != "" },
	})
	if err != nil {
		return nil, f.fail("pull_requests", owner, name, err)
	}
	return prs, nil
}

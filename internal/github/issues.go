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

type labelNodes struct {
	Nodes []struct {
		Name graphql.String
	}
}

type commentNode struct {
	ID        graphql.String
	Body      graphql.String
	URL       graphql.String `graphql:"url"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Author    *actorNode
}

type commentNodes struct {
	Nodes []commentNode
}

type issueNode struct {
	ID        graphql.String
	Number    graphql.Int
	Title     graphql.String
	Body      graphql.String
	State     graphql.String
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
	Author    *actorNode
	Labels    labelNodes   `graphql:"labels(first: 10)"`
	Comments  commentNodes `graphql:"comments(first: 100)"`
}

type issuesQuery struct {
	RateLimited
	Repository *struct {
		Issues struct {
			PageInfo pageInfo
			Nodes    []issueNode
		} `graphql:"issues(first: $first, after: $cursor, orderBy: {field: UPDATED_AT, direction: DESC})"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

func (l labelNodes) names() []string {
	if len(l.Nodes) == 0 {
		return nil
	}
	names := make([]string, 0, len(l.Nodes))
	for _, n := range l.Nodes {
		names = append(names, string(n.Name))
	}
	return names
}

// comments converts the nodes, dropping comments whose author is gone.
func (c commentNodes) comments() []Comment {
	var out []Comment
	for _, n := range c.Nodes {
		author := n.Author.login()
		if author == "" {
			continue
		}
		out = append(out, Comment{
			ID:        string(n.ID),
			Author:    author,
			Body:      string(n.Body),
			URL:       string(n.URL),
			CreatedAt: n.CreatedAt,
			UpdatedAt: n.UpdatedAt,
		})
	}
	return out
}

func (n *issueNode) toIssue() Issue {
	return Issue{
		ID:        string(n.ID),
		Number:    int(n.Number),
		Title:     string(n.Title),
		Body:      string(n.Body),
		State:     string(n.State),
		Author:    n.Author.login(),
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
		ClosedAt:  n.ClosedAt,
		Labels:    n.Labels.names(),
		Comments:  n.Comments.comments(),
	}
}

// Issues lists the issues updated after since, most recently updated first,
// each with up to 10 labels and 100 comments.
func (f *Fetcher) Issues(ctx context.Context, owner, name string, since time.Time) ([]Issue, error) {
	fetch := func(ctx context.Context, req PageRequest) (Page[Issue], Outcome) {
		q, out := Execute[issuesQuery](ctx, f.ex, pageVars(repoVars(owner, name), req))
		if q == nil || q.Repository == nil {
			return Page[Issue]{}, out
		}
		conn := q.Repository.Issues
		issues := make([]Issue, 0, len(conn.Nodes))
		for i := range conn.Nodes {
			issues = append(issues, conn.Nodes[i].toIssue())
		}
		return toPage(issues, conn.PageInfo), out
	}

	issues, err := Collect(ctx, fetch, WalkOptions[Issue]{
		PageSize:   issuesPageSize,
		Watermark:  since,
		Descending: true,
		Timestamp:  func(i Issue) time.Time { return i.UpdatedAt },
		Keep:       func(i Issue) bool { return i.Author != "" },
	})
	if err != nil {
		return nil, f.fail("issues", owner, name, err)
	}
	return issues, nil
}

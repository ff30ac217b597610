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

package testutil

import (
	"fmt"
	"time"
)

// GraphQLError is one entry of the "errors" array of a response.
type GraphQLError struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

// DataBody builds a successful response envelope.
func DataBody(data map[string]any) map[string]any {
	return map[string]any{"data": data}
}

// ErrorBody builds an envelope with errors and, when data is non-nil,
// partial data.
func ErrorBody(data map[string]any, errs ...GraphQLError) map[string]any {
	body := map[string]any{"errors": errs}
	if data != nil {
		body["data"] = data
	}
	return body
}

// NotFoundBody is what GitHub answers for a missing repository or user.
func NotFoundBody(field, what string) map[string]any {
	return ErrorBody(map[string]any{field: nil}, GraphQLError{
		Type:    "NOT_FOUND",
		Message: fmt.Sprintf("Could not resolve to a %s with the name '%s'.", field, what),
	})
}

// QuotaData builds the rateLimit selection of a bare quota probe, which
// asks for remaining and resetAt only.
func QuotaData(remaining int, resetAt time.Time) map[string]any {
	return map[string]any{
		"remaining": remaining,
		"resetAt":   resetAt.UTC().Format(time.RFC3339),
	}
}

// RateLimitData builds the rateLimit selection carried by data queries.
func RateLimitData(remaining int, resetAt time.Time, cost int) map[string]any {
	data := QuotaData(remaining, resetAt)
	data["cost"] = cost
	return data
}

// PageInfo builds a pageInfo selection. A "" cursor is sent as null.
func PageInfo(hasNext bool, cursor string) map[string]any {
	var endCursor any
	if cursor != "" {
		endCursor = cursor
	}
	return map[string]any{
		"hasNextPage": hasNext,
		"endCursor":   endCursor,
	}
}

// Nodes builds a connection with a nodes list.
func Nodes(nodes []map[string]any, hasNext bool, cursor string) map[string]any {
	return map[string]any{
		"pageInfo": PageInfo(hasNext, cursor),
		"nodes":    nodes,
	}
}

// Edges builds a connection with an edges list.
func Edges(edges []map[string]any, hasNext bool, cursor string) map[string]any {
	return map[string]any{
		"pageInfo": PageInfo(hasNext, cursor),
		"edges":    edges,
	}
}

// Actor builds an author, owner or user reference. An empty login yields
// null, the way GitHub reports deleted accounts.
func Actor(login string) any {
	if login == "" {
		return nil
	}
	return map[string]any{"login": login}
}

// StarEdge builds a stargazers edge.
func StarEdge(login string, starredAt time.Time) map[string]any {
	return map[string]any{
		"starredAt": starredAt.UTC().Format(time.RFC3339),
		"node":      Actor(login),
	}
}

// ForkNode builds a forks node.
func ForkNode(owner string, createdAt time.Time) map[string]any {
	return map[string]any{
		"createdAt": createdAt.UTC().Format(time.RFC3339),
		"owner":     Actor(owner),
	}
}

// CommitNode builds a commit history node. An empty login yields a commit
// without a linked GitHub account.
func CommitNode(login, email string, committedAt time.Time) map[string]any {
	author := map[string]any{"email": email, "user": nil}
	if login != "" {
		author["user"] = map[string]any{"login": login, "email": ""}
	}
	return map[string]any{
		"committedDate": committedAt.UTC().Format(time.RFC3339),
		"author":        author,
	}
}

// IssueBuilder provides a fluent interface for building issue and pull
// request nodes.
type IssueBuilder struct {
	number    int
	title     string
	state     string
	author    string
	createdAt time.Time
	updatedAt time.Time
	closedAt  *time.Time
	mergedAt  *time.Time
	labels    []string
	comments  []map[string]any
	commits   []map[string]any
	reviews   []map[string]any
}

// NewIssueBuilder creates a new builder with sensible defaults
func NewIssueBuilder(number int) *IssueBuilder {
	now := time.Now().UTC().Truncate(time.Second)
	return &IssueBuilder{
		number:    number,
		title:     fmt.Sprintf("Issue %d", number),
		state:     "OPEN",
		author:    fmt.Sprintf("user%d", number),
		createdAt: now.Add(-time.Duration(number) * time.Hour),
		updatedAt: now.Add(-time.Duration(number) * time.Minute),
	}
}

// WithTitle sets the title
func (b *IssueBuilder) WithTitle(title string) *IssueBuilder {
	b.title = title
	return b
}

// WithAuthor sets the author; "" makes the author a deleted account
func (b *IssueBuilder) WithAuthor(author string) *IssueBuilder {
	b.author = author
	return b
}

// WithUpdatedAt sets the update time
func (b *IssueBuilder) WithUpdatedAt(t time.Time) *IssueBuilder {
	b.updatedAt = t
	return b
}

// WithClosedAt marks the node closed
func (b *IssueBuilder) WithClosedAt(t time.Time) *IssueBuilder {
	b.state = "CLOSED"
	b.closedAt = &t
	return b
}

// WithMergedAt marks the node merged
func (b *IssueBuilder) WithMergedAt(t time.Time) *IssueBuilder {
	b.state = "MERGED"
	b.closedAt = &t
	b.mergedAt = &t
	return b
}

// WithLabels sets the labels
func (b *IssueBuilder) WithLabels(labels ...string) *IssueBuilder {
	b.labels = labels
	return b
}

// WithComment adds a comment
func (b *IssueBuilder) WithComment(author, body string) *IssueBuilder {
	b.comments = append(b.comments, commentNode(len(b.comments), author, body, b.createdAt))
	return b
}

// WithCommit adds a commit with its line changes
func (b *IssueBuilder) WithCommit(additions, deletions int) *IssueBuilder {
	b.commits = append(b.commits, map[string]any{
		"commit": map[string]any{"additions": additions, "deletions": deletions},
	})
	return b
}

// WithReview adds a review holding the given review comment bodies
func (b *IssueBuilder) WithReview(author string, bodies ...string) *IssueBuilder {
	comments := make([]map[string]any, 0, len(bodies))
	for i, body := range bodies {
		comments = append(comments, commentNode(i, author, body, b.createdAt))
	}
	b.reviews = append(b.reviews, map[string]any{
		"comments": map[string]any{"nodes": comments},
	})
	return b
}

func commentNode(i int, author, body string, at time.Time) map[string]any {
	ts := at.UTC().Format(time.RFC3339)
	return map[string]any{
		"id":        fmt.Sprintf("C_%d", i),
		"body":      body,
		"url":       fmt.Sprintf("https://github.com/comment/%d", i),
		"createdAt": ts,
		"updatedAt": ts,
		"author":    Actor(author),
	}
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// Build creates an issue node.
func (b *IssueBuilder) Build() map[string]any {
	labels := make([]map[string]any, 0, len(b.labels))
	for _, l := range b.labels {
		labels = append(labels, map[string]any{"name": l})
	}
	comments := b.comments
	if comments == nil {
		comments = []map[string]any{}
	}
	return map[string]any{
		"id":        fmt.Sprintf("I_%d", b.number),
		"number":    b.number,
		"title":     b.title,
		"body":      "body of " + b.title,
		"state":     b.state,
		"createdAt": b.createdAt.UTC().Format(time.RFC3339),
		"updatedAt": b.updatedAt.UTC().Format(time.RFC3339),
		"closedAt":  formatTime(b.closedAt),
		"author":    Actor(b.author),
		"labels":    map[string]any{"nodes": labels},
		"comments":  map[string]any{"nodes": comments},
	}
}

// BuildPullRequest creates a pull request node.
func (b *IssueBuilder) BuildPullRequest() map[string]any {
	node := b.Build()
	node["id"] = fmt.Sprintf("PR_%d", b.number)
	node["mergedAt"] = formatTime(b.mergedAt)
	commits := b.commits
	if commits == nil {
		commits = []map[string]any{}
	}
	reviews := b.reviews
	if reviews == nil {
		reviews = []map[string]any{}
	}
	node["commits"] = map[string]any{"totalCount": len(commits), "nodes": commits}
	node["reviews"] = map[string]any{"nodes": reviews}
	return node
}

// RepositoryNode builds a repository record owned by an organization.
func RepositoryNode(owner, name string, updatedAt time.Time) map[string]any {
	ts := updatedAt.UTC().Format(time.RFC3339)
	return map[string]any{
		"id":              "R_" + name,
		"databaseId":      42,
		"name":            name,
		"description":     "the " + name + " repository",
		"isFork":          false,
		"createdAt":       ts,
		"updatedAt":       ts,
		"pushedAt":        ts,
		"primaryLanguage": map[string]any{"name": "Go"},
		"licenseInfo":     map[string]any{"name": "MIT License"},
		"codeOfConduct":   nil,
		"refs":            map[string]any{"totalCount": 3},
		"defaultBranchRef": map[string]any{
			"name":   "main",
			"target": map[string]any{"history": map[string]any{"totalCount": 120}},
		},
		"releases":   map[string]any{"totalCount": 4},
		"stargazers": map[string]any{"totalCount": 2},
		"watchers":   map[string]any{"totalCount": 5},
		"forkCount":  1,
		"forks":      map[string]any{"totalCount": 1},
		"owner": map[string]any{
			"login":           owner,
			"__typename":      "Organization",
			"name":            owner + " inc",
			"description":     "",
			"location":        "Berlin",
			"websiteUrl":      nil,
			"createdAt":       ts,
			"repositories":    map[string]any{"totalCount": 7},
			"membersWithRole": map[string]any{"totalCount": 3},
		},
	}
}

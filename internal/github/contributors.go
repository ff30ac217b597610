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

type contributorsQuery struct {
	RateLimited
	Repository *struct {
		Ref *struct {
			Target *struct {
				Commit struct {
					History struct {
						PageInfo pageInfo
						Nodes    []struct {
							CommittedDate time.Time
							Author        *struct {
								Email graphql.String
								User  *struct {
									Login graphql.String
									Email graphql.String
								}
							}
						}
					} `graphql:"history(first: $first, after: $cursor)"`
				} `graphql:"... on Commit"`
			}
		} `graphql:"ref(qualifiedName: $branch)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// Contributors scans the commit history of branch, newest first, and
// returns one entry per author login with the time of the earliest commit
// seen. Commits without a linked GitHub account are skipped. The scan stops
// once more than commitLimit commits were kept; a non-positive commitLimit
// uses DefaultCommitLimit.
func (f *Fetcher) Contributors(ctx context.Context, owner, name, branch string, commitLimit int) ([]Contributor, error) {
	if commitLimit <= 0 {
		commitLimit = DefaultCommitLimit
	}
	vars := repoVars(owner, name)
	vars["branch"] = graphql.String(branch)

	fetch := func(ctx context.Context, req PageRequest) (Page[Contributor], Outcome) {
		q, out := Execute[contributorsQuery](ctx, f.ex, pageVars(vars, req))
		if q == nil || q.Repository == nil || q.Repository.Ref == nil || q.Repository.Ref.Target == nil {
			return Page[Contributor]{}, out
		}
		history := q.Repository.Ref.Target.Commit.History
		commits := make([]Contributor, 0, len(history.Nodes))
		for _, n := range history.Nodes {
			c := Contributor{Time: n.CommittedDate}
			if a := n.Author; a != nil {
				c.Email = string(a.Email)
				if a.User != nil {
					c.Login = string(a.User.Login)
					if email := string(a.User.Email); email != "" {
						c.Email = email
					}
				}
			}
			commits = append(commits, c)
		}
		return toPage(commits, history.PageInfo), out
	}

	byLogin := make(map[string]int)
	var contributors []Contributor
	err := Walk(ctx, fetch, WalkOptions[Contributor]{
		PageSize: contributorsPageSize,
		Keep:     func(c Contributor) bool { return c.Login != "" },
		MaxItems: commitLimit,
	}, func(commits []Contributor) error {
		for _, c := range commits {
			i, ok := byLogin[c.Login]
			if !ok {
				byLogin[c.Login] = len(contributors)
				contributors = append(contributors, c)
				continue
			}
			if c.Time.Before(contributors[i].Time) {
				contributors[i].Time = c.Time
			}
			if contributors[i].Email == "" {
				contributors[i].Email = c.Email
			}
		}
		return nil
	})
	if err != nil {
		return nil, f.fail("contributors", owner, name, err)
	}
	return contributors, nil
}

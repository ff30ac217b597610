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

type starsQuery struct {
	RateLimited
	Repository *struct {
		Stargazers struct {
			PageInfo pageInfo
			Edges    []struct {
				StarredAt time.Time
				Node      *actorNode
			}
		} `graphql:"stargazers(first: $first, after: $cursor, orderBy: {field: STARRED_AT, direction: DESC})"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

type forksQuery struct {
	RateLimited
	Repository *struct {
		Forks struct {
			PageInfo pageInfo
			Nodes    []struct {
				CreatedAt time.Time
				Owner     *actorNode
			}
		} `graphql:"forks(first: $first, after: $cursor, orderBy: {field: CREATED_AT, direction: DESC})"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

func actorWalk(pageSize int, since time.Time) WalkOptions[Actor] {
	return WalkOptions[Actor]{
		PageSize:   pageSize,
		Watermark:  since,
		Descending: true,
		Timestamp:  func(a Actor) time.Time { return a.Time },
		Keep:       func(a Actor) bool { return a.Login != "" },
	}
}

// Stars lists who starred the repository after since, newest first.
func (f *Fetcher) Stars(ctx context.Context, owner, name string, since time.Time) ([]Actor, error) {
	fetch := func(ctx context.Context, req PageRequest) (Page[Actor], Outcome) {
		q, out := Execute[starsQuery](ctx, f.ex, pageVars(repoVars(owner, name), req))
		if q == nil || q.Repository == nil {
			return Page[Actor]{}, out
		}
		conn := q.Repository.Stargazers
		stars := make([]Actor, 0, len(conn.Edges))
		for _, e := range conn.Edges {
			stars = append(stars, Actor{Login: e.Node.login(), Time: e.StarredAt})
		}
		return toPage(stars, conn.PageInfo), out
	}

	stars, err := Collect(ctx, fetch, actorWalk(starsPageSize, since))
	if err != nil {
		return nil, f.fail("stars", owner, name, err)
	}
	return stars, nil
}

// Forks lists the forks created after since, newest first. Actor.Login is
// the owner of the fork.
func (f *Fetcher) Forks(ctx context.Context, owner, name string, since time.Time) ([]Actor, error) {
	fetch := func(ctx context.Context, req PageRequest) (Page[Actor], Outcome) {
		q, out := Execute[forksQuery](ctx, f.ex, pageVars(repoVars(owner, name), req))
		if q == nil || q.Repository == nil {
			return Page[Actor]{}, out
		}
		conn := q.Repository.Forks
		forks := make([]Actor, 0, len(conn.Nodes))
		for _, n := range conn.Nodes {
			forks = append(forks, Actor{Login: n.Owner.login(), Time: n.CreatedAt})
		}
		return toPage(forks, conn.PageInfo), out
	}

	forks, err := Collect(ctx, fetch, actorWalk(forksPageSize, since))
	if err != nil {
		return nil, f.fail("forks", owner, name, err)
	}
	return forks, nil
}


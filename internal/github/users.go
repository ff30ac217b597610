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

type userQuery struct {
	RateLimited
	User *struct {
		Login      graphql.String
		DatabaseID graphql.Int `graphql:"databaseId"`
		Name       graphql.String
		Email      graphql.String
		Bio        graphql.String
		Company    graphql.String
		Location   graphql.String
		IsEmployee graphql.Boolean
		CreatedAt  time.Time
	} `graphql:"user(login: $login)"`
}

type followerNodes struct {
	PageInfo pageInfo
	Nodes    []struct {
		Login      graphql.String
		DatabaseID graphql.Int `graphql:"databaseId"`
	}
}

func (c followerNodes) page() Page[Follower] {
	followers := make([]Follower, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		followers = append(followers, Follower{Login: string(n.Login), DatabaseID: int(n.DatabaseID)})
	}
	return toPage(followers, c.PageInfo)
}

type followersQuery struct {
	RateLimited
	User *struct {
		Followers followerNodes `graphql:"followers(first: $first, after: $cursor)"`
	} `graphql:"user(login: $login)"`
}

type followingQuery struct {
	RateLimited
	User *struct {
		Following followerNodes `graphql:"following(first: $first, after: $cursor)"`
	} `graphql:"user(login: $login)"`
}

// User fetches a profile. It returns nil, nil when the login does not exist.
func (f *Fetcher) User(ctx context.Context, login string) (*User, error) {
	q, out := Execute[userQuery](ctx, f.ex, loginVars(login))
	if out.Failed() {
		return nil, f.fail("user", login, "", out.Err)
	}
	if q == nil || q.User == nil {
		return nil, nil
	}
	u := q.User
	return &User{
		Login:      string(u.Login),
		DatabaseID: int(u.DatabaseID),
		Name:       string(u.Name),
		Email:      string(u.Email),
		Bio:        string(u.Bio),
		Company:    string(u.Company),
		Location:   string(u.Location),
		IsEmployee: bool(u.IsEmployee),
		CreatedAt:  u.CreatedAt,
	}, nil
}

// Followers lists the accounts following login.
func (f *Fetcher) Followers(ctx context.Context, login string) ([]Follower, error) {
	fetch := func(ctx context.Context, req PageRequest) (Page[Follower], Outcome) {
		q, out := Execute[followersQuery](ctx, f.ex, pageVars(loginVars(login), req))
		if q == nil || q.User == nil {
			return Page[Follower]{}, out
		}
		return q.User.Followers.page(), out
	}

	followers, err := Collect(ctx, fetch, WalkOptions[Follower]{PageSize: followersPageSize})
	if err != nil {
		return nil, f.fail("followers", login, "", err)
	}
	return followers, nil
}

// Following lists the accounts login follows.
func (f *Fetcher) Following(ctx context.Context, login string) ([]Follower, error) {
	fetch := func(ctx context.Context, req PageRequest) (Page[Follower], Outcome) {
		q, out := Execute[followingQuery](ctx, f.ex, pageVars(loginVars(login), req))
		if q == nil || q.User == nil {
			return Page[Follower]{}, out
		}
		return q.User.Following.page(), out
	}

	following, err := Collect(ctx, fetch, WalkOptions[Follower]{PageSize: followersPageSize})
	if err != nil {
		return nil, f.fail("following", login, "", err)
	}
	return following, nil
}

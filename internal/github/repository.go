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

type ownerNode struct {
	Login    graphql.String
	Typename graphql.String `graphql:"__typename"`
	User     struct {
		Name         graphql.String
		Email        graphql.String
		Bio          graphql.String
		Company      graphql.String
		Location     graphql.String
		WebsiteURL   graphql.String `graphql:"websiteUrl"`
		CreatedAt    time.Time
		Repositories countField
	} `graphql:"... on User"`
	Organization struct {
		Name            graphql.String
		Description     graphql.String
		Location        graphql.String
		WebsiteURL      graphql.String `graphql:"websiteUrl"`
		CreatedAt       time.Time
		Repositories    countField
		MembersWithRole countField
	} `graphql:"... on Organization"`
}

type repositoryNode struct {
	ID              graphql.String
	DatabaseID      graphql.Int `graphql:"databaseId"`
	Name            graphql.String
	Description     graphql.String
	IsFork          graphql.Boolean
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PushedAt        *time.Time
	PrimaryLanguage *struct {
		Name graphql.String
	}
	LicenseInfo *struct {
		Name graphql.String
	}
	CodeOfConduct *struct {
		URL graphql.String `graphql:"url"`
	}
	Refs             countField `graphql:"refs(refPrefix: \"refs/heads/\")"`
	DefaultBranchRef *struct {
		Name   graphql.String
		Target *struct {
			Commit struct {
				History countField
			} `graphql:"... on Commit"`
		}
	}
	Releases   countField
	Stargazers countField
	Watchers   countField
	ForkCount  graphql.Int
	Forks      countField
	Owner      ownerNode
}

func (o *ownerNode) toOwner() Owner {
	owner := Owner{
		Login: string(o.Login),
		Type:  string(o.Typename),
	}
	switch owner.Type {
	case "User":
		u := o.User
		owner.Name = string(u.Name)
		owner.Email = string(u.Email)
		owner.Bio = string(u.Bio)
		owner.Company = string(u.Company)
		owner.Location = string(u.Location)
		owner.WebsiteURL = string(u.WebsiteURL)
		owner.RepositoryCount = int(u.Repositories.TotalCount)
		if !u.CreatedAt.IsZero() {
			created := u.CreatedAt
			owner.CreatedAt = &created
		}
	case "Organization":
		org := o.Organization
		owner.Name = string(org.Name)
		owner.Description = string(org.Description)
		owner.Location = string(org.Location)
		owner.WebsiteURL = string(org.WebsiteURL)
		owner.RepositoryCount = int(org.Repositories.TotalCount)
		owner.MemberCount = int(org.MembersWithRole.TotalCount)
		if !org.CreatedAt.IsZero() {
			created := org.CreatedAt
			owner.CreatedAt = &created
		}
	}
	return owner
}

func (n *repositoryNode) toRepository() Repository {
	repo := Repository{
		ID:              string(n.ID),
		DatabaseID:      int(n.DatabaseID),
		Owner:           n.Owner.toOwner(),
		Name:            string(n.Name),
		Description:     string(n.Description),
		IsFork:          bool(n.IsFork),
		CreatedAt:       n.CreatedAt,
		UpdatedAt:       n.UpdatedAt,
		PushedAt:        n.PushedAt,
		BranchCount:     int(n.Refs.TotalCount),
		ReleaseCount:    int(n.Releases.TotalCount),
		StarCount:       int(n.Stargazers.TotalCount),
		WatcherCount:    int(n.Watchers.TotalCount),
		ForkCount:       int(n.ForkCount),
		DirectForkCount: int(n.Forks.TotalCount),
	}
	if n.PrimaryLanguage != nil {
		repo.Language = string(n.PrimaryLanguage.Name)
	}
	if n.LicenseInfo != nil {
		repo.License = string(n.LicenseInfo.Name)
	}
	if n.CodeOfConduct != nil {
		repo.CodeOfConduct = string(n.CodeOfConduct.URL)
	}
	if ref := n.DefaultBranchRef; ref != nil {
		repo.DefaultBranch = string(ref.Name)
		if ref.Target != nil {
			repo.DefaultBranchCommits = int(ref.Target.Commit.History.TotalCount)
		}
	}
	return repo
}

type repositoryQuery struct {
	RateLimited
	Repository *repositoryNode `graphql:"repository(owner: $owner, name: $name)"`
}

// Repository fetches the repository record. It returns nil, nil when the
// repository does not exist or is not visible to the tokens.
func (f *Fetcher) Repository(ctx context.Context, owner, name string) (*Repository, error) {
	q, out := Execute[repositoryQuery](ctx, f.ex, repoVars(owner, name))
	if out.Failed() {
		return nil, f.fail("repository", owner, name, out.Err)
	}
	if q == nil || q.Repository == nil {
		return nil, nil
	}
	repo := q.Repository.toRepository()
	return &repo, nil
}

type orgRepositoriesQuery struct {
	RateLimited
	RepositoryOwner *struct {
		Repositories struct {
			PageInfo pageInfo
			Nodes    []repositoryNode
		} `graphql:"repositories(first: $first, after: $cursor, orderBy: {field: UPDATED_AT, direction: DESC})"`
	} `graphql:"repositoryOwner(login: $login)"`
}

// OrgRepositories lists the repositories of a user or organization that
// were updated after since, most recently updated first.
func (f *Fetcher) OrgRepositories(ctx context.Context, login string, since time.Time) ([]Repository, error) {
	fetch := func(ctx context.Context, req PageRequest) (Page[Repository], Outcome) {
		q, out := Execute[orgRepositoriesQuery](ctx, f.ex, pageVars(loginVars(login), req))
		if q == nil || q.RepositoryOwner == nil {
			return Page[Repository]{}, out
		}
		conn := q.RepositoryOwner.Repositories
		repos := make([]Repository, 0, len(conn.Nodes))
		for i := range conn.Nodes {
			repos = append(repos, conn.Nodes[i].toRepository())
		}
		return toPage(repos, conn.PageInfo), out
	}

	repos, err := Collect(ctx, fetch, WalkOptions[Repository]{
		PageSize:   orgRepositoriesPageSize,
		Watermark:  since,
		Descending: true,
		Timestamp:  func(r Repository) time.Time { return r.UpdatedAt },
	})
	if err != nil {
		return nil, f.fail("org_repositories", login, "", err)
	}
	return repos, nil
}

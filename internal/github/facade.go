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

	"golang.org/x/sync/errgroup"
)

// FullRepository fetches the repository record and then the collections
// selected in opts concurrently. Stars and forks are skipped when the
// repository reports none; contributors are read from the default branch.
// The first failing collection fails the call and cancels the others.
func (f *Fetcher) FullRepository(ctx context.Context, owner, name string, opts FullOptions) (*Repository, error) {
	repo, err := f.Repository(ctx, owner, name)
	if err != nil || repo == nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	if opts.Stars && repo.StarCount > 0 {
		g.Go(func() error {
			stars, err := f.Stars(gctx, owner, name, opts.Since)
			repo.Stars = stars
			return err
		})
	}
	if opts.Forks && repo.ForkCount > 0 {
		g.Go(func() error {
			forks, err := f.Forks(gctx, owner, name, opts.Since)
			repo.Forks = forks
			return err
		})
	}
	if opts.Issues {
		g.Go(func() error {
			issues, err := f.Issues(gctx, owner, name, opts.Since)
			repo.Issues = issues
			return err
		})
	}
	if opts.PullRequests {
		g.Go(func() error {
			prs, err := f.PullRequests(gctx, owner, name, opts.Since)
			repo.PullRequests = prs
			return err
		})
	}
	if opts.Contributors && repo.DefaultBranch != "" {
		g.Go(func() error {
			contributors, err := f.Contributors(gctx, owner, name, repo.DefaultBranch, opts.CommitLimit)
			repo.Contributors = contributors
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return repo, nil
}

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

package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	caterrors "github.com/sirseerhq/datacat/internal/errors"
	"github.com/sirseerhq/datacat/internal/github"
	"github.com/sirseerhq/datacat/internal/metadata"
	"github.com/sirseerhq/datacat/internal/output"
	"github.com/spf13/cobra"
)

// Resource names used for watermarks and metadata item counts.
const (
	resRepository   = "repository"
	resRepositories = "repositories"
	resStars        = "stars"
	resForks        = "forks"
	resIssues       = "issues"
	resPulls        = "pulls"
	resContributors = "contributors"
	resUser         = "user"
	resFollowers    = "followers"
	resFollowing    = "following"
)

// collectionFunc fetches one repository collection and emits its records.
type collectionFunc func(ctx context.Context, s *session, tr *metadata.Tracker, owner, name string, since time.Time) error

var collections = map[string]collectionFunc{
	resStars: func(ctx context.Context, s *session, tr *metadata.Tracker, owner, name string, since time.Time) error {
		stars, err := s.client.Stars(ctx, owner, name, since)
		if err != nil {
			return err
		}
		return emit(s, tr, resStars, output.KindStar, owner, name, stars)
	},
	resForks: func(ctx context.Context, s *session, tr *metadata.Tracker, owner, name string, since time.Time) error {
		forks, err := s.client.Forks(ctx, owner, name, since)
		if err != nil {
			return err
		}
		return emit(s, tr, resForks, output.KindFork, owner, name, forks)
	},
	resIssues: func(ctx context.Context, s *session, tr *metadata.Tracker, owner, name string, since time.Time) error {
		issues, err := s.client.Issues(ctx, owner, name, since)
		if err != nil {
			return err
		}
		return emit(s, tr, resIssues, output.KindIssue, owner, name, issues)
	},
	resPulls: func(ctx context.Context, s *session, tr *metadata.Tracker, owner, name string, since time.Time) error {
		pulls, err := s.client.PullRequests(ctx, owner, name, since)
		if err != nil {
			return err
		}
		return emit(s, tr, resPulls, output.KindPullRequest, owner, name, pulls)
	},
}

func emit[T any](s *session, tr *metadata.Tracker, resource, kind, owner, name string, items []T) error {
	n, err := output.EmitAll(s.out, kind, owner, name, items)
	tr.AddItems(resource, n)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", resource, err)
	}
	return nil
}

func newFetchCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch GitHub data as NDJSON",
		Long: `Fetch repository and account data from GitHub and write it as NDJSON.

Every output line is a record {"kind", "owner", "name", "data"}.
Repositories are given as <owner>/<name>, for example golang/go.

Authentication uses a pool of GitHub tokens:
  - Use --token (repeatable) to provide tokens directly
  - Or set GITHUB_TOKENS (comma separated) or GITHUB_TOKEN`,
	}

	cmd.AddCommand(newFetchRepoCommand(g))
	for _, resource := range []string{resStars, resForks, resIssues, resPulls} {
		cmd.AddCommand(newFetchCollectionCommand(g, resource))
	}
	cmd.AddCommand(newFetchContributorsCommand(g))
	cmd.AddCommand(newFetchOrgReposCommand(g))
	for _, resource := range []string{resUser, resFollowers, resFollowing} {
		cmd.AddCommand(newFetchAccountCommand(g, resource))
	}

	return cmd
}

// selection lists the collections fetched next to a repository record.
type selection struct {
	stars, forks, issues, pulls, contributors, all bool
}

func (s selection) options() github.FullOptions {
	return github.FullOptions{
		Stars:        s.all || s.stars,
		Forks:        s.all || s.forks,
		Issues:       s.all || s.issues,
		PullRequests: s.all || s.pulls,
		Contributors: s.all || s.contributors,
	}
}

// watermarked returns the selected resources that support --since.
func watermarked(opts github.FullOptions) []string {
	var out []string
	if opts.Stars {
		out = append(out, resStars)
	}
	if opts.Forks {
		out = append(out, resForks)
	}
	if opts.Issues {
		out = append(out, resIssues)
	}
	if opts.PullRequests {
		out = append(out, resPulls)
	}
	return out
}

func newFetchRepoCommand(g *globalOptions) *cobra.Command {
	var (
		sel         selection
		f           windowFlags
		commitLimit int
	)

	cmd := &cobra.Command{
		Use:   "repo <owner>/<name>",
		Short: "Fetch a repository record and any of its collections",
		Long: `Fetch a repository record and, with the collection flags, its stars, forks,
issues, pull requests and contributors. Collections are fetched concurrently.

Stars and forks are skipped when the repository reports none. Contributors are
collected from the default branch history.`,
		Args: repositoryArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := setup(cmd.Context(), g, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()
			return runRepo(cmd.Context(), s, args[0], sel, f, commitLimit)
		},
	}

	cmd.Flags().BoolVar(&sel.stars, "stars", false, "Fetch stargazers")
	cmd.Flags().BoolVar(&sel.forks, "forks", false, "Fetch forks")
	cmd.Flags().BoolVar(&sel.issues, "issues", false, "Fetch issues")
	cmd.Flags().BoolVar(&sel.pulls, "pulls", false, "Fetch pull requests")
	cmd.Flags().BoolVar(&sel.contributors, "contributors", false, "Fetch contributors of the default branch")
	cmd.Flags().BoolVar(&sel.all, "all", false, "Fetch every collection")
	cmd.Flags().IntVar(&commitLimit, "commit-limit", github.DefaultCommitLimit, "Maximum commits scanned for contributors")
	f.register(cmd)

	return cmd
}

func runRepo(ctx context.Context, s *session, repoArg string, sel selection, f windowFlags, commitLimit int) error {
	owner, name, err := parseRepository(repoArg)
	if err != nil {
		return err
	}
	target := owner + "/" + name

	opts := sel.options()
	opts.CommitLimit = commitLimit
	resources := watermarked(opts)

	w, err := openWindow(s, target, f, resources)
	if err != nil {
		return err
	}
	opts.Since = w.since

	tr := metadata.New("fetch repo", target)
	repo, err := s.client.FullRepository(ctx, owner, name, opts)
	if err != nil {
		return err
	}
	if repo == nil {
		return fmt.Errorf("%w: %s", caterrors.ErrRepoNotFound, target)
	}

	record := *repo
	record.Stars, record.Forks, record.Issues, record.PullRequests, record.Contributors = nil, nil, nil, nil, nil
	if err := s.out.Emit(output.KindRepository, owner, name, record); err != nil {
		return fmt.Errorf("failed to write repository: %w", err)
	}
	tr.AddItems(resRepository, 1)

	steps := []struct {
		selected bool
		run      func() error
	}{
		{opts.Stars, func() error { return emit(s, tr, resStars, output.KindStar, owner, name, repo.Stars) }},
		{opts.Forks, func() error { return emit(s, tr, resForks, output.KindFork, owner, name, repo.Forks) }},
		{opts.Issues, func() error { return emit(s, tr, resIssues, output.KindIssue, owner, name, repo.Issues) }},
		{opts.PullRequests, func() error {
			return emit(s, tr, resPulls, output.KindPullRequest, owner, name, repo.PullRequests)
		}},
		{opts.Contributors, func() error {
			return emit(s, tr, resContributors, output.KindContributor, owner, name, repo.Contributors)
		}},
	}
	for _, step := range steps {
		if !step.selected {
			continue
		}
		if err := step.run(); err != nil {
			return err
		}
	}

	if err := w.advance(s, tr, resources...); err != nil {
		return err
	}
	s.finish(tr, w, append([]string{resRepository}, selectedNames(opts)...), commitLimit)
	return nil
}

func selectedNames(opts github.FullOptions) []string {
	names := watermarked(opts)
	if opts.Contributors {
		names = append(names, resContributors)
	}
	return names
}

func newFetchCollectionCommand(g *globalOptions, resource string) *cobra.Command {
	var f windowFlags

	cmd := &cobra.Command{
		Use:   resource + " <owner>/<name>",
		Short: "Fetch the " + resource + " of a repository",
		Args:  repositoryArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := setup(cmd.Context(), g, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()
			return runCollection(cmd.Context(), s, resource, args[0], f)
		},
	}
	f.register(cmd)

	return cmd
}

func runCollection(ctx context.Context, s *session, resource, repoArg string, f windowFlags) error {
	fetch, ok := collections[resource]
	if !ok {
		return fmt.Errorf("unknown collection %q", resource)
	}
	owner, name, err := parseRepository(repoArg)
	if err != nil {
		return err
	}
	target := owner + "/" + name

	w, err := openWindow(s, target, f, []string{resource})
	if err != nil {
		return err
	}

	tr := metadata.New("fetch "+resource, target)
	if err := fetch(ctx, s, tr, owner, name, w.since); err != nil {
		return err
	}

	if err := w.advance(s, tr, resource); err != nil {
		return err
	}
	s.finish(tr, w, []string{resource}, 0)
	return nil
}

func newFetchContributorsCommand(g *globalOptions) *cobra.Command {
	var (
		branch      string
		commitLimit int
	)

	cmd := &cobra.Command{
		Use:   "contributors <owner>/<name>",
		Short: "Fetch the commit authors of a branch",
		Long: `Fetch the authors of the most recent commits on a branch, one record per
login with the time of their earliest scanned commit. Commits without a linked
GitHub account are skipped.`,
		Args: repositoryArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := setup(cmd.Context(), g, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()
			return runContributors(cmd.Context(), s, args[0], branch, commitLimit)
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "", "Branch to scan (default: the repository's default branch)")
	cmd.Flags().IntVar(&commitLimit, "commit-limit", github.DefaultCommitLimit, "Maximum commits scanned")

	return cmd
}

func runContributors(ctx context.Context, s *session, repoArg, branch string, commitLimit int) error {
	owner, name, err := parseRepository(repoArg)
	if err != nil {
		return err
	}
	target := owner + "/" + name
	tr := metadata.New("fetch contributors", target)

	if branch == "" {
		repo, err := s.client.Repository(ctx, owner, name)
		if err != nil {
			return err
		}
		if repo == nil {
			return fmt.Errorf("%w: %s", caterrors.ErrRepoNotFound, target)
		}
		if repo.DefaultBranch == "" {
			return fmt.Errorf("%s has no default branch; use --branch", target)
		}
		branch = repo.DefaultBranch
	}

	contributors, err := s.client.Contributors(ctx, owner, name, branch, commitLimit)
	if err != nil {
		return err
	}
	if err := emit(s, tr, resContributors, output.KindContributor, owner, name, contributors); err != nil {
		return err
	}

	s.finish(tr, &window{target: target}, []string{resContributors}, commitLimit)
	return nil
}

func newFetchOrgReposCommand(g *globalOptions) *cobra.Command {
	var f windowFlags

	cmd := &cobra.Command{
		Use:   "org-repos <login>",
		Short: "Fetch the repositories of an organization or user",
		Args:  loginArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := setup(cmd.Context(), g, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()
			return runOrgRepos(cmd.Context(), s, args[0], f)
		},
	}
	f.register(cmd)

	return cmd
}

func runOrgRepos(ctx context.Context, s *session, login string, f windowFlags) error {
	w, err := openWindow(s, login, f, []string{resRepositories})
	if err != nil {
		return err
	}

	tr := metadata.New("fetch org-repos", login)
	repos, err := s.client.OrgRepositories(ctx, login, w.since)
	if err != nil {
		return err
	}
	for _, repo := range repos {
		if err := s.out.Emit(output.KindRepository, login, repo.Name, repo); err != nil {
			return fmt.Errorf("failed to write repository: %w", err)
		}
		tr.AddItems(resRepositories, 1)
	}
	if len(repos) == 0 {
		tr.AddItems(resRepositories, 0)
	}

	if err := w.advance(s, tr, resRepositories); err != nil {
		return err
	}
	s.finish(tr, w, []string{resRepositories}, 0)
	return nil
}

func newFetchAccountCommand(g *globalOptions, resource string) *cobra.Command {
	short := map[string]string{
		resUser:      "Fetch a user profile",
		resFollowers: "Fetch the followers of a user",
		resFollowing: "Fetch the accounts a user follows",
	}[resource]

	return &cobra.Command{
		Use:   resource + " <login>",
		Short: short,
		Args:  loginArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := setup(cmd.Context(), g, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.Close()
			return runAccount(cmd.Context(), s, resource, args[0])
		},
	}
}

func runAccount(ctx context.Context, s *session, resource, login string) error {
	tr := metadata.New("fetch "+resource, login)

	switch resource {
	case resUser:
		user, err := s.client.User(ctx, login)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("%w: %s", caterrors.ErrUserNotFound, login)
		}
		if err := s.out.Emit(output.KindUser, login, "", user); err != nil {
			return fmt.Errorf("failed to write user: %w", err)
		}
		tr.AddItems(resUser, 1)
	case resFollowers:
		followers, err := s.client.Followers(ctx, login)
		if err != nil {
			return err
		}
		if err := emit(s, tr, resFollowers, output.KindFollower, login, "", followers); err != nil {
			return err
		}
	case resFollowing:
		following, err := s.client.Following(ctx, login)
		if err != nil {
			return err
		}
		if err := emit(s, tr, resFollowing, output.KindFollowing, login, "", following); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown account resource %q", resource)
	}

	s.finish(tr, &window{target: login}, []string{resource}, 0)
	return nil
}

// finish writes the run metadata and a one-line summary. A metadata failure
// is logged and does not fail a run whose records were already written.
func (s *session) finish(tr *metadata.Tracker, w *window, resources []string, commitLimit int) {
	params := metadata.RunParams{
		Resources:   resources,
		Incremental: w.incremental,
		CommitLimit: commitLimit,
	}
	if !w.since.IsZero() {
		since := w.since
		params.Since = &since
	}

	stats := s.executorStats()
	md := tr.GenerateMetadata(version, params, metadata.ExecutorStats{
		Operations: stats.Operations,
		Attempts:   stats.Attempts,
		Retries:    stats.Retries,
		Outcomes:   stats.Outcomes,
	}, w.previous)

	if err := metadata.SaveMetadata(md, s.stateDir); err != nil {
		s.logger.Warn().Err(err).Str("run_id", md.RunID).Msg("failed to save run metadata")
	}

	s.logger.Info().
		Str("run_id", md.RunID).
		Str("target", md.Target).
		Int64("attempts", stats.Attempts).
		Int64("retries", stats.Retries).
		Str("duration", md.Duration).
		Msg("run completed")

	if s.stderr != nil {
		fmt.Fprintf(s.stderr, "Fetched %s for %s\n", summary(md.Items), md.Target)
	}
}

// summary renders item counts as "issues=5 stars=20" in a stable order.
func summary(items map[string]int) string {
	parts := make([]string, 0, len(items))
	for _, k := range slices.Sorted(maps.Keys(items)) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, items[k]))
	}
	if len(parts) == 0 {
		return "nothing"
	}
	return strings.Join(parts, " ")
}

// parseRepository parses an owner/name string into its components
func parseRepository(repoArg string) (owner, name string, err error) {
	parts := strings.Split(repoArg, "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid repository format. Expected: <owner>/<name>, got: %s", repoArg)
	}

	owner = strings.TrimSpace(parts[0])
	name = strings.TrimSpace(parts[1])

	if owner == "" || name == "" {
		return "", "", fmt.Errorf("invalid repository format. Expected: <owner>/<name>, got: %s", repoArg)
	}

	return owner, name, nil
}

func repositoryArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	_, _, err := parseRepository(args[0])
	return err
}

func loginArg(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return err
	}
	if login := strings.TrimSpace(args[0]); login == "" || strings.Contains(login, "/") {
		return fmt.Errorf("invalid login: %q", args[0])
	}
	return nil
}

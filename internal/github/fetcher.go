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
	"errors"

	"github.com/rs/zerolog"
	"github.com/shurcooL/graphql"

	caterrors "github.com/sirseerhq/datacat/internal/errors"
)

// Fetcher implements Client on top of an Executor.
type Fetcher struct {
	ex     *Executor
	logger zerolog.Logger
}

var _ Client = (*Fetcher)(nil)

// NewFetcher creates a Fetcher.
func NewFetcher(ex *Executor, logger zerolog.Logger) *Fetcher {
	return &Fetcher{ex: ex, logger: logger}
}

// Init probes every token of the pool. It must succeed before any fetch.
func (f *Fetcher) Init(ctx context.Context) error {
	return f.ex.Pool().Init(ctx)
}

// Stats returns the executor counters.
func (f *Fetcher) Stats() Stats {
	return f.ex.Stats()
}

// pageInfo is the pageInfo selection of a connection.
type pageInfo struct {
	HasNextPage graphql.Boolean
	EndCursor   graphql.String
}

type countField struct {
	TotalCount graphql.Int
}

type actorNode struct {
	Login graphql.String
}

func (a *actorNode) login() string {
	if a == nil {
		return ""
	}
	return string(a.Login)
}

func repoVars(owner, name string) map[string]any {
	return map[string]any{
		"owner": graphql.String(owner),
		"name":  graphql.String(name),
	}
}

func loginVars(login string) map[string]any {
	return map[string]any{
		"login": graphql.String(login),
	}
}

// pageVars adds the connection arguments of req to vars.
func pageVars(vars map[string]any, req PageRequest) map[string]any {
	out := make(map[string]any, len(vars)+2)
	for k, v := range vars {
		out[k] = v
	}
	out["first"] = graphql.Int(req.Size)
	out["cursor"] = (*graphql.String)(req.Cursor)
	return out
}

func toPage[T any](items []T, info pageInfo) Page[T] {
	return Page[T]{
		Items:   items,
		HasMore: bool(info.HasNextPage),
		Cursor:  string(info.EndCursor),
	}
}

// fail wraps a failed fetch with the resource it was for.
func (f *Fetcher) fail(resource, owner, name string, err error) error {
	fe := &caterrors.FetchError{
		Resource: resource,
		Owner:    owner,
		Name:     name,
		Kind:     kindOf(err).String(),
		Err:      err,
	}
	f.logger.Error().Err(err).Str("resource", resource).Str("owner", owner).Str("name", name).Msg("fetch failed")
	return fe
}

// kindOf recovers the outcome kind from an error produced by Execute or Walk.
func kindOf(err error) Kind {
	switch {
	case errors.Is(err, caterrors.ErrCancelled):
		return KindCancelled
	case errors.Is(err, caterrors.ErrRateLimitExhausted):
		return KindRateLimitExhausted
	case errors.Is(err, caterrors.ErrRetriesExhausted):
		return KindRetriesExhausted
	case errors.Is(err, caterrors.ErrProtocolViolation):
		return KindProtocolViolation
	case errors.Is(err, caterrors.ErrNotInitialized):
		return KindNotInitialized
	default:
		return KindRetriesExhausted
	}
}

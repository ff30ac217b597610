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
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shurcooL/graphql"

	caterrors "github.com/sirseerhq/datacat/internal/errors"
	"github.com/sirseerhq/datacat/internal/tokenpool"
	"github.com/sirseerhq/datacat/test/testutil"
)

type testStack struct {
	server   *testutil.GraphQLServer
	pool     *tokenpool.Pool
	executor *Executor
	fetcher  *Fetcher
}

type stackOptions struct {
	tokens     []string
	maxRetries int
	backoff    time.Duration
	skipInit   bool
}

// newTestStack wires a fetcher against a fake GraphQL server.
func newTestStack(t *testing.T, handler testutil.Handler, opts stackOptions) *testStack {
	t.Helper()

	if len(opts.tokens) == 0 {
		opts.tokens = []string{"token-a"}
	}
	if opts.backoff == 0 {
		opts.backoff = time.Millisecond
	}

	server := testutil.NewGraphQLServer(t, handler)
	client := NewGraphQLClient(server.Endpoint(), ClientOptions{Timeout: 5 * time.Second})

	pool, err := tokenpool.New(opts.tokens, tokenpool.Options{
		CostPrediction: 15,
		MaxConcurrency: 10,
		Prober:         client,
		Logger:         zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("tokenpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	if !opts.skipInit {
		if err := pool.Init(context.Background()); err != nil {
			t.Fatalf("pool.Init: %v", err)
		}
	}

	dispatcher := tokenpool.NewDispatcher(pool, tokenpool.DispatcherOptions{
		MaxConcurrency: 10,
		PollInterval:   20 * time.Millisecond,
		Logger:         zerolog.Nop(),
	})
	executor := NewExecutor(client, pool, dispatcher, ExecutorOptions{
		Retry: RetryConfig{
			MaxRetries:        opts.maxRetries,
			InitialBackoff:    opts.backoff,
			MaxBackoff:        opts.backoff,
			BackoffMultiplier: 2,
		},
		ToleratedStatusCodes: []int{400, 401, 403, 404},
		Logger:               zerolog.Nop(),
	})

	return &testStack{
		server:   server,
		pool:     pool,
		executor: executor,
		fetcher:  NewFetcher(executor, zerolog.Nop()),
	}
}

func viewerReply(login string) testutil.Reply {
	return testutil.Reply{Body: testutil.DataBody(map[string]any{
		"viewer": map[string]any{"login": login},
	})}
}

func runViewer(ctx context.Context, s *testStack) (*viewerQuery, Outcome) {
	return Execute[viewerQuery](ctx, s.executor, map[string]any{"login": graphql.String("x")})
}

func TestExecute_Success(t *testing.T) {
	s := newTestStack(t, func(req testutil.GraphQLRequest) testutil.Reply {
		return viewerReply("octocat")
	}, stackOptions{})

	q, out := runViewer(context.Background(), s)
	if out.Kind != KindSuccess {
		t.Fatalf("kind = %v, err = %v", out.Kind, out.Err)
	}
	if q == nil || q.Viewer.Login != "octocat" {
		t.Fatalf("unexpected result: %+v", q)
	}
	if out.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", out.Attempts)
	}

	// The telemetry of the response is now the credential's state.
	st := s.pool.Statuses()[0].State
	if st.Remaining != testutil.DefaultQuota-1 {
		t.Errorf("remaining = %d, want %d", st.Remaining, testutil.DefaultQuota-1)
	}
	if !st.ResetAt.Equal(s.server.ResetAt()) {
		t.Errorf("resetAt = %v, want %v", st.ResetAt, s.server.ResetAt())
	}

	stats := s.executor.Stats()
	if stats.Operations != 1 || stats.Attempts != 1 || stats.Retries != 0 || stats.Outcomes["success"] != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestExecute_ProtocolViolation(t *testing.T) {
	s := newTestStack(t, func(req testutil.GraphQLRequest) testutil.Reply {
		return testutil.Reply{Body: testutil.DataBody(map[string]any{
			"rateLimit": nil,
			"viewer":    map[string]any{"login": "octocat"},
		})}
	}, stackOptions{maxRetries: 3})

	q, out := runViewer(context.Background(), s)
	if out.Kind != KindProtocolViolation {
		t.Fatalf("kind = %v, want protocol_violation", out.Kind)
	}
	if q != nil {
		t.Error("expected no result")
	}
	if !errors.Is(out.Err, caterrors.ErrProtocolViolation) {
		t.Errorf("err = %v", out.Err)
	}
	if n := s.server.RequestCount(); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestExecute_Classification(t *testing.T) {
	tests := []struct {
		name         string
		reply        testutil.Reply
		wantKind     Kind
		wantRequests int
		wantData     bool
	}{
		{
			name:         "not found is not retried",
			reply:        testutil.Reply{Body: testutil.NotFoundBody("viewer", "ghost")},
			wantKind:     KindNotFound,
			wantRequests: 1,
		},
		{
			name: "tolerated status with data is partial",
			reply: testutil.Reply{
				Status: http.StatusForbidden,
				Body: testutil.ErrorBody(map[string]any{"viewer": map[string]any{"login": "octocat"}},
					testutil.GraphQLError{Type: "FORBIDDEN", Message: "Resource not accessible by integration"}),
			},
			wantKind:     KindPartial,
			wantRequests: 1,
			wantData:     true,
		},
		{
			name: "tolerated status without data ends quietly",
			reply: testutil.Reply{
				Status: http.StatusUnauthorized,
				Body:   map[string]any{"message": "Bad credentials"},
			},
			wantKind:     KindNotFound,
			wantRequests: 1,
		},
		{
			name: "server errors are retried until the budget is spent",
			reply: testutil.Reply{
				Status: http.StatusBadGateway,
				Body:   map[string]any{"message": "Server Error"},
			},
			wantKind:     KindRetriesExhausted,
			wantRequests: 3,
		},
		{
			name: "graphql errors on 200 are retried",
			reply: testutil.Reply{
				Body: testutil.ErrorBody(nil, testutil.GraphQLError{Message: "Something went wrong while executing your query."}),
			},
			wantKind:     KindRetriesExhausted,
			wantRequests: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStack(t, func(req testutil.GraphQLRequest) testutil.Reply {
				return tt.reply
			}, stackOptions{maxRetries: 2})

			q, out := runViewer(context.Background(), s)
			if out.Kind != tt.wantKind {
				t.Fatalf("kind = %v, want %v (err %v)", out.Kind, tt.wantKind, out.Err)
			}
			if n := s.server.RequestCount(); n != tt.wantRequests {
				t.Errorf("requests = %d, want %d", n, tt.wantRequests)
			}
			if tt.wantData != (q != nil) {
				t.Errorf("data returned = %v, want %v", q != nil, tt.wantData)
			}
			if tt.wantKind == KindRetriesExhausted {
				if !errors.Is(out.Err, caterrors.ErrRetriesExhausted) {
					t.Errorf("err = %v, want ErrRetriesExhausted", out.Err)
				}
				if errors.Is(out.Err, caterrors.ErrRateLimitExhausted) {
					t.Errorf("err = %v must not report a quota problem", out.Err)
				}
			}
		})
	}
}

func TestExecute_QuotaMessageOnForbidden(t *testing.T) {
	messages := []string{
		"You have exceeded a secondary rate limit. Please wait a few minutes before you try again.",
		"API rate limit exceeded for user ID 1.",
	}

	for _, msg := range messages {
		t.Run(msg, func(t *testing.T) {
			var calls atomic.Int32
			s := newTestStack(t, func(req testutil.GraphQLRequest) testutil.Reply {
				if calls.Add(1) == 1 {
					return testutil.Reply{
						Status: http.StatusForbidden,
						Body:   map[string]any{"message": msg},
					}
				}
				return viewerReply("octocat")
			}, stackOptions{tokens: []string{"token-a", "token-b"}, maxRetries: 3})

			q, out := runViewer(context.Background(), s)
			if out.Kind != KindSuccess {
				t.Fatalf("kind = %v, want success (err %v)", out.Kind, out.Err)
			}
			if out.Attempts != 2 {
				t.Errorf("attempts = %d, want 2", out.Attempts)
			}
			if q == nil || q.Viewer.Login != "octocat" {
				t.Errorf("unexpected data: %+v", q)
			}

			reqs := s.server.Requests()
			if len(reqs) != 2 {
				t.Fatalf("requests = %d, want 2", len(reqs))
			}
			first := tokenpool.Fingerprint(reqs[0].Token)
			for _, st := range s.pool.Statuses() {
				if st.Fingerprint == first && (st.State.Remaining != 0 || st.Eligible) {
					t.Errorf("credential %s: %+v, want exhausted", st.Fingerprint, st)
				}
			}
		})
	}
}

func TestExecute_RecoversFromTransientErrors(t *testing.T) {
	var calls atomic.Int32
	s := newTestStack(t, func(req testutil.GraphQLRequest) testutil.Reply {
		if calls.Add(1) <= 2 {
			return testutil.Reply{Status: http.StatusBadGateway, Body: map[string]any{"message": "Server Error"}}
		}
		return viewerReply("octocat")
	}, stackOptions{maxRetries: 10})

	q, out := runViewer(context.Background(), s)
	if out.Kind != KindSuccess || q == nil {
		t.Fatalf("kind = %v, err = %v", out.Kind, out.Err)
	}
	if out.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", out.Attempts)
	}
	if got := s.executor.Stats().Retries; got != 2 {
		t.Errorf("retries = %d, want 2", got)
	}
}

func TestExecute_RateLimitExhausted(t *testing.T) {
	s := newTestStack(t, func(req testutil.GraphQLRequest) testutil.Reply {
		return viewerReply("octocat")
	}, stackOptions{tokens: []string{"token-a", "token-b"}, maxRetries: 1})

	// Both tokens run dry behind the pool's back.
	s.server.SetQuota("token-a", 0)
	s.server.SetQuota("token-b", 0)

	_, out := runViewer(context.Background(), s)
	if out.Kind != KindRateLimitExhausted {
		t.Fatalf("kind = %v, err = %v", out.Kind, out.Err)
	}
	if !errors.Is(out.Err, caterrors.ErrRateLimitExhausted) || !errors.Is(out.Err, caterrors.ErrRetriesExhausted) {
		t.Errorf("err = %v, want both rate limit and retries sentinels", out.Err)
	}

	// The first attempt marks its token exhausted, so the retry uses the other.
	reqs := s.server.Requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}
	if reqs[0].Token == reqs[1].Token {
		t.Errorf("both attempts used %s", reqs[0].Token)
	}
	for _, st := range s.pool.Statuses() {
		if st.State.Remaining != 0 || st.Eligible {
			t.Errorf("credential %s: %+v, want exhausted", st.Fingerprint, st)
		}
	}
}

func TestExecute_RotatesAwayFromExhaustedToken(t *testing.T) {
	s := newTestStack(t, func(req testutil.GraphQLRequest) testutil.Reply {
		return viewerReply("octocat")
	}, stackOptions{tokens: []string{"token-a", "token-b"}, maxRetries: 3})

	s.server.SetQuota("token-a", 0)

	for i := 0; i < 10; i++ {
		if _, out := runViewer(context.Background(), s); out.Kind != KindSuccess {
			t.Fatalf("operation %d: kind = %v, err = %v", i, out.Kind, out.Err)
		}
	}

	usedA := 0
	for _, req := range s.server.Requests() {
		if req.Token == "token-a" {
			usedA++
		}
	}
	if usedA > 1 {
		t.Errorf("exhausted token used %d times, want at most once", usedA)
	}
	if got := s.executor.Stats().Outcomes["success"]; got != 10 {
		t.Errorf("successes = %d, want 10", got)
	}
}

func TestExecute_Cancelled(t *testing.T) {
	t.Run("before the first attempt", func(t *testing.T) {
		s := newTestStack(t, func(req testutil.GraphQLRequest) testutil.Reply {
			return viewerReply("octocat")
		}, stackOptions{})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, out := runViewer(ctx, s)
		if out.Kind != KindCancelled {
			t.Fatalf("kind = %v, want cancelled", out.Kind)
		}
		if !errors.Is(out.Err, caterrors.ErrCancelled) {
			t.Errorf("err = %v", out.Err)
		}
		if n := s.server.RequestCount(); n != 0 {
			t.Errorf("requests = %d, want 0", n)
		}
	})

	t.Run("during backoff", func(t *testing.T) {
		s := newTestStack(t, func(req testutil.GraphQLRequest) testutil.Reply {
			return testutil.Reply{Status: http.StatusBadGateway, Body: map[string]any{"message": "Server Error"}}
		}, stackOptions{maxRetries: 5, backoff: time.Hour})

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, out := runViewer(ctx, s)
		if out.Kind != KindCancelled {
			t.Fatalf("kind = %v, want cancelled", out.Kind)
		}
		if time.Since(start) > 5*time.Second {
			t.Error("cancellation did not interrupt the backoff")
		}
		if n := s.server.RequestCount(); n != 1 {
			t.Errorf("requests = %d, want 1", n)
		}
	})
}

func TestExecute_RequiresInit(t *testing.T) {
	s := newTestStack(t, func(req testutil.GraphQLRequest) testutil.Reply {
		return viewerReply("octocat")
	}, stackOptions{skipInit: true})

	_, out := runViewer(context.Background(), s)
	if out.Kind != KindNotInitialized {
		t.Fatalf("kind = %v, want not_initialized", out.Kind)
	}
	if !errors.Is(out.Err, caterrors.ErrNotInitialized) {
		t.Errorf("err = %v", out.Err)
	}
	if n := s.server.RequestCount(); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestExecute_SlotsReleased(t *testing.T) {
	var calls atomic.Int32
	s := newTestStack(t, func(req testutil.GraphQLRequest) testutil.Reply {
		if calls.Add(1)%2 == 0 {
			return testutil.Reply{Status: http.StatusBadGateway, Body: map[string]any{"message": "Server Error"}}
		}
		return viewerReply("octocat")
	}, stackOptions{maxRetries: 3})

	for i := 0; i < 20; i++ {
		runViewer(context.Background(), s)
	}
	if n := s.executor.dispatcher.InFlight(); n != 0 {
		t.Errorf("in flight = %d after all operations returned", n)
	}
}

func TestRetryConfigBackoff(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 100 * time.Millisecond},
		{attempt: 1, want: 200 * time.Millisecond},
		{attempt: 3, want: 800 * time.Millisecond},
		{attempt: 10, want: time.Second},
	}
	for _, tt := range tests {
		got := cfg.backoff(tt.attempt)
		lo := time.Duration(float64(tt.want) * 0.9)
		hi := time.Duration(float64(tt.want) * 1.1)
		if got < lo || got > hi {
			t.Errorf("backoff(%d) = %v, want %v ±10%%", tt.attempt, got, tt.want)
		}
	}
}

func TestKindString(t *testing.T) {
	if KindRateLimitExhausted.String() != "rate_limit_exhausted" {
		t.Errorf("got %q", KindRateLimitExhausted.String())
	}
	if Kind(99).String() != "kind(99)" {
		t.Errorf("got %q", Kind(99).String())
	}
}

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
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shurcooL/graphql"

	caterrors "github.com/sirseerhq/datacat/internal/errors"
	"github.com/sirseerhq/datacat/internal/giterror"
	"github.com/sirseerhq/datacat/internal/tokenpool"
)

// RateLimit is the quota telemetry selected by every query.
type RateLimit struct {
	Remaining graphql.Int
	ResetAt   time.Time
	Cost      graphql.Int
}

// RateLimited is embedded in every query struct so the response carries
// rateLimit { remaining resetAt cost } next to the requested data.
type RateLimited struct {
	RateLimit *RateLimit
}

// Telemetry returns the decoded rateLimit selection, nil when absent.
func (r *RateLimited) Telemetry() *RateLimit {
	return r.RateLimit
}

// Kind classifies how an operation ended.
type Kind int

const (
	KindSuccess Kind = iota
	KindNotFound
	KindPartial
	KindProtocolViolation
	KindRateLimitExhausted
	KindRetriesExhausted
	KindCancelled
	KindNotInitialized
)

var kindNames = [...]string{
	KindSuccess:            "success",
	KindNotFound:           "not_found",
	KindPartial:            "partial",
	KindProtocolViolation:  "protocol_violation",
	KindRateLimitExhausted: "rate_limit_exhausted",
	KindRetriesExhausted:   "retries_exhausted",
	KindCancelled:          "cancelled",
	KindNotInitialized:     "not_initialized",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Outcome is the result of one logical operation.
type Outcome struct {
	Kind     Kind
	Err      error
	Attempts int
}

// OK reports whether the operation produced data the caller can use.
func (o Outcome) OK() bool {
	return o.Kind == KindSuccess || o.Kind == KindPartial
}

// Failed reports whether the operation ended in a failure the caller must handle.
// NotFound is not a failure.
func (o Outcome) Failed() bool {
	return !o.OK() && o.Kind != KindNotFound
}

// Querier runs one GraphQL operation with the given secret.
type Querier interface {
	Query(ctx context.Context, secret string, q any, vars map[string]any) error
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Retry RetryConfig
	// ToleratedStatusCodes are HTTP statuses that end an operation without
	// retry: with whatever data came back (Partial) or as NotFound.
	ToleratedStatusCodes []int
	Inspector            giterror.Inspector
	Logger               zerolog.Logger
}

// Stats counts executor activity over its lifetime.
type Stats struct {
	Operations int64            `json:"operations"`
	Attempts   int64            `json:"attempts"`
	Retries    int64            `json:"retries"`
	Outcomes   map[string]int64 `json:"outcomes"`
}

// Executor runs GraphQL operations through the dispatcher, retrying and
// classifying failures, and feeds the reported quota back to the pool.
type Executor struct {
	client     Querier
	pool       *tokenpool.Pool
	dispatcher *tokenpool.Dispatcher
	retry      RetryConfig
	tolerated  map[int]struct{}
	inspector  giterror.Inspector
	logger     zerolog.Logger

	operations atomic.Int64
	attempts   atomic.Int64
	retries    atomic.Int64
	outcomes   [len(kindNames)]atomic.Int64
}

// NewExecutor creates an Executor.
func NewExecutor(client Querier, pool *tokenpool.Pool, dispatcher *tokenpool.Dispatcher, opts ExecutorOptions) *Executor {
	if opts.Inspector == nil {
		opts.Inspector = giterror.NewErrorChainInspector(giterror.NewInspector())
	}
	tolerated := make(map[int]struct{}, len(opts.ToleratedStatusCodes))
	for _, code := range opts.ToleratedStatusCodes {
		tolerated[code] = struct{}{}
	}
	return &Executor{
		client:     client,
		pool:       pool,
		dispatcher: dispatcher,
		retry:      opts.Retry.withDefaults(),
		tolerated:  tolerated,
		inspector:  opts.Inspector,
		logger:     opts.Logger,
	}
}

// Pool returns the credential pool the executor draws from.
func (ex *Executor) Pool() *tokenpool.Pool {
	return ex.pool
}

// Stats returns a snapshot of the executor counters.
func (ex *Executor) Stats() Stats {
	s := Stats{
		Operations: ex.operations.Load(),
		Attempts:   ex.attempts.Load(),
		Retries:    ex.retries.Load(),
		Outcomes:   make(map[string]int64),
	}
	for k := range ex.outcomes {
		if n := ex.outcomes[k].Load(); n > 0 {
			s.Outcomes[Kind(k).String()] = n
		}
	}
	return s
}

const (
	retryRateLimit = "rate_limit"
	retryError     = "error"
)

// attemptResult is the verdict on a single attempt. retry is empty when the
// operation is finished.
type attemptResult struct {
	kind  Kind
	err   error
	retry string
}

// Execute runs the query Q with vars until it succeeds, fails terminally or
// the retry budget is spent. The returned *Q is non-nil exactly when the
// outcome is Success or Partial.
func Execute[Q any, PQ interface {
	*Q
	Telemetry() *RateLimit
}](ctx context.Context, ex *Executor, vars map[string]any) (*Q, Outcome) {
	ex.operations.Add(1)

	if !ex.pool.Initialized() {
		return nil, ex.finish(Outcome{Kind: KindNotInitialized, Err: caterrors.ErrNotInitialized})
	}

	maxAttempts := 1 + ex.retry.MaxRetries
	var (
		lastErr   error
		lastQuota bool
		backoffs  int
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		q := PQ(new(Q))
		res := ex.attempt(ctx, q, func() *RateLimit { return q.Telemetry() }, vars)
		if res.retry == "" {
			out := Outcome{Kind: res.kind, Err: res.err, Attempts: attempt}
			if !out.OK() {
				return nil, ex.finish(out)
			}
			return (*Q)(q), ex.finish(out)
		}

		lastErr = res.err
		lastQuota = res.retry == retryRateLimit
		if attempt == maxAttempts {
			break
		}

		ex.retries.Add(1)
		retriesTotal.WithLabelValues(res.retry).Inc()

		if lastQuota {
			ex.logger.Warn().Err(res.err).Int("attempt", attempt).Msg("quota exhausted, retrying with another credential")
			continue
		}

		wait := ex.retry.backoff(backoffs)
		backoffs++
		ex.logger.Warn().Err(res.err).Int("attempt", attempt).Dur("backoff", wait).Msg("query failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ex.finish(Outcome{
				Kind:     KindCancelled,
				Err:      fmt.Errorf("%w: %w", caterrors.ErrCancelled, ctx.Err()),
				Attempts: attempt,
			})
		}
	}

	out := Outcome{Attempts: maxAttempts}
	if lastQuota {
		out.Kind = KindRateLimitExhausted
		out.Err = fmt.Errorf("%w: %w after %d attempts: %w",
			caterrors.ErrRateLimitExhausted, caterrors.ErrRetriesExhausted, maxAttempts, lastErr)
	} else {
		out.Kind = KindRetriesExhausted
		out.Err = fmt.Errorf("%w after %d attempts: %w", caterrors.ErrRetriesExhausted, maxAttempts, lastErr)
		if ex.inspector.IsNetworkError(lastErr) {
			out.Err = fmt.Errorf("%w: %w", caterrors.ErrNetworkFailure, out.Err)
		}
	}
	ex.logger.Error().Err(out.Err).Int("attempts", maxAttempts).Msg("query abandoned")
	return nil, ex.finish(out)
}

// attempt acquires a slot, runs the query once and classifies the result.
// The slot is released before returning, so backoff sleeps hold none.
func (ex *Executor) attempt(ctx context.Context, q any, telemetry func() *RateLimit, vars map[string]any) attemptResult {
	slot, err := ex.dispatcher.Acquire(ctx)
	if err != nil {
		return attemptResult{kind: KindCancelled, err: err}
	}
	defer slot.Release()

	cred := slot.Credential()
	ex.attempts.Add(1)
	ex.logger.Debug().Str("credential", cred.Fingerprint()).Msg("sending query")

	err = ex.client.Query(ctx, cred.Secret(), q, vars)
	if err == nil {
		rl := telemetry()
		if rl == nil {
			ex.logger.Error().Str("credential", cred.Fingerprint()).Msg("response carried no rate limit telemetry")
			return attemptResult{kind: KindProtocolViolation, err: caterrors.ErrProtocolViolation}
		}
		ex.record(ctx, cred, rl)
		return attemptResult{kind: KindSuccess}
	}

	if ctx.Err() != nil {
		return attemptResult{kind: KindCancelled, err: fmt.Errorf("%w: %w", caterrors.ErrCancelled, ctx.Err())}
	}

	if ex.inspector.IsRateLimitError(err) {
		ex.pool.MarkExhausted(ctx, cred)
		return attemptResult{err: err, retry: retryRateLimit}
	}

	if ex.inspector.IsNotFoundError(err) {
		ex.logger.Debug().Err(err).Msg("entity not found")
		return attemptResult{kind: KindNotFound, err: err}
	}

	var resp *giterror.ResponseError
	if errors.As(err, &resp) && resp.Status != 0 && ex.isTolerated(resp.Status) {
		if resp.HasData {
			if rl := telemetry(); rl != nil {
				ex.record(ctx, cred, rl)
			}
			ex.logger.Warn().Err(err).Int("status", resp.Status).Msg("keeping partial response")
			return attemptResult{kind: KindPartial, err: err}
		}
		ex.logger.Debug().Err(err).Int("status", resp.Status).Msg("tolerated status without data")
		return attemptResult{kind: KindNotFound, err: err}
	}

	return attemptResult{err: err, retry: retryError}
}

func (ex *Executor) isTolerated(status int) bool {
	if status == 200 {
		return false
	}
	_, ok := ex.tolerated[status]
	return ok
}

func (ex *Executor) record(ctx context.Context, cred *tokenpool.Credential, rl *RateLimit) {
	ex.pool.RecordUsage(ctx, cred, int(rl.Remaining), rl.ResetAt)
	ex.pool.ScheduleRefresh(cred)
}

func (ex *Executor) finish(out Outcome) Outcome {
	ex.outcomes[out.Kind].Add(1)
	operationsTotal.WithLabelValues(out.Kind.String()).Inc()
	return out
}

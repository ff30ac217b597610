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

package tokenpool

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	caterrors "github.com/sirseerhq/datacat/internal/errors"
)

// Prober asks GitHub for the current quota of a token.
type Prober interface {
	Probe(ctx context.Context, secret string) (remaining int, resetAt time.Time, err error)
}

// Store persists quota snapshots so that processes sharing tokens start from
// what the others last saw. Keys are credential fingerprints, never secrets.
type Store interface {
	Load(ctx context.Context, fingerprint string) (State, bool, error)
	Save(ctx context.Context, fingerprint string, state State) error
}

// Options configures a Pool.
type Options struct {
	// CostPrediction is the expected quota cost of one request.
	CostPrediction int
	// MaxConcurrency is the dispatcher's slot count; it sizes the reserve.
	MaxConcurrency int
	// RefreshMargin is added to the reset time before probing.
	RefreshMargin time.Duration
	// RefreshFallback is the probe delay when the reset time is unknown or
	// already in the past, and after a failed probe.
	RefreshFallback time.Duration
	// ProbeTimeout bounds one probe call.
	ProbeTimeout time.Duration
	// SaveTimeout bounds one Store.Save call.
	SaveTimeout time.Duration

	Store  Store
	Prober Prober
	Logger zerolog.Logger
}

const (
	defaultCostPrediction  = 15
	defaultMaxConcurrency  = 10
	defaultRefreshMargin   = time.Second
	defaultRefreshFallback = 10 * time.Minute
	defaultProbeTimeout    = 30 * time.Second
	defaultSaveTimeout     = 5 * time.Second
)

// Pool holds the credentials and answers which one may take new work.
type Pool struct {
	mu          sync.Mutex
	creds       []*Credential
	opts        Options
	reserve     int
	hooks       []func()
	initialized bool
	closed      bool

	// Snapshots waiting for the store, newest per fingerprint. They are
	// written by saveLoop so the request path never waits on the store.
	pending  map[string]State
	saveWake chan struct{}
	saveDone chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a pool for the given secrets. Blank and duplicate secrets are
// dropped; at least one secret must remain.
func New(secrets []string, opts Options) (*Pool, error) {
	if opts.CostPrediction <= 0 {
		opts.CostPrediction = defaultCostPrediction
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	if opts.RefreshMargin < 0 {
		opts.RefreshMargin = defaultRefreshMargin
	}
	if opts.RefreshFallback <= 0 {
		opts.RefreshFallback = defaultRefreshFallback
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = defaultSaveTimeout
	}

	seen := make(map[string]struct{}, len(secrets))
	var creds []*Credential
	for _, s := range secrets {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		creds = append(creds, newCredential(s))
	}
	if len(creds) == 0 {
		return nil, caterrors.ErrNoCredentials
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		creds:   creds,
		opts:    opts,
		reserve: opts.CostPrediction * opts.MaxConcurrency,
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
		logger:  opts.Logger,
	}
	if opts.Store != nil {
		p.pending = make(map[string]State)
		p.saveWake = make(chan struct{}, 1)
		p.saveDone = make(chan struct{})
		go p.saveLoop()
	}
	return p, nil
}

// ReserveThreshold is the quota a credential must exceed to stay eligible.
func (p *Pool) ReserveThreshold() int {
	return p.reserve
}

// Len returns the number of distinct credentials.
func (p *Pool) Len() int {
	return len(p.creds)
}

// Initialized reports whether Init has completed.
func (p *Pool) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initialized
}

// OnUpdate registers fn to run after every quota update. fn runs without the
// pool lock held and must not block.
func (p *Pool) OnUpdate(fn func()) {
	p.mu.Lock()
	p.hooks = append(p.hooks, fn)
	p.mu.Unlock()
}

// SelectEligible returns a uniformly random credential whose remaining quota
// exceeds the reserve threshold, or nil when there is none. It never blocks.
func (p *Pool) SelectEligible() *Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	var eligible []*Credential
	for _, c := range p.creds {
		if c.state.Remaining > p.reserve {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	return eligible[rand.IntN(len(eligible))]
}

// RecordUsage overwrites the credential's snapshot with what GitHub reported.
// The snapshot reaches the store in the background; ctx only scopes the call.
func (p *Pool) RecordUsage(ctx context.Context, c *Credential, remaining int, resetAt time.Time) {
	p.update(c, func(st *State) {
		st.Remaining = remaining
		if !resetAt.IsZero() {
			st.ResetAt = resetAt
		}
	})
}

// MarkExhausted makes the credential ineligible until a probe or a response
// reports fresh quota, and schedules that probe.
func (p *Pool) MarkExhausted(ctx context.Context, c *Credential) {
	p.update(c, func(st *State) {
		st.Remaining = 0
	})
	p.logger.Warn().Str("credential", c.fingerprint).Msg("credential quota exhausted")
	p.ScheduleRefresh(c)
}

func (p *Pool) update(c *Credential, mutate func(*State)) {
	p.mu.Lock()
	mutate(&c.state)
	c.state.UpdatedAt = p.now()
	st := c.state
	hooks := append([]func(){}, p.hooks...)
	queued := p.pending != nil && !p.closed
	if queued {
		p.pending[c.fingerprint] = st
	}
	p.mu.Unlock()

	credentialRemaining.WithLabelValues(c.fingerprint).Set(float64(st.Remaining))

	if queued {
		select {
		case p.saveWake <- struct{}{}:
		default:
		}
	}

	for _, fn := range hooks {
		fn()
	}
}

// saveLoop writes queued snapshots to the store until the pool is closed,
// then flushes what is left.
func (p *Pool) saveLoop() {
	defer close(p.saveDone)
	for {
		select {
		case <-p.saveWake:
			p.flushSaves()
		case <-p.ctx.Done():
			p.flushSaves()
			return
		}
	}
}

func (p *Pool) flushSaves() {
	p.mu.Lock()
	batch := p.pending
	p.pending = make(map[string]State, len(batch))
	p.mu.Unlock()

	for fp, st := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), p.opts.SaveTimeout)
		err := p.opts.Store.Save(ctx, fp, st)
		cancel()
		if err != nil {
			p.logger.Warn().Err(err).Str("credential", fp).Msg("failed to save quota snapshot")
		}
	}
}

// refreshDelay computes when to probe a credential whose quota is at or
// below the reserve. ok is false when the reset time cannot be trusted.
func (p *Pool) refreshDelay(st State, now time.Time) (delay time.Duration, ok bool) {
	if st.ResetAt.IsZero() {
		return p.opts.RefreshFallback, false
	}
	delay = st.ResetAt.Sub(now) + p.opts.RefreshMargin
	if delay < 0 {
		return p.opts.RefreshFallback, false
	}
	return delay, true
}

// ScheduleRefresh arranges a one-shot probe of a credential whose quota is at
// or below the reserve. It does nothing when the credential is still eligible,
// when a probe is already pending, or when the pool has no Prober.
func (p *Pool) ScheduleRefresh(c *Credential) {
	if p.opts.Prober == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || c.refresh != nil || c.state.Remaining > p.reserve {
		return
	}

	delay, ok := p.refreshDelay(c.state, p.now())
	if !ok {
		p.logger.Error().
			Str("credential", c.fingerprint).
			Time("reset_at", c.state.ResetAt).
			Dur("fallback", delay).
			Msg("quota reset time is unknown or in the past, using fallback refresh delay")
	} else {
		p.logger.Info().
			Str("credential", c.fingerprint).
			Int("remaining", c.state.Remaining).
			Dur("delay", delay).
			Msg("scheduled quota refresh")
	}
	c.refresh = time.AfterFunc(delay, func() { p.refresh(c) })
}

func (p *Pool) refresh(c *Credential) {
	p.mu.Lock()
	c.refresh = nil
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.opts.ProbeTimeout)
	defer cancel()

	remaining, resetAt, err := p.opts.Prober.Probe(ctx, c.secret)
	if err != nil {
		refreshProbesTotal.WithLabelValues("error").Inc()
		p.logger.Warn().Err(err).Str("credential", c.fingerprint).
			Dur("retry_in", p.opts.RefreshFallback).Msg("quota refresh probe failed")

		p.mu.Lock()
		if !p.closed && c.refresh == nil {
			c.refresh = time.AfterFunc(p.opts.RefreshFallback, func() { p.refresh(c) })
		}
		p.mu.Unlock()
		return
	}

	refreshProbesTotal.WithLabelValues("ok").Inc()
	p.logger.Info().Str("credential", c.fingerprint).Int("remaining", remaining).Msg("quota refreshed")
	p.RecordUsage(ctx, c, remaining, resetAt)
	p.ScheduleRefresh(c)
}

// Init loads quota snapshots from the store and probes every credential the
// store could not vouch for. Snapshots whose reset window has passed are
// ignored. It fails only when no credential could be initialized.
func (p *Pool) Init(ctx context.Context) error {
	now := p.now()
	var toProbe []*Credential

	for _, c := range p.creds {
		if p.opts.Store != nil {
			st, ok, err := p.opts.Store.Load(ctx, c.fingerprint)
			if err != nil {
				p.logger.Warn().Err(err).Str("credential", c.fingerprint).Msg("failed to load quota snapshot")
			} else if ok && st.Known() && st.ResetAt.After(now) {
				p.mu.Lock()
				c.state = st
				p.mu.Unlock()
				credentialRemaining.WithLabelValues(c.fingerprint).Set(float64(st.Remaining))
				p.logger.Debug().Str("credential", c.fingerprint).Int("remaining", st.Remaining).Msg("seeded quota from store")
				continue
			}
		}
		toProbe = append(toProbe, c)
	}

	if len(toProbe) > 0 && p.opts.Prober == nil {
		return fmt.Errorf("%d credentials need a quota probe but no prober is configured", len(toProbe))
	}

	var (
		mu       sync.Mutex
		failures []error
	)
	g := new(errgroup.Group)
	g.SetLimit(p.opts.MaxConcurrency)
	for _, c := range toProbe {
		g.Go(func() error {
			remaining, resetAt, err := p.opts.Prober.Probe(ctx, c.secret)
			if err != nil {
				p.logger.Error().Err(err).Str("credential", c.fingerprint).Msg("initial quota probe failed")
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
				return nil
			}
			p.RecordUsage(ctx, c, remaining, resetAt)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", caterrors.ErrCancelled, err)
	}
	if len(toProbe) > 0 && len(failures) == len(p.creds) {
		return fmt.Errorf("all %d credentials failed the quota probe: %w", len(p.creds), failures[0])
	}

	p.mu.Lock()
	p.initialized = true
	p.mu.Unlock()

	for _, c := range p.creds {
		p.ScheduleRefresh(c)
	}

	p.logger.Info().
		Int("credentials", len(p.creds)).
		Int("probed", len(toProbe)).
		Int("failed", len(failures)).
		Int("reserve", p.reserve).
		Msg("credential pool initialized")
	return nil
}

// Statuses returns a snapshot of every credential.
func (p *Pool) Statuses() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Status, 0, len(p.creds))
	for _, c := range p.creds {
		out = append(out, Status{
			Fingerprint: c.fingerprint,
			State:       c.state,
			Eligible:    c.state.Remaining > p.reserve,
			Refreshing:  c.refresh != nil,
		})
	}
	return out
}

// Close stops pending refresh probes and waits until queued quota snapshots
// have been handed to the store. The pool must not be used afterwards.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancel()
	for _, c := range p.creds {
		if c.refresh != nil {
			c.refresh.Stop()
			c.refresh = nil
		}
	}
	p.mu.Unlock()

	if p.saveDone != nil {
		<-p.saveDone
	}
}

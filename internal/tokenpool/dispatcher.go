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
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	caterrors "github.com/sirseerhq/datacat/internal/errors"
)

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// MaxConcurrency caps the operations in flight.
	MaxConcurrency int
	// PollInterval re-checks availability even without a wake-up.
	PollInterval time.Duration
	// RequestsPerSecond paces acquired slots; 0 disables pacing.
	RequestsPerSecond float64
	Logger            zerolog.Logger
}

const defaultPollInterval = 10 * time.Second

// Dispatcher hands out slots, each bound to an eligible credential.
type Dispatcher struct {
	pool     *Pool
	max      int
	poll     time.Duration
	limiter  *rate.Limiter
	logger   zerolog.Logger
	mu       sync.Mutex
	inflight int
	wake     chan struct{}
}

// Slot is the right to run one operation with one credential.
type Slot struct {
	d        *Dispatcher
	cred     *Credential
	released atomic.Bool
}

// Credential returns the credential selected for this slot.
func (s *Slot) Credential() *Credential {
	return s.cred
}

// Release returns the slot. Calls after the first are no-ops.
func (s *Slot) Release() {
	if s == nil || !s.released.CompareAndSwap(false, true) {
		return
	}
	s.d.release()
}

// NewDispatcher creates a dispatcher over pool and subscribes to its updates.
func NewDispatcher(pool *Pool, opts DispatcherOptions) *Dispatcher {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	d := &Dispatcher{
		pool:   pool,
		max:    opts.MaxConcurrency,
		poll:   opts.PollInterval,
		logger: opts.Logger,
		wake:   make(chan struct{}),
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(math.Ceil(opts.RequestsPerSecond))
		d.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	pool.OnUpdate(d.broadcast)
	return d
}

// Acquire blocks until fewer than MaxConcurrency operations are in flight and
// the pool has an eligible credential. The returned error wraps ErrCancelled
// when ctx ends first.
func (d *Dispatcher) Acquire(ctx context.Context) (*Slot, error) {
	start := time.Now()
	waiting := false

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", caterrors.ErrCancelled, err)
		}

		d.mu.Lock()
		saturated := d.inflight >= d.max
		if !saturated {
			if c := d.pool.SelectEligible(); c != nil {
				d.inflight++
				inflightOperations.Set(float64(d.inflight))
				d.mu.Unlock()

				acquireWaitSeconds.Observe(time.Since(start).Seconds())
				slot := &Slot{d: d, cred: c}
				if d.limiter != nil {
					if err := d.limiter.Wait(ctx); err != nil {
						slot.Release()
						return nil, fmt.Errorf("%w: %w", caterrors.ErrCancelled, err)
					}
				}
				d.logger.Debug().Str("credential", c.fingerprint).Msg("slot acquired")
				return slot, nil
			}
		}
		wake := d.wake
		d.mu.Unlock()

		if !waiting {
			waiting = true
			if saturated {
				d.logger.Debug().Int("max_concurrency", d.max).Msg("all slots busy, waiting")
			} else {
				d.logger.Warn().Int("reserve", d.pool.ReserveThreshold()).Msg("no eligible credential, waiting for quota")
			}
		}

		timer := time.NewTimer(d.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %w", caterrors.ErrCancelled, ctx.Err())
		case <-wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// InFlight returns the number of slots currently held.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inflight
}

func (d *Dispatcher) release() {
	d.mu.Lock()
	d.inflight--
	inflightOperations.Set(float64(d.inflight))
	close(d.wake)
	d.wake = make(chan struct{})
	d.mu.Unlock()
}

// broadcast wakes every waiter so it re-evaluates availability.
func (d *Dispatcher) broadcast() {
	d.mu.Lock()
	close(d.wake)
	d.wake = make(chan struct{})
	d.mu.Unlock()
}

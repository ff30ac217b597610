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
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	caterrors "github.com/sirseerhq/datacat/internal/errors"
)

func TestDispatcherWaitsForEligibleCredential(t *testing.T) {
	// Two credentials with 100 each, cost 15, concurrency 10: the reserve is
	// 150, so neither is usable until 151 or more is reported.
	prober := newFakeProber(func(string, int) (int, time.Time, error) {
		return 100, time.Now().Add(time.Hour), nil
	})
	p := newTestPool(t, []string{"a", "b"}, Options{CostPrediction: 15, MaxConcurrency: 10, Prober: prober})
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	// A poll interval longer than the test proves the waiter is woken by the update.
	d := NewDispatcher(p, DispatcherOptions{MaxConcurrency: 10, PollInterval: time.Hour, Logger: zerolog.Nop()})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := d.Acquire(ctx); !errors.Is(err, caterrors.ErrCancelled) {
		t.Fatalf("Acquire() error = %v, want ErrCancelled while no credential is eligible", err)
	}

	type result struct {
		slot *Slot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		slot, err := d.Acquire(context.Background())
		done <- result{slot, err}
	}()

	select {
	case r := <-done:
		t.Fatalf("Acquire returned early: %v, %v", r.slot, r.err)
	case <-time.After(30 * time.Millisecond):
	}

	p.RecordUsage(context.Background(), p.creds[1], 150, time.Now().Add(time.Hour))
	select {
	case r := <-done:
		t.Fatalf("Acquire returned at the reserve: %v, %v", r.slot, r.err)
	case <-time.After(30 * time.Millisecond):
	}

	p.RecordUsage(context.Background(), p.creds[1], 151, time.Now().Add(time.Hour))
	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Acquire() error = %v", r.err)
		}
		if r.slot.Credential() != p.creds[1] {
			t.Errorf("Acquire() picked %s, want the replenished credential", r.slot.Credential().Fingerprint())
		}
		r.slot.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not wake after quota update")
	}
}

func TestDispatcherConcurrencyCap(t *testing.T) {
	const (
		maxConc = 4
		workers = 60
	)
	p := newTestPool(t, []string{"a", "b"}, Options{CostPrediction: 1, MaxConcurrency: maxConc})
	for _, c := range p.creds {
		p.RecordUsage(context.Background(), c, 1_000_000, time.Now().Add(time.Hour))
	}
	d := NewDispatcher(p, DispatcherOptions{MaxConcurrency: maxConc, PollInterval: 5 * time.Millisecond, Logger: zerolog.Nop()})

	var (
		current atomic.Int32
		peak    atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot, err := d.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			defer slot.Release()

			n := current.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(time.Duration(rand.IntN(3000)) * time.Microsecond)
			current.Add(-1)
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > maxConc {
		t.Errorf("peak in-flight = %d, want <= %d", got, maxConc)
	}
	if got := d.InFlight(); got != 0 {
		t.Errorf("InFlight() = %d after all workers finished, want 0", got)
	}
}

func TestSlotReleaseIdempotent(t *testing.T) {
	p := newTestPool(t, []string{"a"}, Options{CostPrediction: 1, MaxConcurrency: 2})
	p.RecordUsage(context.Background(), p.creds[0], 1000, time.Now().Add(time.Hour))
	d := NewDispatcher(p, DispatcherOptions{MaxConcurrency: 2, Logger: zerolog.Nop()})

	first, err := d.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := d.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := d.InFlight(); got != 2 {
		t.Fatalf("InFlight() = %d, want 2", got)
	}

	first.Release()
	first.Release()
	if got := d.InFlight(); got != 1 {
		t.Errorf("InFlight() = %d after double release, want 1", got)
	}
	second.Release()
	if got := d.InFlight(); got != 0 {
		t.Errorf("InFlight() = %d, want 0", got)
	}

	var nilSlot *Slot
	nilSlot.Release()
}

func TestAcquireWakesOnRelease(t *testing.T) {
	p := newTestPool(t, []string{"a"}, Options{CostPrediction: 1, MaxConcurrency: 1})
	p.RecordUsage(context.Background(), p.creds[0], 1000, time.Now().Add(time.Hour))
	d := NewDispatcher(p, DispatcherOptions{MaxConcurrency: 1, PollInterval: time.Hour, Logger: zerolog.Nop()})

	held, err := d.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		slot, err := d.Acquire(context.Background())
		if err == nil {
			slot.Release()
		}
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	held.Release()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Acquire() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not woken by Release")
	}
}

func TestAcquireCancelled(t *testing.T) {
	p := newTestPool(t, []string{"a"}, Options{CostPrediction: 1, MaxConcurrency: 1})
	p.RecordUsage(context.Background(), p.creds[0], 1000, time.Now().Add(time.Hour))
	d := NewDispatcher(p, DispatcherOptions{MaxConcurrency: 1, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slot, err := d.Acquire(ctx)
	if !errors.Is(err, caterrors.ErrCancelled) {
		t.Fatalf("Acquire() error = %v, want ErrCancelled", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire() error = %v, want it to wrap context.Canceled", err)
	}
	if slot != nil {
		t.Error("Acquire() returned a slot on cancellation")
	}
	if got := d.InFlight(); got != 0 {
		t.Errorf("InFlight() = %d, want 0", got)
	}
}

func TestAcquirePaced(t *testing.T) {
	p := newTestPool(t, []string{"a"}, Options{CostPrediction: 1, MaxConcurrency: 5})
	p.RecordUsage(context.Background(), p.creds[0], 1000, time.Now().Add(time.Hour))
	d := NewDispatcher(p, DispatcherOptions{MaxConcurrency: 5, RequestsPerSecond: 20, Logger: zerolog.Nop()})

	start := time.Now()
	for i := 0; i < 25; i++ {
		slot, err := d.Acquire(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		slot.Release()
	}
	// Burst of 20, then 5 more at 20/s.
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("25 paced acquisitions took %v, want at least 200ms", elapsed)
	}
}

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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	caterrors "github.com/sirseerhq/datacat/internal/errors"
)

// fakeProber answers probes from a function and counts calls per secret.
type fakeProber struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(secret string, call int) (int, time.Time, error)
}

func newFakeProber(fn func(secret string, call int) (int, time.Time, error)) *fakeProber {
	return &fakeProber{calls: make(map[string]int), fn: fn}
}

func (f *fakeProber) Probe(_ context.Context, secret string) (int, time.Time, error) {
	f.mu.Lock()
	f.calls[secret]++
	n := f.calls[secret]
	f.mu.Unlock()
	return f.fn(secret, n)
}

func (f *fakeProber) Calls(secret string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[secret]
}

// memStore is an in-memory Store.
type memStore struct {
	mu    sync.Mutex
	data  map[string]State
	saves int
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]State)}
}

func (m *memStore) Load(_ context.Context, fp string) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.data[fp]
	return st, ok, nil
}

func (m *memStore) Save(_ context.Context, fp string, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[fp] = st
	m.saves++
	return nil
}

func (m *memStore) get(fp string) (State, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[fp], m.saves
}

// blockingStore holds every Save until release is closed.
type blockingStore struct {
	memStore
	release chan struct{}
}

func (b *blockingStore) Save(ctx context.Context, fp string, st State) error {
	<-b.release
	return b.memStore.Save(ctx, fp, st)
}

func newTestPool(t *testing.T, secrets []string, opts Options) *Pool {
	t.Helper()
	opts.Logger = zerolog.Nop()
	p, err := New(secrets, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		secrets []string
		want    int
		wantErr error
	}{
		{name: "empty", secrets: nil, wantErr: caterrors.ErrNoCredentials},
		{name: "only blanks", secrets: []string{"", "  "}, wantErr: caterrors.ErrNoCredentials},
		{name: "duplicates collapsed", secrets: []string{"a", "b", "a"}, want: 2},
		{name: "single", secrets: []string{"a"}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.secrets, Options{Logger: zerolog.Nop()})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer p.Close()
			if p.Len() != tt.want {
				t.Errorf("Len() = %d, want %d", p.Len(), tt.want)
			}
		})
	}
}

func TestReserveThreshold(t *testing.T) {
	p := newTestPool(t, []string{"a"}, Options{CostPrediction: 15, MaxConcurrency: 10})
	if got := p.ReserveThreshold(); got != 150 {
		t.Errorf("ReserveThreshold() = %d, want 150", got)
	}
}

func TestSelectEligibleRespectsReserve(t *testing.T) {
	tests := []struct {
		name      string
		remaining int
		eligible  bool
	}{
		{name: "unknown quota", remaining: UnknownRemaining, eligible: false},
		{name: "exhausted", remaining: 0, eligible: false},
		{name: "at reserve", remaining: 150, eligible: false},
		{name: "one above reserve", remaining: 151, eligible: true},
		{name: "plenty", remaining: 5000, eligible: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPool(t, []string{"a"}, Options{CostPrediction: 15, MaxConcurrency: 10})
			if tt.remaining != UnknownRemaining {
				p.RecordUsage(context.Background(), p.creds[0], tt.remaining, time.Now().Add(time.Hour))
			}
			got := p.SelectEligible()
			if (got != nil) != tt.eligible {
				t.Errorf("SelectEligible() = %v, want eligible=%v", got, tt.eligible)
			}
		})
	}
}

func TestSelectEligibleSpreadsLoad(t *testing.T) {
	p := newTestPool(t, []string{"a", "b", "c"}, Options{CostPrediction: 1, MaxConcurrency: 1})
	reset := time.Now().Add(time.Hour)
	p.RecordUsage(context.Background(), p.creds[0], 100, reset)
	p.RecordUsage(context.Background(), p.creds[1], 100, reset)
	p.RecordUsage(context.Background(), p.creds[2], 0, reset)

	picked := make(map[string]int)
	for i := 0; i < 400; i++ {
		c := p.SelectEligible()
		if c == nil {
			t.Fatal("SelectEligible() = nil, want a credential")
		}
		picked[c.Secret()]++
	}
	if picked["c"] != 0 {
		t.Errorf("ineligible credential picked %d times", picked["c"])
	}
	if picked["a"] == 0 || picked["b"] == 0 {
		t.Errorf("selection not spread across eligible credentials: %v", picked)
	}
}

func TestMarkExhausted(t *testing.T) {
	p := newTestPool(t, []string{"a"}, Options{CostPrediction: 1, MaxConcurrency: 1})
	p.RecordUsage(context.Background(), p.creds[0], 4000, time.Now().Add(time.Hour))
	if p.SelectEligible() == nil {
		t.Fatal("credential should be eligible before exhaustion")
	}

	p.MarkExhausted(context.Background(), p.creds[0])
	if c := p.SelectEligible(); c != nil {
		t.Errorf("SelectEligible() = %v after MarkExhausted, want nil", c)
	}
	if st := p.Statuses()[0]; st.State.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", st.State.Remaining)
	}
}

func TestRefreshDelay(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p := newTestPool(t, []string{"a"}, Options{RefreshMargin: time.Second, RefreshFallback: 10 * time.Minute})

	tests := []struct {
		name   string
		state  State
		want   time.Duration
		wantOK bool
	}{
		{
			name:   "future reset",
			state:  State{Remaining: 0, ResetAt: now.Add(30 * time.Second)},
			want:   31 * time.Second,
			wantOK: true,
		},
		{
			name:   "reset within margin",
			state:  State{Remaining: 0, ResetAt: now.Add(-500 * time.Millisecond)},
			want:   500 * time.Millisecond,
			wantOK: true,
		},
		{
			name:   "reset long past is not trusted",
			state:  State{Remaining: 0, ResetAt: now.Add(-time.Hour)},
			want:   10 * time.Minute,
			wantOK: false,
		},
		{
			name:   "unknown reset",
			state:  State{Remaining: 0},
			want:   10 * time.Minute,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.refreshDelay(tt.state, now)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("refreshDelay() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestScheduleRefreshSkipsEligibleCredential(t *testing.T) {
	prober := newFakeProber(func(string, int) (int, time.Time, error) {
		return 5000, time.Now().Add(time.Hour), nil
	})
	p := newTestPool(t, []string{"a"}, Options{CostPrediction: 1, MaxConcurrency: 1, Prober: prober})
	p.RecordUsage(context.Background(), p.creds[0], 4000, time.Now())

	p.ScheduleRefresh(p.creds[0])
	if p.Statuses()[0].Refreshing {
		t.Error("refresh scheduled for an eligible credential")
	}
}

func TestScheduleRefreshProbesAfterReset(t *testing.T) {
	prober := newFakeProber(func(string, int) (int, time.Time, error) {
		return 5000, time.Now().Add(time.Hour), nil
	})
	p := newTestPool(t, []string{"a"}, Options{
		CostPrediction: 1,
		MaxConcurrency: 1,
		RefreshMargin:  0,
		Prober:         prober,
	})

	var updates atomic.Int32
	p.OnUpdate(func() { updates.Add(1) })

	p.RecordUsage(context.Background(), p.creds[0], 0, time.Now().Add(20*time.Millisecond))
	p.ScheduleRefresh(p.creds[0])
	p.ScheduleRefresh(p.creds[0])

	waitFor(t, 2*time.Second, func() bool {
		return p.Statuses()[0].State.Remaining == 5000
	})
	if n := prober.Calls("a"); n != 1 {
		t.Errorf("probe calls = %d, want 1 (one pending refresh per credential)", n)
	}
	if updates.Load() < 2 {
		t.Errorf("update hooks fired %d times, want at least 2", updates.Load())
	}
	if p.SelectEligible() == nil {
		t.Error("credential should be eligible after refresh")
	}
}

func TestFailedProbeReschedules(t *testing.T) {
	prober := newFakeProber(func(_ string, call int) (int, time.Time, error) {
		if call == 1 {
			return 0, time.Time{}, errors.New("connection reset")
		}
		return 5000, time.Now().Add(time.Hour), nil
	})
	p := newTestPool(t, []string{"a"}, Options{
		CostPrediction:  1,
		MaxConcurrency:  1,
		RefreshMargin:   0,
		RefreshFallback: 20 * time.Millisecond,
		Prober:          prober,
	})

	p.RecordUsage(context.Background(), p.creds[0], 0, time.Now().Add(10*time.Millisecond))
	p.ScheduleRefresh(p.creds[0])

	waitFor(t, 2*time.Second, func() bool {
		return p.Statuses()[0].State.Remaining == 5000
	})
	if n := prober.Calls("a"); n != 2 {
		t.Errorf("probe calls = %d, want 2", n)
	}
}

func TestCloseStopsRefresh(t *testing.T) {
	prober := newFakeProber(func(string, int) (int, time.Time, error) {
		return 5000, time.Now().Add(time.Hour), nil
	})
	p, err := New([]string{"a"}, Options{CostPrediction: 1, MaxConcurrency: 1, Prober: prober, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatal(err)
	}
	p.RecordUsage(context.Background(), p.creds[0], 0, time.Now().Add(30*time.Millisecond))
	p.ScheduleRefresh(p.creds[0])
	p.Close()
	p.Close()

	time.Sleep(100 * time.Millisecond)
	if n := prober.Calls("a"); n != 0 {
		t.Errorf("probe calls after Close = %d, want 0", n)
	}
}

func TestInit(t *testing.T) {
	store := newMemStore()
	reset := time.Now().Add(time.Hour)
	store.data[Fingerprint("seeded")] = State{Remaining: 3000, ResetAt: reset}
	store.data[Fingerprint("stale")] = State{Remaining: 3000, ResetAt: time.Now().Add(-time.Hour)}

	prober := newFakeProber(func(secret string, _ int) (int, time.Time, error) {
		if secret == "bad" {
			return 0, time.Time{}, errors.New("401 Unauthorized")
		}
		return 4500, reset, nil
	})
	p := newTestPool(t, []string{"seeded", "stale", "bad"}, Options{Prober: prober, Store: store})

	if p.Initialized() {
		t.Fatal("pool initialized before Init")
	}
	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if !p.Initialized() {
		t.Error("Initialized() = false after Init")
	}

	if n := prober.Calls("seeded"); n != 0 {
		t.Errorf("seeded credential probed %d times, want 0", n)
	}
	if n := prober.Calls("stale"); n != 1 {
		t.Errorf("stale credential probed %d times, want 1", n)
	}

	byFP := make(map[string]Status)
	for _, st := range p.Statuses() {
		byFP[st.Fingerprint] = st
	}
	if got := byFP[Fingerprint("seeded")].State.Remaining; got != 3000 {
		t.Errorf("seeded remaining = %d, want 3000", got)
	}
	if got := byFP[Fingerprint("stale")].State.Remaining; got != 4500 {
		t.Errorf("stale remaining = %d, want 4500", got)
	}
	if byFP[Fingerprint("bad")].Eligible {
		t.Error("credential with a failed probe should not be eligible")
	}
	waitFor(t, time.Second, func() bool {
		st, _ := store.get(Fingerprint("stale"))
		return st.Remaining == 4500
	})
}

func TestRecordUsageSavesInBackground(t *testing.T) {
	store := &blockingStore{
		memStore: memStore{data: make(map[string]State)},
		release:  make(chan struct{}),
	}
	p := newTestPool(t, []string{"a"}, Options{Store: store})
	t.Cleanup(func() {
		select {
		case <-store.release:
		default:
			close(store.release)
		}
	})
	c := p.creds[0]

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		p.RecordUsage(ctx, c, 1234, time.Now().Add(time.Hour))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RecordUsage waited for the store")
	}

	close(store.release)
	waitFor(t, time.Second, func() bool {
		st, _ := store.get(c.Fingerprint())
		return st.Remaining == 1234
	})
}

func TestCloseFlushesSnapshots(t *testing.T) {
	store := newMemStore()
	p, err := New([]string{"a", "b"}, Options{Store: store, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	reset := time.Now().Add(time.Hour)
	p.RecordUsage(context.Background(), p.creds[0], 10, reset)
	p.RecordUsage(context.Background(), p.creds[1], 20, reset)
	p.Close()

	for i, want := range []int{10, 20} {
		st, _ := store.get(p.creds[i].Fingerprint())
		if st.Remaining != want {
			t.Errorf("credential %d saved remaining = %d, want %d", i, st.Remaining, want)
		}
	}

	// Updates after Close are not queued.
	_, saves := store.get(p.creds[0].Fingerprint())
	p.RecordUsage(context.Background(), p.creds[0], 5, reset)
	time.Sleep(20 * time.Millisecond)
	if _, after := store.get(p.creds[0].Fingerprint()); after != saves {
		t.Errorf("saves after Close = %d, want %d", after, saves)
	}
}

func TestInitAllProbesFail(t *testing.T) {
	probeErr := errors.New("401 Unauthorized")
	prober := newFakeProber(func(string, int) (int, time.Time, error) {
		return 0, time.Time{}, probeErr
	})
	p := newTestPool(t, []string{"a", "b"}, Options{Prober: prober})

	err := p.Init(context.Background())
	if !errors.Is(err, probeErr) {
		t.Fatalf("Init() error = %v, want wrapped probe error", err)
	}
	if p.Initialized() {
		t.Error("pool should not be initialized when every probe failed")
	}
}

func TestInitCancelled(t *testing.T) {
	prober := newFakeProber(func(string, int) (int, time.Time, error) {
		return 5000, time.Now().Add(time.Hour), nil
	})
	p := newTestPool(t, []string{"a"}, Options{Prober: prober})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Init(ctx); !errors.Is(err, caterrors.ErrCancelled) {
		t.Errorf("Init() error = %v, want ErrCancelled", err)
	}
}

package proxypool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"jobspy_api/internal/shared/types"
	"jobspy_api/proxypool/model"
	"jobspy_api/proxypool/scraper"
	"jobspy_api/proxypool/validator"
)

type fakeFetcher struct {
	mu         sync.Mutex
	candidates []model.Candidate
	err        error
	calls      int
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]model.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.candidates, f.err
}

func (f *fakeFetcher) set(candidates []model.Candidate, err error) {
	f.mu.Lock()
	f.candidates, f.err = candidates, err
	f.mu.Unlock()
}

// blockingValidator signals started and then waits for release or ctx.
type blockingValidator struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingValidator() *blockingValidator {
	return &blockingValidator{started: make(chan struct{}, 1), release: make(chan struct{})}
}

func (v *blockingValidator) ValidateBatch(ctx context.Context, cs []model.Candidate) []model.ValidationResult {
	v.started <- struct{}{}
	results := make([]model.ValidationResult, len(cs))
	select {
	case <-v.release:
		for i, c := range cs {
			results[i] = model.ValidationResult{Candidate: c, Success: true, Latency: time.Millisecond}
		}
	case <-ctx.Done():
		for i, c := range cs {
			results[i] = model.ValidationResult{Candidate: c, Err: ctx.Err()}
		}
	}
	return results
}

func testConf() types.ProxyConf {
	return types.ProxyConf{
		UseProxies:     true,
		UpdateInterval: 300,
		MaxWorkers:     2,
		MaxWorking:     10,
		MaxCandidates:  50,
		ProbeTimeout:   1,
		FetchTimeout:   1,
	}
}

func candidates(t *testing.T, n int) []model.Candidate {
	t.Helper()
	out := make([]model.Candidate, n)
	for i := range out {
		c, err := model.NewCandidate("10.0.0.1", 8001+i, "http", "test")
		if err != nil {
			t.Fatalf("NewCandidate() returned an error: %v", err)
		}
		out[i] = c
	}
	return out
}

// latencyProbe succeeds for the ports listed, after sleeping the given time.
func latencyProbe(delays map[int]time.Duration) validator.ProbeFunc {
	return func(ctx context.Context, c model.Candidate) error {
		d, ok := delays[c.Port]
		if !ok {
			return errors.New("connection refused")
		}
		select {
		case <-time.After(d):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func TestManager_FreshStartIsDegraded(t *testing.T) {
	m := NewManager(testConf(), &fakeFetcher{}, newBlockingValidator())
	st := m.Status()
	if st.Label != LabelDegraded || st.WorkingCount != 0 || st.LastUpdateUnix() != nil {
		t.Errorf("unexpected fresh status: %+v", st)
	}
}

func TestManager_RefreshSortsByLatency(t *testing.T) {
	// 5 candidates, 3 succeed, at most 2 probes in flight.
	cs := candidates(t, 5)
	probe := latencyProbe(map[int]time.Duration{
		8001: 60 * time.Millisecond,
		8003: 5 * time.Millisecond,
		8005: 30 * time.Millisecond,
	})
	v := validator.NewValidator(time.Second, 2, nil, validator.WithProbe(probe))
	m := NewManager(testConf(), &fakeFetcher{candidates: cs}, v)

	report, err := m.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() returned an error: %v", err)
	}
	if report.Candidates != 5 || report.Succeeded != 3 || report.Promoted != 3 || report.WorkingCount != 3 {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.Trigger != TriggerManual {
		t.Errorf("expected manual trigger, got %s", report.Trigger)
	}

	snap := m.Pool().Snapshot()
	want := []int{8003, 8005, 8001}
	if snap.Len() != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), snap.Len())
	}
	for i, port := range want {
		if snap.Entries[i].Port != port {
			t.Errorf("entry %d: expected port %d, got %d", i, port, snap.Entries[i].Port)
		}
		if i > 0 && snap.Entries[i].Latency < snap.Entries[i-1].Latency {
			t.Errorf("entries not ascending by latency: %+v", snap.Entries)
		}
	}
	if st := m.Status(); st.Label != LabelHealthy || st.LastUpdateUnix() == nil {
		t.Errorf("unexpected status after refresh: %+v", st)
	}
}

func TestManager_RefreshRespectsCapacity(t *testing.T) {
	cfg := testConf()
	cfg.MaxWorking = 2
	delays := map[int]time.Duration{}
	for i := 0; i < 5; i++ {
		delays[8001+i] = time.Duration(i) * time.Millisecond
	}
	v := validator.NewValidator(time.Second, 2, nil, validator.WithProbe(latencyProbe(delays)))
	m := NewManager(cfg, &fakeFetcher{candidates: candidates(t, 5)}, v)

	if _, err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() returned an error: %v", err)
	}
	if n := m.Pool().Snapshot().Len(); n != 2 {
		t.Errorf("expected pool capped at 2, got %d", n)
	}
}

func TestManager_FailedCyclesKeepPool(t *testing.T) {
	fetcher := &fakeFetcher{candidates: candidates(t, 2)}
	v := validator.NewValidator(time.Second, 2, nil, validator.WithProbe(latencyProbe(map[int]time.Duration{8001: 0, 8002: 0})))
	m := NewManager(testConf(), fetcher, v)

	if _, err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() returned an error: %v", err)
	}
	before := m.Pool().Snapshot()
	if before.Len() != 2 {
		t.Fatalf("expected 2 entries after first cycle, got %d", before.Len())
	}

	t.Run("fetch fails outright", func(t *testing.T) {
		fetcher.set(nil, &scraper.FetchError{Source: "all sources", Err: errors.New("dns failure")})
		report, err := m.Refresh(context.Background())
		if err != nil {
			t.Fatalf("Refresh() returned an error: %v", err)
		}
		if report.FetchErr == nil || report.Promoted != 0 {
			t.Errorf("unexpected report: %+v", report)
		}
		if m.Pool().Snapshot() != before {
			t.Error("expected the pool to be unchanged")
		}
	})

	t.Run("zero candidates", func(t *testing.T) {
		fetcher.set(nil, nil)
		if _, err := m.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh() returned an error: %v", err)
		}
		if m.Pool().Snapshot() != before {
			t.Error("expected the pool to be unchanged")
		}
	})

	t.Run("zero successes", func(t *testing.T) {
		fetcher.set(candidates(t, 5)[2:], nil)
		report, err := m.Refresh(context.Background())
		if err != nil {
			t.Fatalf("Refresh() returned an error: %v", err)
		}
		if report.Candidates != 3 || report.Succeeded != 0 {
			t.Errorf("unexpected report: %+v", report)
		}
		if m.Pool().Snapshot() != before {
			t.Error("expected the pool and its last update to be unchanged")
		}
	})
}

func TestManager_RefreshRejectedWhileRunning(t *testing.T) {
	v := newBlockingValidator()
	m := NewManager(testConf(), &fakeFetcher{candidates: candidates(t, 3)}, v)

	done := make(chan error, 1)
	go func() {
		_, err := m.Refresh(context.Background())
		done <- err
	}()
	<-v.started

	if !m.Running() {
		t.Error("expected the manager to report a running cycle")
	}
	if _, err := m.Refresh(context.Background()); !errors.Is(err, ErrRefreshInProgress) {
		t.Errorf("expected ErrRefreshInProgress, got %v", err)
	}

	// Selection never waits for the running cycle.
	start := time.Now()
	for i := 0; i < 1000; i++ {
		if d := m.Select(); d.Verdict != Denied {
			t.Fatalf("expected Denied on an empty pool, got %s", d.Verdict)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Select() blocked during refresh: %v", elapsed)
	}

	close(v.release)
	if err := <-done; err != nil {
		t.Fatalf("first Refresh() returned an error: %v", err)
	}
	if m.Running() {
		t.Error("expected the manager to be idle after the cycle")
	}
	if n := m.Pool().Snapshot().Len(); n != 3 {
		t.Errorf("expected 3 entries, got %d", n)
	}
}

func TestManager_Disabled(t *testing.T) {
	cfg := testConf()
	cfg.UseProxies = false
	fetcher := &fakeFetcher{candidates: candidates(t, 1)}
	m := NewManager(cfg, fetcher, newBlockingValidator())

	m.Start()
	defer m.Stop()

	if _, err := m.Refresh(context.Background()); !errors.Is(err, ErrProxiesDisabled) {
		t.Errorf("expected ErrProxiesDisabled, got %v", err)
	}
	if d := m.Select(); d.Verdict != UseDirect {
		t.Errorf("expected UseDirect, got %s", d.Verdict)
	}
	if st := m.Status(); st.Label != LabelDisabled || st.Enabled {
		t.Errorf("unexpected status: %+v", st)
	}
	if fetcher.calls != 0 {
		t.Errorf("expected no fetches when disabled, got %d", fetcher.calls)
	}
}

func TestManager_StartRunsStartupCycle(t *testing.T) {
	v := validator.NewValidator(time.Second, 2, nil, validator.WithProbe(latencyProbe(map[int]time.Duration{8001: 0})))
	m := NewManager(testConf(), &fakeFetcher{candidates: candidates(t, 1)}, v)

	updates := make(chan Status, 1)
	m.OnUpdate(func(st Status) {
		select {
		case updates <- st:
		default:
		}
	})
	m.Start()
	defer m.Stop()

	select {
	case st := <-updates:
		if st.WorkingCount != 1 || st.Label != LabelHealthy {
			t.Errorf("unexpected status after startup cycle: %+v", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("startup cycle did not complete")
	}
}

func TestManager_StopCancelsManualRefresh(t *testing.T) {
	v := newBlockingValidator()
	m := NewManager(testConf(), &fakeFetcher{candidates: candidates(t, 2)}, v)

	done := make(chan CycleReport, 1)
	go func() {
		report, _ := m.Refresh(context.Background())
		done <- report
	}()
	<-v.started
	m.Stop()

	select {
	case report := <-done:
		if report.Promoted != 0 {
			t.Errorf("expected nothing promoted from a cancelled cycle, got %d", report.Promoted)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Refresh() did not return after Stop()")
	}
	if n := m.Pool().Snapshot().Len(); n != 0 {
		t.Errorf("expected an empty pool, got %d entries", n)
	}
}

type panickingFetcher struct {
	panics bool
}

func (f *panickingFetcher) Fetch(context.Context) ([]model.Candidate, error) {
	if f.panics {
		panic("provider blew up")
	}
	return nil, nil
}

func TestManager_PanicDoesNotWedgeRefresh(t *testing.T) {
	f := &panickingFetcher{panics: true}
	m := NewManager(testConf(), f, newBlockingValidator())

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected the fetcher panic to propagate")
			}
		}()
		_, _ = m.Refresh(context.Background())
	}()

	if m.Running() {
		t.Fatal("manager still reports a running cycle after a panic")
	}
	f.panics = false
	if _, err := m.Refresh(context.Background()); err != nil {
		t.Errorf("expected a refresh after the panic to run, got %v", err)
	}
}

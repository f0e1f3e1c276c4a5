package proxypool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"jobspy_api/internal/shared/logger"
	"jobspy_api/internal/shared/types"
	"jobspy_api/proxypool/model"
)

var (
	// ErrRefreshInProgress is returned when a refresh is requested while a
	// cycle is already running.
	ErrRefreshInProgress = errors.New("proxy refresh already in progress")
	// ErrProxiesDisabled is returned by Refresh when proxy support is off.
	ErrProxiesDisabled = errors.New("proxy support is disabled")
)

// Fetcher 提供一轮刷新所需的候选代理。
type Fetcher interface {
	Fetch(ctx context.Context) ([]model.Candidate, error)
}

// BatchValidator 并发验证一批候选代理，每个候选恰好返回一个结果。
type BatchValidator interface {
	ValidateBatch(ctx context.Context, candidates []model.Candidate) []model.ValidationResult
}

// Trigger names what started a refresh cycle.
type Trigger string

const (
	TriggerStartup  Trigger = "startup"
	TriggerPeriodic Trigger = "periodic"
	TriggerManual   Trigger = "manual"
)

// CycleReport describes one completed refresh cycle.
type CycleReport struct {
	ID           uuid.UUID
	Trigger      Trigger
	Candidates   int
	Succeeded    int
	Promoted     int
	WorkingCount int
	StartedAt    time.Time
	Duration     time.Duration
	FetchErr     error // 非致命，本轮视为零候选
}

// Manager 是代理池模块的总控制器：它拥有调度循环、手动刷新入口，
// 并且是代理池唯一的写入者。
type Manager struct {
	cfg       types.ProxyConf
	fetcher   Fetcher
	validator BatchValidator
	pool      *Pool
	selector  *Selector

	// IDLE / RUNNING
	running atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once

	listenersMu sync.RWMutex
	listeners   []func(Status)

	now func() time.Time
}

// NewManager 创建代理池管理器。代理池初始为空，直到第一轮刷新完成。
func NewManager(cfg types.ProxyConf, fetcher Fetcher, validator BatchValidator) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(cfg.MaxWorking, cfg.UseProxies)
	return &Manager{
		cfg:       cfg,
		fetcher:   fetcher,
		validator: validator,
		pool:      pool,
		selector:  NewSelector(pool, cfg.FallbackEnabled),
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
	}
}

// Pool returns the managed pool for read access.
func (m *Manager) Pool() *Pool {
	return m.pool
}

// Selector returns the selector over the managed pool.
func (m *Manager) Selector() *Selector {
	return m.selector
}

// Select is shorthand for m.Selector().Select().
func (m *Manager) Select() Decision {
	return m.selector.Select()
}

// Status returns the current health report. It is a pure read.
func (m *Manager) Status() Status {
	return StatusOf(m.pool.Snapshot(), m.cfg.FallbackEnabled)
}

// Running reports whether a refresh cycle is in progress.
func (m *Manager) Running() bool {
	return m.running.Load()
}

// OnUpdate registers fn to be called with the new status after every
// completed cycle. fn runs on the refreshing goroutine and must not block.
func (m *Manager) OnUpdate(fn func(Status)) {
	m.listenersMu.Lock()
	m.listeners = append(m.listeners, fn)
	m.listenersMu.Unlock()
}

// Start 启动调度循环：立即执行一轮刷新，之后按 UpdateInterval 周期执行。
// 代理功能关闭时不做任何事。
func (m *Manager) Start() {
	l := logger.WithComponent("ProxyPool/Manager")
	if !m.cfg.UseProxies {
		l.Info().Msg("Proxy support disabled; scheduler not started.")
		return
	}
	m.startOnce.Do(func() {
		interval := m.cfg.UpdateIntervalDuration()
		l.Info().
			Dur("update_interval", interval).
			Int("max_workers", m.cfg.MaxWorkers).
			Int("max_working", m.cfg.MaxWorking).
			Bool("fallback_enabled", m.cfg.FallbackEnabled).
			Msg("Manager starting...")

		m.wg.Add(1)
		go m.schedulerLoop(interval)
	})
}

// schedulerLoop 是核心的调度循环，监听 Ticker 和停止信号。
func (m *Manager) schedulerLoop(interval time.Duration) {
	defer m.wg.Done()
	l := logger.WithComponent("ProxyPool/Manager")

	m.tick(TriggerStartup)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.tick(TriggerPeriodic)
		case <-m.ctx.Done():
			l.Info().Msg("Stop signal received. Shutting down scheduler.")
			return
		}
	}
}

func (m *Manager) tick(trigger Trigger) {
	l := logger.WithComponent("ProxyPool/Manager")
	if _, err := m.runExclusive(m.ctx, trigger); errors.Is(err, ErrRefreshInProgress) {
		l.Debug().Str("trigger", string(trigger)).Msg("Refresh already running, skipping tick.")
	}
}

// Refresh runs one cycle synchronously on behalf of an operator. It returns
// ErrRefreshInProgress at once if a cycle is already running. The cycle is
// also cancelled when the manager stops.
func (m *Manager) Refresh(ctx context.Context) (CycleReport, error) {
	if !m.cfg.UseProxies {
		return CycleReport{}, ErrProxiesDisabled
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()

	return m.runExclusive(ctx, TriggerManual)
}

// Stop cancels any in-flight cycle and waits for the scheduler to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.cancel()
		m.wg.Wait()
		logger.Info().Msg("ProxyPool Manager gracefully stopped.")
	})
}

// runExclusive moves IDLE -> RUNNING, runs a cycle and moves back to IDLE.
func (m *Manager) runExclusive(ctx context.Context, trigger Trigger) (CycleReport, error) {
	if !m.running.CompareAndSwap(false, true) {
		return CycleReport{}, ErrRefreshInProgress
	}
	report := func() CycleReport {
		defer m.running.Store(false)
		return m.runCycle(ctx, trigger)
	}()

	m.notify(m.Status())
	return report, nil
}

// runCycle 执行一个完整的 "抓取 -> 验证 -> 替换" 周期。
// 零候选、零成功或被取消时保留现有代理池。
func (m *Manager) runCycle(ctx context.Context, trigger Trigger) CycleReport {
	report := CycleReport{
		ID:        uuid.New(),
		Trigger:   trigger,
		StartedAt: m.now(),
	}
	l := logger.WithComponent("ProxyPool/Manager").With().
		Str("cycle_id", report.ID.String()).
		Str("trigger", string(trigger)).
		Logger()
	l.Info().Msg("Starting proxy refresh cycle...")

	defer func() {
		report.WorkingCount = m.pool.Snapshot().Len()
		report.Duration = time.Since(report.StartedAt)
		l.Info().
			Int("candidates", report.Candidates).
			Int("succeeded", report.Succeeded).
			Int("promoted", report.Promoted).
			Int("working", report.WorkingCount).
			Dur("duration", report.Duration).
			Msg("Proxy refresh cycle finished.")
	}()

	candidates, err := m.fetcher.Fetch(ctx)
	if err != nil {
		report.FetchErr = err
		l.Warn().Err(err).Msg("Failed to fetch proxy candidates. Keeping current pool.")
		return report
	}
	report.Candidates = len(candidates)
	if len(candidates) == 0 {
		l.Info().Msg("No proxy candidates found. Keeping current pool.")
		return report
	}

	results := m.validator.ValidateBatch(ctx, candidates)
	for _, r := range results {
		if r.Success {
			report.Succeeded++
		}
	}

	if ctx.Err() != nil {
		l.Warn().Err(ctx.Err()).Msg("Refresh cycle cancelled. Keeping current pool.")
		return report
	}
	if report.Succeeded == 0 {
		l.Warn().Msg("No candidate passed validation. Keeping current pool.")
		return report
	}

	report.Promoted = m.pool.replace(results, m.now())
	return report
}

func (m *Manager) notify(st Status) {
	m.listenersMu.RLock()
	defer m.listenersMu.RUnlock()
	for _, fn := range m.listeners {
		fn(st)
	}
}

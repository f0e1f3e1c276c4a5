package proxypool

import (
	"sort"
	"sync/atomic"
	"time"

	"jobspy_api/proxypool/model"
)

// Snapshot 是代理池在某一时刻的不可变视图。发布后不会再被修改。
type Snapshot struct {
	Entries    []model.WorkingProxy // 按延迟升序
	LastUpdate time.Time            // 零值表示从未成功刷新
	Enabled    bool
}

// Len returns the number of working proxies.
func (s *Snapshot) Len() int {
	return len(s.Entries)
}

// Pool holds the current working-proxy set behind an atomic pointer so that
// readers never block on a refresh.
type Pool struct {
	capacity int
	current  atomic.Pointer[Snapshot]
}

// NewPool creates an empty pool.
func NewPool(capacity int, enabled bool) *Pool {
	p := &Pool{capacity: capacity}
	p.current.Store(&Snapshot{Enabled: enabled})
	return p
}

// Capacity returns the maximum number of entries.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Snapshot returns the current snapshot. Callers must not modify it.
func (p *Pool) Snapshot() *Snapshot {
	return p.current.Load()
}

// replace publishes the successful results of one cycle and returns how many
// were promoted. With no successes the current snapshot is kept as is.
// Only the manager's refresh cycle calls it, so there is a single writer.
func (p *Pool) replace(results []model.ValidationResult, now time.Time) int {
	successes := make([]model.ValidationResult, 0, len(results))
	for _, r := range results {
		if r.Success {
			successes = append(successes, r)
		}
	}
	if len(successes) == 0 {
		return 0
	}

	// 稳定排序：延迟相同时保持发现顺序
	sort.SliceStable(successes, func(i, j int) bool {
		return successes[i].Latency < successes[j].Latency
	})
	if p.capacity > 0 && len(successes) > p.capacity {
		successes = successes[:p.capacity]
	}

	entries := make([]model.WorkingProxy, len(successes))
	for i, r := range successes {
		entries[i] = model.NewWorkingProxy(r, now)
	}

	prev := p.current.Load()
	lastUpdate := now
	if prev.LastUpdate.After(now) {
		lastUpdate = prev.LastUpdate
	}
	p.current.Store(&Snapshot{
		Entries:    entries,
		LastUpdate: lastUpdate,
		Enabled:    prev.Enabled,
	})
	return len(entries)
}

package proxypool

import "time"

// Label summarizes the pool health.
type Label string

const (
	LabelDisabled Label = "disabled"
	LabelHealthy  Label = "healthy"
	LabelDegraded Label = "degraded"
)

// Status is a point-in-time health report of the proxy subsystem.
type Status struct {
	Enabled         bool
	WorkingCount    int
	LastUpdate      time.Time // 零值表示从未成功刷新
	Label           Label
	FallbackEnabled bool
}

// StatusOf derives the health report from a snapshot.
func StatusOf(snap *Snapshot, fallback bool) Status {
	st := Status{
		Enabled:         snap.Enabled,
		WorkingCount:    snap.Len(),
		LastUpdate:      snap.LastUpdate,
		FallbackEnabled: fallback,
	}
	switch {
	case !snap.Enabled:
		st.Label = LabelDisabled
	case st.WorkingCount > 0:
		st.Label = LabelHealthy
	default:
		st.Label = LabelDegraded
	}
	return st
}

// ScrapingAvailable reports whether a job search can currently go out,
// through a proxy or directly.
func (s Status) ScrapingAvailable() bool {
	return !s.Enabled || s.WorkingCount > 0 || s.FallbackEnabled
}

// LastUpdateUnix returns the last update as epoch seconds, or nil if the pool
// was never populated.
func (s Status) LastUpdateUnix() *int64 {
	if s.LastUpdate.IsZero() {
		return nil
	}
	ts := s.LastUpdate.Unix()
	return &ts
}

package proxypool

import (
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"

	"jobspy_api/proxypool/model"
)

// ErrProxyDenied is returned by the transport proxy hook when no working
// proxy exists and direct fallback is disabled.
var ErrProxyDenied = errors.New("no working proxy available and direct fallback is disabled")

// Verdict is the outcome of a proxy selection.
type Verdict int

const (
	UseDirect Verdict = iota
	UseProxy
	Denied
)

func (v Verdict) String() string {
	switch v {
	case UseDirect:
		return "direct"
	case UseProxy:
		return "proxy"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Decision 是一次代理选择的结果。Proxy 仅在 UseProxy 时有效。
type Decision struct {
	Verdict Verdict
	Proxy   model.WorkingProxy
}

// ProxyURL returns the proxy to dial, or nil unless the verdict is UseProxy.
func (d Decision) ProxyURL() *url.URL {
	if d.Verdict != UseProxy {
		return nil
	}
	return d.Proxy.URL()
}

// Selector hands out working proxies round-robin. It only reads the pool
// snapshot and an atomic counter, so it never waits on a refresh.
type Selector struct {
	pool     *Pool
	fallback bool
	next     atomic.Uint64
}

// NewSelector creates a selector over pool.
func NewSelector(pool *Pool, fallback bool) *Selector {
	return &Selector{pool: pool, fallback: fallback}
}

// FallbackEnabled reports whether direct connections are allowed when the
// pool is empty.
func (s *Selector) FallbackEnabled() bool {
	return s.fallback
}

// Select picks the proxy for one outbound request.
func (s *Selector) Select() Decision {
	snap := s.pool.Snapshot()
	if !snap.Enabled {
		return Decision{Verdict: UseDirect}
	}
	if n := len(snap.Entries); n > 0 {
		i := (s.next.Add(1) - 1) % uint64(n)
		return Decision{Verdict: UseProxy, Proxy: snap.Entries[i]}
	}
	if s.fallback {
		return Decision{Verdict: UseDirect}
	}
	return Decision{Verdict: Denied}
}

// ProxyFunc adapts the selector to http.Transport.Proxy. The transport calls
// it once per request, so every outbound attempt gets its own decision.
func (s *Selector) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(*http.Request) (*url.URL, error) {
		d := s.Select()
		if d.Verdict == Denied {
			return nil, ErrProxyDenied
		}
		return d.ProxyURL(), nil
	}
}

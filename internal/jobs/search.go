package jobs

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"jobspy_api/internal/shared/logger"
	"jobspy_api/proxypool"
)

// Error types reported in a failed Result.
const (
	ErrorTypeProxyUnavailable = "proxy_unavailable"
	ErrorTypeScrapingFailed   = "scraping_failed"
)

// ErrorInfo describes why a search produced no jobs.
type ErrorInfo struct {
	ErrorType        string   `json:"error_type"`
	Message          string   `json:"message"`
	SuggestedActions []string `json:"suggested_actions"`
}

// Metadata accompanies every search result.
type Metadata struct {
	UsedProxies bool   `json:"used_proxies"`
	SearchTerm  string `json:"search_term"`
	Location    string `json:"location"`
	Results     int    `json:"results"`
}

// Result 是一次搜索的结构化结果。抓取错误不会以 error 形式返回。
type Result struct {
	Success  bool       `json:"success"`
	Jobs     []Job      `json:"jobs"`
	Metadata Metadata   `json:"metadata"`
	Error    *ErrorInfo `json:"error,omitempty"`
}

// Selector is the part of the proxy pool the searcher needs.
type Selector interface {
	ProxyFunc() func(*http.Request) (*url.URL, error)
	FallbackEnabled() bool
}

// Searcher runs job searches through the proxy selector.
type Searcher struct {
	provider Provider
	selector Selector
}

// NewSearcher creates a Searcher.
func NewSearcher(provider Provider, selector Selector) *Searcher {
	return &Searcher{provider: provider, selector: selector}
}

// Search runs one search. A denied proxy selection yields an empty
// proxy_unavailable result; a proxy failure is retried once without proxies
// when fallback is enabled; any other failure yields scraping_failed.
func (s *Searcher) Search(ctx context.Context, params SearchParams) Result {
	l := logger.WithComponent("Jobs/Search")
	l.Info().Str("search_term", params.SearchTerm).Str("location", params.Location).Str("provider", s.provider.Name()).Msg("Searching jobs...")

	var usedProxy atomic.Bool
	selectProxy := s.selector.ProxyFunc()
	proxy := func(r *http.Request) (*url.URL, error) {
		u, err := selectProxy(r)
		if u != nil {
			usedProxy.Store(true)
		}
		return u, err
	}

	jobs, err := s.provider.Search(ctx, params, proxy)
	if err == nil {
		return s.success(params, jobs, usedProxy.Load())
	}

	if errors.Is(err, proxypool.ErrProxyDenied) {
		l.Error().Err(err).Msg("No working proxies and fallback disabled. Aborting search to avoid rate limiting.")
		return failure(params, usedProxy.Load(), ErrorTypeProxyUnavailable,
			"No working proxies are available and direct scraping is disabled.",
			[]string{
				"Wait for the next proxy refresh and try again",
				"Trigger a refresh with POST /admin/refresh-proxies",
				"Set PROXY_FALLBACK_ENABLED=true to allow direct scraping",
			})
	}

	if usedProxy.Load() && s.selector.FallbackEnabled() && isProxyError(err) {
		l.Warn().Err(err).Msg("Proxy scraping failed. Retrying without proxies...")
		jobs, retryErr := s.provider.Search(ctx, params, nil)
		if retryErr == nil {
			return s.success(params, jobs, false)
		}
		l.Error().Err(retryErr).Msg("Direct scraping also failed.")
		err = retryErr
	} else {
		l.Error().Err(err).Msg("Error scraping jobs.")
	}

	return failure(params, usedProxy.Load(), ErrorTypeScrapingFailed,
		"Job scraping failed: "+err.Error(),
		[]string{
			"Try again in a few minutes",
			"Reduce results_wanted or broaden the search",
			"Check GET /health/scraping for proxy availability",
		})
}

func (s *Searcher) success(params SearchParams, jobs []Job, usedProxy bool) Result {
	if jobs == nil {
		jobs = []Job{}
	}
	logger.WithComponent("Jobs/Search").Info().Int("count", len(jobs)).Bool("used_proxies", usedProxy).Msg("Successfully scraped jobs.")
	return Result{
		Success: true,
		Jobs:    jobs,
		Metadata: Metadata{
			UsedProxies: usedProxy,
			SearchTerm:  params.SearchTerm,
			Location:    params.Location,
			Results:     len(jobs),
		},
	}
}

func failure(params SearchParams, usedProxy bool, errorType, message string, actions []string) Result {
	return Result{
		Success: false,
		Jobs:    []Job{},
		Metadata: Metadata{
			UsedProxies: usedProxy,
			SearchTerm:  params.SearchTerm,
			Location:    params.Location,
		},
		Error: &ErrorInfo{
			ErrorType:        errorType,
			Message:          message,
			SuggestedActions: actions,
		},
	}
}

// isProxyError reports whether err came from talking to the proxy rather
// than to the job site. Only transport errors are considered; a job site
// response that merely mentions a proxy is not one.
func isProxyError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "proxyconnect" {
		return true
	}
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return false
	}
	// CONNECT 被拒绝 ("proxy error from ...") 或 SOCKS 握手失败
	msg := strings.ToLower(urlErr.Err.Error())
	return strings.HasPrefix(msg, "proxy error") || strings.HasPrefix(msg, "socks connect")
}

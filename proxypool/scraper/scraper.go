package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"jobspy_api/internal/shared/config"
	"jobspy_api/internal/shared/logger"
	"jobspy_api/internal/shared/types"
	"jobspy_api/proxypool/model"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Scraper 接口定义了从代理源抓取候选代理的行为。
type Scraper interface {
	// Scrape 执行一次带超时的抓取，并返回规范化后的候选代理。
	// 实现者只负责抓取和解析，不做验证，也不做重试；格式错误的条目直接丢弃。
	Scrape(ctx context.Context) ([]model.Candidate, error)

	// Name 返回抓取器的名称，用于日志记录。
	Name() string
}

// FetchError reports a provider that could not be fetched or parsed. It is
// never fatal: the refresh cycle treats it as zero candidates.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch from %s failed: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Aggregator fans a fetch out to every configured provider and merges the
// results in provider order, keeping the first occurrence of each proxy.
type Aggregator struct {
	scrapers []Scraper
	limit    int
}

// NewAggregator creates an Aggregator. A non-positive limit disables the cap.
func NewAggregator(limit int, scrapers ...Scraper) *Aggregator {
	return &Aggregator{scrapers: scrapers, limit: limit}
}

// NewFromConfig builds the Aggregator for the providers named in cfg.Sources.
func NewFromConfig(cfg types.ProxyConf) (*Aggregator, error) {
	timeout := cfg.FetchTimeoutDuration()
	scrapers := make([]Scraper, 0, len(cfg.Sources))
	for _, name := range cfg.Sources {
		switch strings.TrimSpace(name) {
		case config.SourceProxifly:
			scrapers = append(scrapers, NewProxiflyScraper(timeout))
		case config.SourceSSLProxies:
			scrapers = append(scrapers, NewSSLProxiesScraper(timeout))
		case config.SourceFreeProxyList:
			scrapers = append(scrapers, NewFreeProxyListScraper(timeout))
		case config.SourceProxydb:
			scrapers = append(scrapers, NewProxydbScraper(timeout))
		case config.SourceProxyListDL:
			scrapers = append(scrapers, NewProxyListDownloadScraper(timeout))
		default:
			return nil, fmt.Errorf("unknown proxy source %q", name)
		}
	}
	return NewAggregator(cfg.MaxCandidates, scrapers...), nil
}

// Sources returns the names of the configured providers.
func (a *Aggregator) Sources() []string {
	names := make([]string, len(a.scrapers))
	for i, s := range a.scrapers {
		names[i] = s.Name()
	}
	return names
}

// Fetch returns the merged candidates. It returns a *FetchError only when
// every provider failed; partial failures are logged and skipped.
func (a *Aggregator) Fetch(ctx context.Context) ([]model.Candidate, error) {
	l := logger.WithComponent("ProxyPool/Scraper")
	if len(a.scrapers) == 0 {
		return nil, &FetchError{Source: "aggregator", Err: errors.New("no proxy sources configured")}
	}

	type scrapeResult struct {
		candidates []model.Candidate
		err        error
	}
	results := make([]scrapeResult, len(a.scrapers))

	var wg sync.WaitGroup
	for i, s := range a.scrapers {
		wg.Add(1)
		go func(idx int, sc Scraper) {
			defer wg.Done()
			start := time.Now()
			candidates, err := sc.Scrape(ctx)
			if err != nil {
				l.Warn().Err(err).Str("source", sc.Name()).Msg("Scraper failed.")
			} else {
				l.Debug().Str("source", sc.Name()).Int("count", len(candidates)).Dur("elapsed", time.Since(start)).Msg("Scraper finished.")
			}
			results[idx] = scrapeResult{candidates: candidates, err: err}
		}(i, s)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	merged := make([]model.Candidate, 0)
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		for _, c := range r.candidates {
			if _, dup := seen[c.Key()]; dup {
				continue
			}
			seen[c.Key()] = struct{}{}
			merged = append(merged, c)
		}
	}

	if len(errs) == len(a.scrapers) {
		return nil, &FetchError{Source: "all sources", Err: errors.Join(errs...)}
	}

	if a.limit > 0 && len(merged) > a.limit {
		merged = merged[:a.limit]
	}
	l.Info().Int("count", len(merged)).Int("failed_sources", len(errs)).Msg("Candidate fetch finished.")
	return merged, nil
}

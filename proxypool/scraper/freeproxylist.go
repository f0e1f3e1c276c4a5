package scraper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"jobspy_api/internal/shared/logger"
	"jobspy_api/proxypool/model"
)

const defaultFreeProxyListURL = "https://free-proxy-list.net/"

// FreeProxyListScraper crawls the free-proxy-list.net table with colly.
type FreeProxyListScraper struct {
	timeout time.Duration
	url     string
}

// NewFreeProxyListScraper creates a new FreeProxyListScraper. An optional url
// overrides the default page.
func NewFreeProxyListScraper(timeout time.Duration, url ...string) Scraper {
	s := &FreeProxyListScraper{timeout: timeout, url: defaultFreeProxyListURL}
	if len(url) > 0 && url[0] != "" {
		s.url = url[0]
	}
	return s
}

func (s *FreeProxyListScraper) Name() string {
	return "free-proxy-list"
}

func (s *FreeProxyListScraper) Scrape(ctx context.Context) ([]model.Candidate, error) {
	l := logger.WithComponent("ProxyPool/Scraper")

	// 每次抓取使用新的 collector，避免 colly 的已访问 URL 缓存
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(s.timeout)

	var (
		mu         sync.Mutex
		candidates []model.Candidate
		scrapeErr  error
	)

	c.OnHTML("table.table tbody tr", func(e *colly.HTMLElement) {
		ip := strings.TrimSpace(e.ChildText("td:nth-child(1)"))
		portStr := strings.TrimSpace(e.ChildText("td:nth-child(2)"))
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return
		}
		cand, err := model.NewCandidate(ip, port, string(model.ProtocolHTTP), s.Name())
		if err != nil {
			return
		}
		mu.Lock()
		candidates = append(candidates, cand)
		mu.Unlock()
	})

	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		if r != nil && r.StatusCode != 0 {
			scrapeErr = fmt.Errorf("received status code %d: %w", r.StatusCode, err)
			return
		}
		scrapeErr = err
	})

	if err := c.Visit(s.url); err != nil && scrapeErr == nil {
		scrapeErr = err
	}
	c.Wait()

	if scrapeErr != nil {
		return nil, &FetchError{Source: s.Name(), Err: scrapeErr}
	}

	l.Debug().Int("count", len(candidates)).Str("source", s.Name()).Msg("Scrape finished.")
	return candidates, nil
}

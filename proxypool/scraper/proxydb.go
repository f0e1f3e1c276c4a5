package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"jobspy_api/internal/shared/logger"
	"jobspy_api/proxypool/model"
)

const (
	defaultProxydbURL = "https://proxydb.net/"
	// proxydb.net 的分页是通过 offset 参数控制的，每次递增 15
	proxydbPageSize = 15
	proxydbPages    = 3
)

// ProxydbScraper 实现了 Scraper 接口，用于抓取 proxydb.net 的免费代理。
type ProxydbScraper struct {
	client    *http.Client
	url       string
	pageDelay time.Duration
}

// NewProxydbScraper 创建一个新的 ProxydbScraper 实例。An optional url overrides
// the default page.
func NewProxydbScraper(timeout time.Duration, url ...string) Scraper {
	s := &ProxydbScraper{
		client: &http.Client{
			Timeout: timeout,
		},
		url:       defaultProxydbURL,
		pageDelay: 2 * time.Second,
	}
	if len(url) > 0 && url[0] != "" {
		s.url = url[0]
		s.pageDelay = 0
	}
	return s
}

// Name 返回抓取器的名称。
func (s *ProxydbScraper) Name() string {
	return "proxydb"
}

// Scrape 抓取前几页。单页失败只记录日志，全部失败才返回错误。
func (s *ProxydbScraper) Scrape(ctx context.Context) ([]model.Candidate, error) {
	l := logger.WithComponent("ProxyPool/Scraper")

	var candidates []model.Candidate
	var lastErr error
	failed := 0
	for page := 0; page < proxydbPages; page++ {
		if page > 0 && s.pageDelay > 0 {
			// 友好抓取
			select {
			case <-time.After(s.pageDelay):
			case <-ctx.Done():
				return nil, &FetchError{Source: s.Name(), Err: ctx.Err()}
			}
		}

		target := fmt.Sprintf("%s?country=US&protocol=http&protocol=https&protocol=socks5&offset=%d", s.url, page*proxydbPageSize)
		parsed, err := s.scrapePage(ctx, target)
		if err != nil {
			l.Warn().Err(err).Str("url", target).Str("source", s.Name()).Msg("Failed to scrape page.")
			lastErr = err
			failed++
			continue
		}
		candidates = append(candidates, parsed...)
	}

	if failed == proxydbPages {
		return nil, &FetchError{Source: s.Name(), Err: lastErr}
	}
	l.Debug().Int("count", len(candidates)).Str("source", s.Name()).Msg("Scrape finished.")
	return candidates, nil
}

func (s *ProxydbScraper) scrapePage(ctx context.Context, target string) ([]model.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code (%d)", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML document: %w", err)
	}

	var candidates []model.Candidate
	doc.Find("tbody tr").Each(func(_ int, sel *goquery.Selection) {
		cells := sel.Find("td")
		ip := strings.TrimSpace(cells.Eq(0).Find("a").Text())
		portStr := strings.TrimSpace(cells.Eq(1).Find("a").Text())
		// 第三列是协议类型 (HTTP / HTTPS / SOCKS5)
		protocol := strings.TrimSpace(cells.Eq(2).Text())

		port, err := strconv.Atoi(portStr)
		if err != nil {
			return
		}
		c, err := model.NewCandidate(ip, port, protocol, s.Name())
		if err != nil {
			return
		}
		candidates = append(candidates, c)
	})
	return candidates, nil
}

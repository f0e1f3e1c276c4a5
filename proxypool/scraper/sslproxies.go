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

const defaultSSLProxiesURL = "https://www.sslproxies.org/"

// SSLProxiesScraper 实现了 Scraper 接口，解析 sslproxies.org 的代理表格。
type SSLProxiesScraper struct {
	client *http.Client
	url    string
}

// NewSSLProxiesScraper creates a new SSLProxiesScraper. An optional url
// overrides the default page.
func NewSSLProxiesScraper(timeout time.Duration, url ...string) Scraper {
	s := &SSLProxiesScraper{
		client: &http.Client{
			Timeout: timeout,
		},
		url: defaultSSLProxiesURL,
	}
	if len(url) > 0 && url[0] != "" {
		s.url = url[0]
	}
	return s
}

func (s *SSLProxiesScraper) Name() string {
	return "sslproxies"
}

func (s *SSLProxiesScraper) Scrape(ctx context.Context) ([]model.Candidate, error) {
	l := logger.WithComponent("ProxyPool/Scraper")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, &FetchError{Source: s.Name(), Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: s.Name(), Err: fmt.Errorf("failed to fetch page: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Source: s.Name(), Err: fmt.Errorf("received non-200 status code (%d)", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &FetchError{Source: s.Name(), Err: fmt.Errorf("failed to parse HTML: %w", err)}
	}

	var candidates []model.Candidate
	doc.Find("table.table tbody tr").Each(func(_ int, sel *goquery.Selection) {
		cells := sel.Find("td")
		ip := strings.TrimSpace(cells.Eq(0).Text())
		portStr := strings.TrimSpace(cells.Eq(1).Text())

		port, err := strconv.Atoi(portStr)
		if err != nil {
			return
		}
		// 表格中的代理都是 HTTP 代理（Https 列只表示是否支持 CONNECT）
		c, err := model.NewCandidate(ip, port, string(model.ProtocolHTTP), s.Name())
		if err != nil {
			l.Debug().Str("ip", ip).Str("port", portStr).Msg("Skipping malformed row.")
			return
		}
		candidates = append(candidates, c)
	})

	l.Debug().Int("count", len(candidates)).Str("source", s.Name()).Msg("Scrape finished.")
	return candidates, nil
}

package scraper

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"jobspy_api/internal/shared/logger"
	"jobspy_api/proxypool/model"
)

// Plain-text "ip:port" lists published by the proxifly free-proxy-list project.
var defaultProxiflyURLs = []string{
	"https://cdn.jsdelivr.net/gh/proxifly/free-proxy-list@main/proxies/protocols/http/data.txt",
	"https://cdn.jsdelivr.net/gh/proxifly/free-proxy-list@main/proxies/countries/US/data.txt",
}

// ProxiflyScraper 实现了 Scraper 接口，读取 proxifly 的纯文本代理列表。
type ProxiflyScraper struct {
	client *resty.Client
	urls   []string
}

// NewProxiflyScraper creates a scraper for the default proxifly lists.
func NewProxiflyScraper(timeout time.Duration, urls ...string) Scraper {
	if len(urls) == 0 {
		urls = defaultProxiflyURLs
	}
	return &ProxiflyScraper{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent),
		urls: urls,
	}
}

func (s *ProxiflyScraper) Name() string {
	return "proxifly"
}

// Scrape fetches every list once. It fails only when all lists failed.
func (s *ProxiflyScraper) Scrape(ctx context.Context) ([]model.Candidate, error) {
	l := logger.WithComponent("ProxyPool/Scraper")

	var candidates []model.Candidate
	var errs []error
	for _, url := range s.urls {
		resp, err := s.client.R().SetContext(ctx).Get(url)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to fetch %s: %w", url, err))
			continue
		}
		if !resp.IsSuccess() {
			errs = append(errs, fmt.Errorf("received non-200 status code (%d) from %s", resp.StatusCode(), url))
			continue
		}

		parsed := parseProxyList(resp.String(), string(model.ProtocolHTTP), s.Name())
		l.Debug().Str("url", url).Int("count", len(parsed)).Msg("Fetched proxy list.")
		candidates = append(candidates, parsed...)
	}

	if len(errs) == len(s.urls) {
		return nil, &FetchError{Source: s.Name(), Err: errors.Join(errs...)}
	}
	return candidates, nil
}

// parseProxyList parses one "ip:port" (optionally "scheme://ip:port") entry
// per line. Blank, comment and malformed lines are skipped.
func parseProxyList(body, defaultProtocol, source string) []model.Candidate {
	var candidates []model.Candidate
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c, err := model.ParseHostPort(line, defaultProtocol, source)
		if err != nil {
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates
}

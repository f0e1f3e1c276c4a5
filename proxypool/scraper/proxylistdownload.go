package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"jobspy_api/internal/shared/logger"
	"jobspy_api/proxypool/model"
)

const defaultProxyListDownloadURL = "https://www.proxy-list.download/api/v1/get"

// ProxyListDownloadScraper 实现了 Scraper 接口，读取 proxy-list.download 的纯文本 API。
type ProxyListDownloadScraper struct {
	client    *resty.Client
	url       string
	protocols []model.Protocol
}

// NewProxyListDownloadScraper 创建一个新的实例。An optional url overrides
// the default API endpoint.
func NewProxyListDownloadScraper(timeout time.Duration, url ...string) Scraper {
	s := &ProxyListDownloadScraper{
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("User-Agent", userAgent),
		url:       defaultProxyListDownloadURL,
		protocols: []model.Protocol{model.ProtocolHTTP, model.ProtocolSOCKS5},
	}
	if len(url) > 0 && url[0] != "" {
		s.url = url[0]
	}
	return s
}

func (s *ProxyListDownloadScraper) Name() string {
	return "proxy-list-download"
}

// Scrape requests one list per protocol; the API answers "ip:port" lines.
func (s *ProxyListDownloadScraper) Scrape(ctx context.Context) ([]model.Candidate, error) {
	l := logger.WithComponent("ProxyPool/Scraper")

	var candidates []model.Candidate
	var lastErr error
	failed := 0
	for _, proto := range s.protocols {
		resp, err := s.client.R().
			SetContext(ctx).
			SetQueryParam("type", string(proto)).
			Get(s.url)
		if err != nil {
			lastErr = fmt.Errorf("failed to fetch %s list: %w", proto, err)
			failed++
			continue
		}
		if !resp.IsSuccess() {
			lastErr = fmt.Errorf("received non-200 status code (%d) for %s list", resp.StatusCode(), proto)
			failed++
			continue
		}
		candidates = append(candidates, parseProxyList(resp.String(), string(proto), s.Name())...)
	}

	if failed == len(s.protocols) {
		return nil, &FetchError{Source: s.Name(), Err: lastErr}
	}
	l.Debug().Int("count", len(candidates)).Str("source", s.Name()).Msg("Scrape finished.")
	return candidates, nil
}

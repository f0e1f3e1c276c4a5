package jobs

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"jobspy_api/internal/shared/logger"
)

const (
	defaultLinkedInURL = "https://www.linkedin.com"
	searchPath         = "/jobs-guest/jobs/api/seeMoreJobPostings/search"
	jobViewPath        = "/jobs/view/"

	linkedInPageSize = 25
	// LinkedIn 访客接口最多返回 1000 条结果
	linkedInMaxStart = 1000

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var linkedInJobTypes = map[string]string{
	JobTypeFullTime:   "F",
	JobTypePartTime:   "P",
	JobTypeInternship: "I",
	JobTypeContract:   "C",
}

// LinkedInScraper pages through the public guest job-search listing.
type LinkedInScraper struct {
	baseURL          string
	timeout          time.Duration
	fetchDescription bool
}

// LinkedInOption configures a LinkedInScraper.
type LinkedInOption func(*LinkedInScraper)

// WithBaseURL points the scraper at another host, e.g. a test server.
func WithBaseURL(u string) LinkedInOption {
	return func(s *LinkedInScraper) {
		s.baseURL = strings.TrimRight(u, "/")
	}
}

// WithDescriptions makes the scraper open every job page to read its
// description and direct apply URL.
func WithDescriptions(enabled bool) LinkedInOption {
	return func(s *LinkedInScraper) {
		s.fetchDescription = enabled
	}
}

// NewLinkedInScraper creates a scraper whose requests time out after timeout.
func NewLinkedInScraper(timeout time.Duration, opts ...LinkedInOption) *LinkedInScraper {
	s := &LinkedInScraper{baseURL: defaultLinkedInURL, timeout: timeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LinkedInScraper) Name() string {
	return "linkedin"
}

// Search collects up to params.ResultsWanted jobs. An error is returned only
// if nothing could be collected; later page failures end the search early.
func (s *LinkedInScraper) Search(ctx context.Context, params SearchParams, proxy ProxyFunc) ([]Job, error) {
	l := logger.WithComponent("Jobs/LinkedIn")
	client := s.newClient(proxy)
	defer client.CloseIdleConnections()

	jobs := make([]Job, 0, params.ResultsWanted)
	seen := make(map[string]struct{})

	for start := params.Offset; len(jobs) < params.ResultsWanted && start < linkedInMaxStart; start += linkedInPageSize {
		page, err := s.fetchPage(ctx, client, params, start)
		if err != nil {
			if len(jobs) == 0 {
				return nil, err
			}
			l.Warn().Err(err).Int("start", start).Int("collected", len(jobs)).Msg("Stopping search after page failure.")
			break
		}

		added := 0
		for _, job := range page {
			if _, dup := seen[job.ID]; dup {
				continue
			}
			seen[job.ID] = struct{}{}
			jobs = append(jobs, job)
			added++
			if len(jobs) >= params.ResultsWanted {
				break
			}
		}
		if added == 0 {
			break
		}
	}

	if s.fetchDescription {
		for i := range jobs {
			if err := s.fillDetails(ctx, client, &jobs[i]); err != nil {
				l.Debug().Err(err).Str("job_id", jobs[i].ID).Msg("Failed to fetch job details.")
			}
		}
	}

	l.Info().Int("count", len(jobs)).Str("search_term", params.SearchTerm).Msg("LinkedIn search finished.")
	return jobs, nil
}

func (s *LinkedInScraper) newClient(proxy ProxyFunc) *http.Client {
	dialer := &net.Dialer{
		Timeout:   s.timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 proxy,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &tls.Config{},
		TLSHandshakeTimeout:   s.timeout,
		IdleConnTimeout:       s.timeout,
		ExpectContinueTimeout: 1 * time.Second,
		// 每个请求都重新选择代理
		DisableKeepAlives: true,
	}
	return &http.Client{Transport: transport, Timeout: s.timeout}
}

func (s *LinkedInScraper) searchURL(params SearchParams, start int) string {
	q := url.Values{}
	q.Set("keywords", params.SearchTerm)
	q.Set("location", params.Location)
	if params.Distance > 0 {
		q.Set("distance", strconv.Itoa(params.Distance))
	}
	if params.IsRemote {
		q.Set("f_WT", "2")
	}
	if code, ok := linkedInJobTypes[params.JobType]; ok {
		q.Set("f_JT", code)
	}
	if params.HoursOld > 0 {
		q.Set("f_TPR", "r"+strconv.Itoa(params.HoursOld*3600))
	}
	q.Set("start", strconv.Itoa(start))
	return s.baseURL + searchPath + "?" + q.Encode()
}

func (s *LinkedInScraper) get(ctx context.Context, client *http.Client, target string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limited by linkedin (status %d)", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("received non-2xx status code (%d)", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

func (s *LinkedInScraper) fetchPage(ctx context.Context, client *http.Client, params SearchParams, start int) ([]Job, error) {
	doc, err := s.get(ctx, client, s.searchURL(params, start))
	if err != nil {
		return nil, err
	}
	return parseJobCards(doc, params, s.baseURL), nil
}

// parseJobCards extracts jobs from a listing page. Cards without a job id
// are skipped.
func parseJobCards(doc *goquery.Document, params SearchParams, baseURL string) []Job {
	var jobs []Job
	doc.Find("div.base-search-card").Each(func(_ int, card *goquery.Selection) {
		urn, _ := card.Attr("data-entity-urn")
		id := urn[strings.LastIndex(urn, ":")+1:]
		if id == "" {
			return
		}

		location := strings.TrimSpace(card.Find("span.job-search-card__location").Text())
		job := Job{
			ID:       "li-" + id,
			JobURL:   baseURL + jobViewPath + id,
			Title:    strings.TrimSpace(card.Find("h3.base-search-card__title").Text()),
			Company:  strings.TrimSpace(card.Find("h4.base-search-card__subtitle").Text()),
			Location: location,
			JobType:  params.JobType,
			IsRemote: params.IsRemote || strings.Contains(strings.ToLower(location), "remote"),
		}
		jobs = append(jobs, job)
	})
	return jobs
}

// fillDetails reads the description and the external apply link from the
// job page.
func (s *LinkedInScraper) fillDetails(ctx context.Context, client *http.Client, job *Job) error {
	doc, err := s.get(ctx, client, job.JobURL)
	if err != nil {
		return err
	}
	job.Description = strings.TrimSpace(doc.Find("div.show-more-less-html__markup").Text())

	// applyUrl 放在注释里: <!--"https://www.linkedin.com/jobs/view/externalApply/...?url=<encoded>"-->
	if raw, _ := doc.Find("code#applyUrl").Html(); raw != "" {
		applyURL := strings.TrimSpace(raw)
		applyURL = strings.TrimSuffix(strings.TrimPrefix(applyURL, "<!--"), "-->")
		applyURL = strings.Trim(strings.TrimSpace(applyURL), `"`)
		if u, err := url.Parse(applyURL); err == nil {
			if direct := u.Query().Get("url"); direct != "" {
				job.JobURLDirect = direct
			}
		}
	}
	return nil
}

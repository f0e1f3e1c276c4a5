package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jobspy_api/internal/shared/config"
	"jobspy_api/proxypool/model"
)

const proxyTablePage = `<html><body>
<table class="table table-striped table-bordered">
<thead><tr><th>IP Address</th><th>Port</th><th>Code</th></tr></thead>
<tbody>
<tr><td>1.1.1.1</td><td>8080</td><td>US</td></tr>
<tr><td>2.2.2.2</td><td>3128</td><td>DE</td></tr>
<tr><td>bad ip</td><td>80</td><td>XX</td></tr>
<tr><td>3.3.3.3</td><td>port</td><td>FR</td></tr>
</tbody>
</table>
</body></html>`

type stubScraper struct {
	name       string
	candidates []model.Candidate
	err        error
}

func (s *stubScraper) Scrape(context.Context) ([]model.Candidate, error) {
	return s.candidates, s.err
}

func (s *stubScraper) Name() string { return s.name }

func mustCandidate(t *testing.T, addr string, port int, source string) model.Candidate {
	t.Helper()
	c, err := model.NewCandidate(addr, port, "http", source)
	if err != nil {
		t.Fatalf("NewCandidate(%s:%d) returned an error: %v", addr, port, err)
	}
	return c
}

func TestProxiflyScraper(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "1.1.1.1:8080\n\n# comment\nnot-a-proxy\nsocks5://2.2.2.2:1080\r\n")
	}))
	defer ok.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	t.Run("one list failing is tolerated", func(t *testing.T) {
		s := NewProxiflyScraper(2*time.Second, broken.URL, ok.URL)
		got, err := s.Scrape(context.Background())
		if err != nil {
			t.Fatalf("Scrape() returned an error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 candidates, got %d: %+v", len(got), got)
		}
		if got[0].Key() != "http://1.1.1.1:8080" || got[1].Key() != "socks5://2.2.2.2:1080" {
			t.Errorf("unexpected candidates: %+v", got)
		}
		if got[0].Source != "proxifly" {
			t.Errorf("expected source proxifly, got %q", got[0].Source)
		}
	})

	t.Run("all lists failing is a fetch error", func(t *testing.T) {
		s := NewProxiflyScraper(2*time.Second, broken.URL)
		_, err := s.Scrape(context.Background())
		var fe *FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("expected a *FetchError, got %v", err)
		}
		if fe.Source != "proxifly" {
			t.Errorf("expected source proxifly, got %q", fe.Source)
		}
	})
}

func TestTableScrapers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, proxyTablePage)
	}))
	defer srv.Close()

	scrapers := []Scraper{
		NewSSLProxiesScraper(2*time.Second, srv.URL),
		NewFreeProxyListScraper(2*time.Second, srv.URL),
	}
	for _, s := range scrapers {
		t.Run(s.Name(), func(t *testing.T) {
			got, err := s.Scrape(context.Background())
			if err != nil {
				t.Fatalf("Scrape() returned an error: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("expected 2 well-formed rows, got %d: %+v", len(got), got)
			}
			if got[0].Key() != "http://1.1.1.1:8080" || got[1].Key() != "http://2.2.2.2:3128" {
				t.Errorf("unexpected candidates: %+v", got)
			}
			if got[0].Source != s.Name() {
				t.Errorf("expected source %q, got %q", s.Name(), got[0].Source)
			}
		})
	}
}

func TestTableScrapers_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	for _, s := range []Scraper{
		NewSSLProxiesScraper(2*time.Second, srv.URL),
		NewFreeProxyListScraper(2*time.Second, srv.URL),
	} {
		var fe *FetchError
		if _, err := s.Scrape(context.Background()); !errors.As(err, &fe) {
			t.Errorf("%s: expected a *FetchError, got %v", s.Name(), err)
		}
	}
}

func TestAggregator_Fetch(t *testing.T) {
	a := &stubScraper{name: "a", candidates: []model.Candidate{
		mustCandidate(t, "1.1.1.1", 80, "a"),
		mustCandidate(t, "2.2.2.2", 80, "a"),
	}}
	b := &stubScraper{name: "b", candidates: []model.Candidate{
		mustCandidate(t, "2.2.2.2", 80, "b"),
		mustCandidate(t, "3.3.3.3", 80, "b"),
	}}
	broken := &stubScraper{name: "broken", err: errors.New("boom")}

	t.Run("dedup keeps first occurrence in provider order", func(t *testing.T) {
		got, err := NewAggregator(0, a, broken, b).Fetch(context.Background())
		if err != nil {
			t.Fatalf("Fetch() returned an error: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 candidates, got %d", len(got))
		}
		if got[1].Source != "a" || got[2].Address != "3.3.3.3" {
			t.Errorf("unexpected merge order: %+v", got)
		}
	})

	t.Run("limit caps candidates", func(t *testing.T) {
		got, err := NewAggregator(2, a, b).Fetch(context.Background())
		if err != nil {
			t.Fatalf("Fetch() returned an error: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("expected 2 candidates, got %d", len(got))
		}
	})

	t.Run("all providers failing", func(t *testing.T) {
		_, err := NewAggregator(0, broken).Fetch(context.Background())
		var fe *FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("expected a *FetchError, got %v", err)
		}
	})

	t.Run("empty but successful provider is not an error", func(t *testing.T) {
		got, err := NewAggregator(0, &stubScraper{name: "empty"}).Fetch(context.Background())
		if err != nil || len(got) != 0 {
			t.Errorf("expected no candidates and no error, got %d, %v", len(got), err)
		}
	})
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default().ProxyConf
	agg, err := NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig() returned an error: %v", err)
	}
	if len(agg.Sources()) != len(cfg.Sources) {
		t.Errorf("expected %d sources, got %v", len(cfg.Sources), agg.Sources())
	}

	cfg.Sources = []string{"nope"}
	if _, err := NewFromConfig(cfg); err == nil {
		t.Error("expected an unknown source to be rejected")
	}
}

func TestProxydbScraper(t *testing.T) {
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offsets = append(offsets, r.URL.Query().Get("offset"))
		if r.URL.Query().Get("offset") == "15" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `<table><tbody>
<tr><td><a>4.4.4.4</a></td><td><a>1080</a></td><td>SOCKS5</td></tr>
<tr><td><a>5.5.5.5</a></td><td><a>8080</a></td><td>HTTPS</td></tr>
<tr><td><a>6.6.6.6</a></td><td><a>21</a></td><td>FTP</td></tr>
</tbody></table>`)
	}))
	defer srv.Close()

	s := NewProxydbScraper(2*time.Second, srv.URL)
	got, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape() returned an error: %v", err)
	}
	if len(offsets) != proxydbPages {
		t.Errorf("expected %d page requests, got %v", proxydbPages, offsets)
	}
	// two good pages, two valid rows each
	if len(got) != 4 {
		t.Fatalf("expected 4 candidates, got %d: %+v", len(got), got)
	}
	if got[0].Key() != "socks5://4.4.4.4:1080" || got[1].Key() != "https://5.5.5.5:8080" {
		t.Errorf("unexpected candidates: %+v", got)
	}
}

func TestProxyListDownloadScraper(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("type") {
		case "http":
			fmt.Fprint(w, "7.7.7.7:80\r\n8.8.8.8:3128\r\n")
		case "socks5":
			fmt.Fprint(w, "9.9.9.9:1080\r\n")
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	got, err := NewProxyListDownloadScraper(2*time.Second, srv.URL).Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape() returned an error: %v", err)
	}
	want := []string{"http://7.7.7.7:80", "http://8.8.8.8:3128", "socks5://9.9.9.9:1080"}
	if len(got) != len(want) {
		t.Fatalf("expected %d candidates, got %d: %+v", len(want), len(got), got)
	}
	for i, k := range want {
		if got[i].Key() != k {
			t.Errorf("candidate %d: expected %s, got %s", i, k, got[i].Key())
		}
	}
}

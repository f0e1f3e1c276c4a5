package jobs

import (
	"context"
	"net/http"
	"net/url"
)

// Job is a single normalized job posting. Every field is optional.
type Job struct {
	ID           string `json:"id,omitempty"`
	JobURL       string `json:"job_url,omitempty"`
	JobURLDirect string `json:"job_url_direct,omitempty"`
	Location     string `json:"location,omitempty"`
	Title        string `json:"title,omitempty"`
	Company      string `json:"company,omitempty"`
	JobType      string `json:"job_type,omitempty"`
	IsRemote     bool   `json:"is_remote"`
	Description  string `json:"description,omitempty"`
}

// ProxyFunc has the signature of http.Transport.Proxy. A nil result means
// a direct connection.
type ProxyFunc func(*http.Request) (*url.URL, error)

// Provider 是外部职位数据源（LinkedIn 等）。
type Provider interface {
	// Name returns the source name, e.g. "linkedin".
	Name() string

	// Search returns normalized jobs. proxy is consulted for every outbound
	// request the provider makes.
	Search(ctx context.Context, params SearchParams, proxy ProxyFunc) ([]Job, error)
}

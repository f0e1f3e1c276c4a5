package validator

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"

	"jobspy_api/internal/shared/logger"
	"jobspy_api/proxypool/model"
)

const maxProbeBody = 4096

var (
	// ErrUnsupportedProtocol is returned for candidates no probe can speak.
	ErrUnsupportedProtocol = errors.New("unsupported proxy protocol")
	// ErrEmptyBody is returned when a probe target answered 2xx with no content.
	ErrEmptyBody = errors.New("probe target returned an empty body")
)

// ProbeFunc performs one liveness check of a candidate through itself.
type ProbeFunc func(ctx context.Context, c model.Candidate) error

// Option configures a Validator.
type Option func(*Validator)

// WithProbe replaces the network probe.
func WithProbe(p ProbeFunc) Option {
	return func(v *Validator) {
		v.probe = p
	}
}

// Validator 并发地检测候选代理是否可用。
type Validator struct {
	timeout     time.Duration
	concurrency int
	targets     []string
	probe       ProbeFunc
}

// NewValidator creates a Validator. concurrency is the upper bound on
// in-flight probes for a batch.
func NewValidator(timeout time.Duration, concurrency int, targets []string, opts ...Option) *Validator {
	if concurrency <= 0 {
		concurrency = 1
	}
	v := &Validator{
		timeout:     timeout,
		concurrency: concurrency,
		targets:     targets,
	}
	v.probe = v.probeTargets
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Concurrency returns the batch concurrency bound.
func (v *Validator) Concurrency() int {
	return v.concurrency
}

// Validate probes a single candidate. It never returns an error: any failure
// is reported as an unsuccessful result.
func (v *Validator) Validate(ctx context.Context, c model.Candidate) model.ValidationResult {
	if err := ctx.Err(); err != nil {
		return model.ValidationResult{Candidate: c, Err: err}
	}

	probeCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	if err := v.probe(probeCtx, c); err != nil {
		return model.ValidationResult{Candidate: c, Err: err}
	}
	latency := time.Since(start)
	if latency <= 0 {
		latency = time.Nanosecond
	}
	return model.ValidationResult{Candidate: c, Success: true, Latency: latency}
}

// ValidateBatch validates all candidates with at most Concurrency() probes
// in flight. The result slice has exactly one entry per candidate, in input
// order. Cancelling ctx makes pending candidates fail without probing.
func (v *Validator) ValidateBatch(ctx context.Context, candidates []model.Candidate) []model.ValidationResult {
	l := logger.WithComponent("ProxyPool/Validator")
	results := make([]model.ValidationResult, len(candidates))
	if len(candidates) == 0 {
		return results
	}

	l.Info().Int("count", len(candidates)).Int("concurrency", v.concurrency).Msg("Starting validation batch...")

	var g errgroup.Group
	g.SetLimit(v.concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			results[i] = v.Validate(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		} else {
			l.Debug().Err(r.Err).Str("proxy", r.Candidate.Key()).Msg("Proxy failed validation.")
		}
	}
	l.Info().Int("succeeded", succeeded).Int("failed", len(results)-succeeded).Msg("Validation batch finished.")
	return results
}

// probeTargets tries each target in order; the first 2xx response with a
// non-empty body counts as success.
func (v *Validator) probeTargets(ctx context.Context, c model.Candidate) error {
	client, err := v.clientFor(c)
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	var errs []error
	for _, target := range v.targets {
		err := fetchTarget(ctx, client, target)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return errors.New("no probe targets configured")
	}
	return errors.Join(errs...)
}

func fetchTarget(ctx context.Context, client *http.Client, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: received non-successful status code: %d", target, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProbeBody))
	if err != nil {
		return fmt.Errorf("%s: %w", target, err)
	}
	if len(body) == 0 {
		return fmt.Errorf("%s: %w", target, ErrEmptyBody)
	}
	return nil
}

// clientFor builds a one-shot client that routes through the candidate.
func (v *Validator) clientFor(c model.Candidate) (*http.Client, error) {
	dialer := &net.Dialer{
		Timeout:   v.timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		IdleConnTimeout:       v.timeout,
		TLSHandshakeTimeout:   v.timeout / 2,
		ExpectContinueTimeout: 1 * time.Second,
		DisableKeepAlives:     true,
	}

	switch c.Protocol {
	case model.ProtocolHTTP, model.ProtocolHTTPS:
		transport.Proxy = http.ProxyURL(c.URL())
		transport.DialContext = dialer.DialContext
	case model.ProtocolSOCKS5:
		socks, err := proxy.SOCKS5("tcp", c.HostPort(), nil, dialer)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		cd, ok := socks.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("SOCKS5 dialer does not support contexts")
		}
		transport.DialContext = cd.DialContext
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, c.Protocol)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   v.timeout,
	}, nil
}

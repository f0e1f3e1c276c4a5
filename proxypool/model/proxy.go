package model

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Protocol 是候选代理声明的协议。
type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolHTTPS  Protocol = "https"
	ProtocolSOCKS4 Protocol = "socks4"
	ProtocolSOCKS5 Protocol = "socks5"
)

// ParseProtocol normalizes a provider's protocol label. An empty label means http.
func ParseProtocol(s string) (Protocol, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "http":
		return ProtocolHTTP, true
	case "https":
		return ProtocolHTTPS, true
	case "socks4":
		return ProtocolSOCKS4, true
	case "socks5", "socks":
		return ProtocolSOCKS5, true
	default:
		return "", false
	}
}

// Candidate 是从代理源抓取到的、尚未验证的代理。只在一次刷新周期内存在。
type Candidate struct {
	Address  string   `json:"address"`
	Port     int      `json:"port"`
	Protocol Protocol `json:"protocol"`
	Source   string   `json:"source"` // 来源, e.g. "proxifly"
}

// NewCandidate validates and normalizes the raw fields of a list entry.
func NewCandidate(address string, port int, protocol, source string) (Candidate, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Candidate{}, fmt.Errorf("empty address")
	}
	if net.ParseIP(address) == nil && !isHostname(address) {
		return Candidate{}, fmt.Errorf("invalid address %q", address)
	}
	if port <= 0 || port > 65535 {
		return Candidate{}, fmt.Errorf("port %d out of range", port)
	}
	proto, ok := ParseProtocol(protocol)
	if !ok {
		return Candidate{}, fmt.Errorf("unsupported protocol %q", protocol)
	}
	return Candidate{Address: address, Port: port, Protocol: proto, Source: source}, nil
}

// ParseHostPort parses an "ip:port" line, optionally prefixed with a scheme
// such as "socks5://". The scheme overrides defaultProtocol.
func ParseHostPort(line, defaultProtocol, source string) (Candidate, error) {
	line = strings.TrimSpace(line)
	protocol := defaultProtocol
	if i := strings.Index(line, "://"); i >= 0 {
		protocol = line[:i]
		line = line[i+3:]
	}
	host, portStr, err := net.SplitHostPort(line)
	if err != nil {
		return Candidate{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Candidate{}, fmt.Errorf("invalid port %q", portStr)
	}
	return NewCandidate(host, port, protocol, source)
}

func isHostname(s string) bool {
	if len(s) > 253 || strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") || !strings.Contains(s, ".") {
		return false
	}
	for _, label := range strings.Split(s, ".") {
		if label == "" || len(label) > 63 || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
				return false
			}
		}
	}
	return true
}

// HostPort returns "address:port".
func (c Candidate) HostPort() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// Key identifies a candidate across providers, used for de-duplication.
func (c Candidate) Key() string {
	return string(c.Protocol) + "://" + c.HostPort()
}

// URL returns the proxy URL for use with http.ProxyURL.
func (c Candidate) URL() *url.URL {
	return DialURL(c.Protocol, c.HostPort())
}

// DialURL builds the URL a client uses to reach a proxy. Lists label proxies
// that accept CONNECT as "https", but they still speak plain HTTP to us.
func DialURL(protocol Protocol, hostPort string) *url.URL {
	scheme := string(protocol)
	if protocol == ProtocolHTTPS {
		scheme = string(ProtocolHTTP)
	}
	return &url.URL{Scheme: scheme, Host: hostPort}
}

// ValidationResult 是一次探测的结果，在刷新周期内被消费一次。
type ValidationResult struct {
	Candidate Candidate
	Success   bool
	Latency   time.Duration // 失败时为 0
	Err       error         // 仅用于调试日志
}

// WorkingProxy 是通过验证并进入代理池的代理。
type WorkingProxy struct {
	Address     string        `json:"address"`
	Port        int           `json:"port"`
	Protocol    Protocol      `json:"protocol"`
	Source      string        `json:"source"`
	ValidatedAt time.Time     `json:"validated_at"`
	Latency     time.Duration `json:"latency"`
}

// NewWorkingProxy promotes a successful validation result.
func NewWorkingProxy(r ValidationResult, validatedAt time.Time) WorkingProxy {
	return WorkingProxy{
		Address:     r.Candidate.Address,
		Port:        r.Candidate.Port,
		Protocol:    r.Candidate.Protocol,
		Source:      r.Candidate.Source,
		ValidatedAt: validatedAt,
		Latency:     r.Latency,
	}
}

// HostPort returns "address:port".
func (p WorkingProxy) HostPort() string {
	return net.JoinHostPort(p.Address, strconv.Itoa(p.Port))
}

// URL returns the proxy URL for use with http.ProxyURL.
func (p WorkingProxy) URL() *url.URL {
	return DialURL(p.Protocol, p.HostPort())
}

// String renders the proxy with its listed protocol, e.g. "https://1.2.3.4:8080".
func (p WorkingProxy) String() string {
	return string(p.Protocol) + "://" + p.HostPort()
}

package types

import "time"

// ProxyConf 包含代理池的全部行为配置。启动时组装一次，之后只读。
type ProxyConf struct {
	UseProxies      bool     `ini:"use_proxies"`
	UpdateInterval  int      `ini:"update_interval"` // 周期刷新间隔 (秒)
	MaxWorkers      int      `ini:"max_workers"`     // 并发验证上限
	MaxWorking      int      `ini:"max_working"`     // 代理池容量
	FallbackEnabled bool     `ini:"fallback_enabled"`
	MaxCandidates   int      `ini:"max_candidates"` // 每轮最多验证的候选数
	ProbeTimeout    int      `ini:"probe_timeout"`  // 单次探测超时 (秒)
	FetchTimeout    int      `ini:"fetch_timeout"`  // 抓取代理列表超时 (秒)
	Sources         []string `ini:"sources" delim:","`
	ProbeTargets    []string `ini:"probe_targets" delim:","`
}

// UpdateIntervalDuration returns the periodic refresh cadence.
func (c ProxyConf) UpdateIntervalDuration() time.Duration {
	return time.Duration(c.UpdateInterval) * time.Second
}

// ProbeTimeoutDuration returns the per-probe timeout.
func (c ProxyConf) ProbeTimeoutDuration() time.Duration {
	return time.Duration(c.ProbeTimeout) * time.Second
}

// FetchTimeoutDuration returns the per-provider fetch timeout.
func (c ProxyConf) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

// ServerConf 包含 HTTP API 的监听与鉴权配置
type ServerConf struct {
	Host          string `ini:"host"`
	Port          int    `ini:"port"`
	AdminUser     string `ini:"admin_user"`
	AdminPassword string `ini:"admin_password"`
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
}

// Config 是项目的统一配置结构体
type Config struct {
	ProxyConf  `ini:"proxy"`
	ServerConf `ini:"server"`
	LogConf    `ini:"log"`
}

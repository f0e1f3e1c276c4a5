package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/ini.v1"

	"jobspy_api/internal/shared/types"
)

// Provider names understood by the proxy fetcher.
const (
	SourceProxifly      = "proxifly"
	SourceSSLProxies    = "sslproxies"
	SourceFreeProxyList = "free-proxy-list"
	SourceProxydb       = "proxydb"
	SourceProxyListDL   = "proxy-list-download"
)

// Default returns the configuration used when neither a file nor the
// environment overrides a value.
func Default() types.Config {
	return types.Config{
		ProxyConf: types.ProxyConf{
			UseProxies:      true,
			UpdateInterval:  300,
			MaxWorkers:      20,
			MaxWorking:      10,
			FallbackEnabled: false,
			MaxCandidates:   50,
			ProbeTimeout:    10,
			FetchTimeout:    10,
			Sources:         []string{SourceProxifly, SourceSSLProxies, SourceFreeProxyList},
			ProbeTargets:    []string{"http://httpbin.org/ip", "http://icanhazip.com"},
		},
		ServerConf: types.ServerConf{
			Host: "0.0.0.0",
			Port: 8000,
		},
		LogConf: types.LogConf{
			Level: "info",
		},
	}
}

// Load assembles the immutable configuration: defaults, then the optional
// ini file, then environment variables. An empty fileName skips the file
// layer; a missing file is not an error.
func Load(fileName string) (types.Config, error) {
	cfg := Default()

	if fileName != "" {
		if err := LoadIni(&cfg, fileName); err != nil {
			return types.Config{}, err
		}
	}

	if err := overrideFromEnv(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("invalid environment: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return types.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadIni 把 ini 文件映射到 cfg 上，文件中缺失的键保留原值。
func LoadIni(cfg *types.Config, fileName string) error {
	if _, err := os.Stat(fileName); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat config file '%s': %w", fileName, err)
	}

	iniFile, err := ini.Load(fileName)
	if err != nil {
		return fmt.Errorf("failed to parse config file '%s': %w", fileName, err)
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return fmt.Errorf("failed to map config file '%s': %w", fileName, err)
	}
	return nil
}

// overrideFromEnv applies the environment layer. Only variables that are
// present (and non-empty) override the current value. Malformed numbers
// are reported, never silently ignored.
func overrideFromEnv(cfg *types.Config) error {
	v := viper.New()
	v.AutomaticEnv()

	var errs []error
	intVar := func(target *int, envName string) {
		if err := overrideFromEnvInt(v, target, envName); err != nil {
			errs = append(errs, err)
		}
	}

	overrideFromEnvBool(v, &cfg.UseProxies, "USE_PROXIES")
	intVar(&cfg.UpdateInterval, "PROXY_UPDATE_INTERVAL")
	intVar(&cfg.MaxWorkers, "MAX_PROXY_WORKERS")
	intVar(&cfg.MaxWorking, "MAX_WORKING_PROXIES")
	overrideFromEnvBool(v, &cfg.FallbackEnabled, "PROXY_FALLBACK_ENABLED")
	intVar(&cfg.MaxCandidates, "MAX_PROXY_CANDIDATES")
	intVar(&cfg.ProbeTimeout, "PROXY_PROBE_TIMEOUT")
	intVar(&cfg.FetchTimeout, "PROXY_FETCH_TIMEOUT")
	overrideFromEnvList(v, &cfg.Sources, "PROXY_SOURCES")

	overrideFromEnvString(v, &cfg.Host, "HOST")
	intVar(&cfg.Port, "PORT")
	overrideFromEnvString(v, &cfg.AdminUser, "ADMIN_USER")
	overrideFromEnvString(v, &cfg.AdminPassword, "ADMIN_PASSWORD")

	overrideFromEnvString(v, &cfg.Level, "LOG_LEVEL")
	return errors.Join(errs...)
}

func overrideFromEnvBool(v *viper.Viper, target *bool, envName string) {
	if v.IsSet(envName) {
		*target = strings.EqualFold(strings.TrimSpace(v.GetString(envName)), "true")
	}
}

func overrideFromEnvInt(v *viper.Viper, target *int, envName string) error {
	if !v.IsSet(envName) {
		return nil
	}
	raw := strings.TrimSpace(v.GetString(envName))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s must be an integer, got %q", envName, raw)
	}
	*target = n
	return nil
}

func overrideFromEnvString(v *viper.Viper, target *string, envName string) {
	if v.IsSet(envName) {
		*target = strings.TrimSpace(v.GetString(envName))
	}
}

func overrideFromEnvList(v *viper.Viper, target *[]string, envName string) {
	if !v.IsSet(envName) {
		return
	}
	var items []string
	for _, item := range strings.Split(v.GetString(envName), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*target = items
}

// Validate rejects configurations the proxy manager cannot run with.
func Validate(cfg types.Config) error {
	var errs []error
	if cfg.UpdateInterval <= 0 {
		errs = append(errs, fmt.Errorf("PROXY_UPDATE_INTERVAL must be greater than 0, got %d", cfg.UpdateInterval))
	}
	if cfg.MaxWorkers <= 0 {
		errs = append(errs, fmt.Errorf("MAX_PROXY_WORKERS must be greater than 0, got %d", cfg.MaxWorkers))
	}
	if cfg.MaxWorking <= 0 {
		errs = append(errs, fmt.Errorf("MAX_WORKING_PROXIES must be greater than 0, got %d", cfg.MaxWorking))
	}
	if cfg.MaxCandidates <= 0 {
		errs = append(errs, fmt.Errorf("MAX_PROXY_CANDIDATES must be greater than 0, got %d", cfg.MaxCandidates))
	}
	if cfg.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("PROXY_PROBE_TIMEOUT must be greater than 0, got %d", cfg.ProbeTimeout))
	}
	if cfg.FetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("PROXY_FETCH_TIMEOUT must be greater than 0, got %d", cfg.FetchTimeout))
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port number: %d", cfg.Port))
	}
	if cfg.UseProxies && len(cfg.Sources) == 0 {
		errs = append(errs, errors.New("at least one proxy source must be configured"))
	}
	for _, s := range cfg.Sources {
		switch s {
		case SourceProxifly, SourceSSLProxies, SourceFreeProxyList, SourceProxydb, SourceProxyListDL:
		default:
			errs = append(errs, fmt.Errorf("unknown proxy source %q", s))
		}
	}
	if len(cfg.ProbeTargets) == 0 {
		errs = append(errs, errors.New("at least one probe target must be configured"))
	}
	return errors.Join(errs...)
}

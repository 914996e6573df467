package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Notify   NotifyConfig   `yaml:"notify"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Cache    CacheConfig    `yaml:"cache"`
	Logging  LoggingConfig  `yaml:"logging"`

	trustedNets []net.IPNet
}

// NotifyConfig holds the process-wide outgoing-mail relay.
type NotifyConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	FromAddress  string `yaml:"from_address"`
	TLSMode      string `yaml:"tls_mode"` // none, starttls (default), smtps
}

// SecretsConfig points at a 1Password Connect server used to resolve
// op:// credential references stored on monitor settings. Left unset,
// checkers configured with a credential_ref fail validation-time
// secret resolution rather than at startup.
type SecretsConfig struct {
	OnePasswordConnectHost  string `yaml:"onepassword_connect_host"`
	OnePasswordConnectToken string `yaml:"onepassword_connect_token"`
}

// CacheConfig points at an optional Redis instance backing the
// notification dedup cache. Left unset, alert.Manager falls back to an
// in-process map.
type CacheConfig struct {
	RedisURL string `yaml:"redis_url"`
}

type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	TLSCert         string        `yaml:"tls_cert"`
	TLSKey          string        `yaml:"tls_key"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	MaxBodySize     int64         `yaml:"max_body_size"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	BasePath        string        `yaml:"base_path"`
	ExternalURL     string        `yaml:"external_url"`
	TrustedProxies  []string      `yaml:"trusted_proxies"`
}

type DatabaseConfig struct {
	Path            string        `yaml:"path"`
	MaxReadConns    int           `yaml:"max_read_conns"`
	RetentionDays   int           `yaml:"retention_days"`
	RetentionPeriod time.Duration `yaml:"retention_period"`
}

type MonitorConfig struct {
	Workers                int           `yaml:"workers"`
	DefaultTimeout         time.Duration `yaml:"default_timeout"`
	DefaultInterval        time.Duration `yaml:"default_interval"`
	FailureThreshold       int           `yaml:"failure_threshold"`
	SuccessThreshold       int           `yaml:"success_threshold"`
	MaxConcurrentDNS       int           `yaml:"max_concurrent_dns"`
	CommandTimeout         time.Duration `yaml:"command_timeout"`
	CommandAllowlist       []string      `yaml:"command_allowlist"`
	HeartbeatCheckInterval time.Duration `yaml:"heartbeat_check_interval"`
	AllowPrivateTargets    bool          `yaml:"allow_private_targets"`
	AdaptiveIntervals      bool          `yaml:"adaptive_intervals"` // opt-in Scheduler.WithAdaptiveBackoff, off by default
	CheckRateLimitPerSec   float64       `yaml:"check_rate_limit_per_sec"` // 0 disables the throttle
	CheckRateLimitBurst    int           `yaml:"check_rate_limit_burst"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          "127.0.0.1:8090",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			MaxBodySize:     1 << 20, // 1MB
			RateLimitPerSec: 30,
			RateLimitBurst:  60,
		},
		Database: DatabaseConfig{
			Path:            "sentrymon.db",
			MaxReadConns:    4,
			RetentionDays:   90,
			RetentionPeriod: 1 * time.Hour,
		},
		Monitor: MonitorConfig{
			Workers:                10,
			DefaultTimeout:         10 * time.Second,
			DefaultInterval:        60 * time.Second,
			FailureThreshold:       3,
			SuccessThreshold:       1,
			CommandTimeout:         30 * time.Second,
			HeartbeatCheckInterval: 30 * time.Second,
			AdaptiveIntervals:      false,
			CheckRateLimitPerSec:   20,
			CheckRateLimitBurst:    40,
		},
		Notify: NotifyConfig{
			TLSMode: "starttls",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	cfg.Server.BasePath = NormalizeBasePath(cfg.Server.BasePath)

	nets, err := parseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse trusted_proxies: %w", err)
	}
	cfg.trustedNets = nets

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateMonitorConfig(); err != nil {
		return err
	}
	return validateLogLevel(c.Logging.Level)
}

func (c *Config) validateServer() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Server.MaxBodySize <= 0 {
		return fmt.Errorf("server.max_body_size must be positive")
	}
	if c.Server.RateLimitPerSec <= 0 {
		return fmt.Errorf("server.rate_limit_per_sec must be positive")
	}
	if c.Server.RateLimitBurst <= 0 {
		return fmt.Errorf("server.rate_limit_burst must be positive")
	}
	if c.Server.ExternalURL != "" {
		u, err := url.Parse(c.Server.ExternalURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("server.external_url must be an absolute URL (e.g. https://example.com)")
		}
	}
	if bp := c.Server.BasePath; bp != "" {
		if strings.Contains(bp, "..") || strings.Contains(bp, "?") || strings.Contains(bp, "#") || strings.Contains(bp, "\\") {
			return fmt.Errorf("server.base_path contains invalid characters")
		}
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.MaxReadConns <= 0 {
		return fmt.Errorf("database.max_read_conns must be positive")
	}
	if c.Database.RetentionDays <= 0 {
		return fmt.Errorf("database.retention_days must be positive")
	}
	return nil
}

func (c *Config) validateMonitorConfig() error {
	if c.Monitor.Workers <= 0 {
		return fmt.Errorf("monitor.workers must be positive")
	}
	if c.Monitor.DefaultTimeout <= 0 {
		return fmt.Errorf("monitor.default_timeout must be positive")
	}
	if c.Monitor.DefaultInterval < 5*time.Second {
		return fmt.Errorf("monitor.default_interval must be at least 5s")
	}
	if c.Monitor.FailureThreshold <= 0 {
		return fmt.Errorf("monitor.failure_threshold must be positive")
	}
	if c.Monitor.SuccessThreshold <= 0 {
		return fmt.Errorf("monitor.success_threshold must be positive")
	}
	return nil
}

func validateLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
}

func NormalizeBasePath(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "/" {
		return ""
	}
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return strings.TrimRight(s, "/")
}

func (c *Config) IsTrustedProxy(ip net.IP) bool {
	for i := range c.trustedNets {
		if c.trustedNets[i].Contains(ip) {
			return true
		}
	}
	return false
}

func (c *Config) TrustedNets() []net.IPNet {
	return c.trustedNets
}

func (c *Config) ResolvedExternalURL() string {
	if c.Server.ExternalURL != "" {
		return strings.TrimRight(c.Server.ExternalURL, "/")
	}
	return "http://" + c.Server.Listen + c.Server.BasePath
}

func parseTrustedProxies(proxies []string) ([]net.IPNet, error) {
	var nets []net.IPNet
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, "/") {
			ip := net.ParseIP(p)
			if ip == nil {
				return nil, fmt.Errorf("invalid IP: %s", p)
			}
			if ip.To4() != nil {
				p += "/32"
			} else {
				p += "/128"
			}
		}
		_, ipNet, err := net.ParseCIDR(p)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR: %s", p)
		}
		nets = append(nets, *ipNet)
	}
	return nets, nil
}

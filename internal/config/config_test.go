package config

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Listen != "127.0.0.1:8090" {
		t.Fatalf("expected listen 127.0.0.1:8090, got %s", cfg.Server.Listen)
	}
	if cfg.Monitor.Workers != 10 {
		t.Fatalf("expected 10 workers, got %d", cfg.Monitor.Workers)
	}
	if cfg.Monitor.DefaultInterval != 60*time.Second {
		t.Fatalf("expected 60s interval, got %s", cfg.Monitor.DefaultInterval)
	}
	if cfg.Database.Path != "sentrymon.db" {
		t.Fatalf("expected sentrymon.db, got %s", cfg.Database.Path)
	}
	if cfg.Database.RetentionDays != 90 {
		t.Fatalf("expected 90 retention days, got %d", cfg.Database.RetentionDays)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected info log level, got %s", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return Defaults()
	}

	t.Run("valid defaults", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Fatal(err)
		}
	})

	tests := []struct {
		name   string
		modify func(*Config)
		errSub string
	}{
		{
			name:   "empty listen",
			modify: func(c *Config) { c.Server.Listen = "" },
			errSub: "server.listen",
		},
		{
			name:   "zero max body size",
			modify: func(c *Config) { c.Server.MaxBodySize = 0 },
			errSub: "max_body_size",
		},
		{
			name:   "negative rate limit",
			modify: func(c *Config) { c.Server.RateLimitPerSec = -1 },
			errSub: "rate_limit_per_sec",
		},
		{
			name:   "zero rate limit burst",
			modify: func(c *Config) { c.Server.RateLimitBurst = 0 },
			errSub: "rate_limit_burst",
		},
		{
			name:   "invalid external URL",
			modify: func(c *Config) { c.Server.ExternalURL = "not-a-url" },
			errSub: "external_url",
		},
		{
			name:   "base path with ..",
			modify: func(c *Config) { c.Server.BasePath = "/foo/../bar" },
			errSub: "base_path",
		},
		{
			name:   "empty database path",
			modify: func(c *Config) { c.Database.Path = "" },
			errSub: "database.path",
		},
		{
			name:   "zero read conns",
			modify: func(c *Config) { c.Database.MaxReadConns = 0 },
			errSub: "max_read_conns",
		},
		{
			name:   "zero retention days",
			modify: func(c *Config) { c.Database.RetentionDays = 0 },
			errSub: "retention_days",
		},
		{
			name:   "zero workers",
			modify: func(c *Config) { c.Monitor.Workers = 0 },
			errSub: "workers",
		},
		{
			name:   "zero default timeout",
			modify: func(c *Config) { c.Monitor.DefaultTimeout = 0 },
			errSub: "default_timeout",
		},
		{
			name:   "interval too small",
			modify: func(c *Config) { c.Monitor.DefaultInterval = 2 * time.Second },
			errSub: "default_interval",
		},
		{
			name:   "zero failure threshold",
			modify: func(c *Config) { c.Monitor.FailureThreshold = 0 },
			errSub: "failure_threshold",
		},
		{
			name:   "zero success threshold",
			modify: func(c *Config) { c.Monitor.SuccessThreshold = 0 },
			errSub: "success_threshold",
		},
		{
			name:   "invalid log level",
			modify: func(c *Config) { c.Logging.Level = "trace" },
			errSub: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errSub) {
				t.Fatalf("expected error containing %q, got %q", tt.errSub, err.Error())
			}
		})
	}
}

func TestValidateLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		t.Run(level, func(t *testing.T) {
			if err := validateLogLevel(level); err != nil {
				t.Fatal(err)
			}
		})
	}

	t.Run("invalid", func(t *testing.T) {
		if err := validateLogLevel("trace"); err == nil {
			t.Fatal("expected error for invalid level")
		}
	})
}

func TestNormalizeBasePath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"/", ""},
		{"foo", "/foo"},
		{"/foo", "/foo"},
		{"/foo/", "/foo"},
		{"  /foo  ", "/foo"},
		{"/foo/bar/", "/foo/bar"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := NormalizeBasePath(tt.input)
			if got != tt.want {
				t.Fatalf("NormalizeBasePath(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsTrustedProxy(t *testing.T) {
	cfg := Defaults()
	nets, err := parseTrustedProxies([]string{"10.0.0.1", "192.168.1.0/24"})
	if err != nil {
		t.Fatal(err)
	}
	cfg.trustedNets = nets

	t.Run("single IP match", func(t *testing.T) {
		if !cfg.IsTrustedProxy(net.ParseIP("10.0.0.1")) {
			t.Fatal("expected trusted")
		}
	})

	t.Run("CIDR range match", func(t *testing.T) {
		if !cfg.IsTrustedProxy(net.ParseIP("192.168.1.50")) {
			t.Fatal("expected trusted")
		}
	})

	t.Run("not trusted", func(t *testing.T) {
		if cfg.IsTrustedProxy(net.ParseIP("172.16.0.1")) {
			t.Fatal("expected not trusted")
		}
	})
}

func TestResolvedExternalURL(t *testing.T) {
	t.Run("with external URL", func(t *testing.T) {
		cfg := Defaults()
		cfg.Server.ExternalURL = "https://example.com/"
		got := cfg.ResolvedExternalURL()
		if got != "https://example.com" {
			t.Fatalf("expected https://example.com, got %s", got)
		}
	})

	t.Run("without external URL", func(t *testing.T) {
		cfg := Defaults()
		cfg.Server.BasePath = "/app"
		got := cfg.ResolvedExternalURL()
		if got != "http://127.0.0.1:8090/app" {
			t.Fatalf("expected http://127.0.0.1:8090/app, got %s", got)
		}
	})

	t.Run("no base path", func(t *testing.T) {
		cfg := Defaults()
		got := cfg.ResolvedExternalURL()
		if got != "http://127.0.0.1:8090" {
			t.Fatalf("expected http://127.0.0.1:8090, got %s", got)
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("valid YAML", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		data := `
server:
  listen: "0.0.0.0:9090"
database:
  path: "test.db"
logging:
  level: "debug"
`
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Server.Listen != "0.0.0.0:9090" {
			t.Fatalf("expected 0.0.0.0:9090, got %s", cfg.Server.Listen)
		}
		if cfg.Database.Path != "test.db" {
			t.Fatalf("expected test.db, got %s", cfg.Database.Path)
		}
	})

	t.Run("env var expansion", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		t.Setenv("SENTRYMON_TEST_PORT", "7777")
		data := `
server:
  listen: "0.0.0.0:${SENTRYMON_TEST_PORT}"
database:
  path: "test.db"
`
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Server.Listen != "0.0.0.0:7777" {
			t.Fatalf("expected 0.0.0.0:7777, got %s", cfg.Server.Listen)
		}
	})

	t.Run("invalid YAML", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		if err := os.WriteFile(path, []byte("{{invalid"), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := Load(path)
		if err == nil {
			t.Fatal("expected error for invalid YAML")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load("/nonexistent/config.yaml")
		if err == nil {
			t.Fatal("expected error for missing file")
		}
	})
}

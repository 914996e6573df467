package api

import (
	"net/http"
	"testing"
)

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xRealIP    string
		xff        string
		want       string
	}{
		{"direct", "1.2.3.4:1234", "", "", "1.2.3.4"},
		{"with X-Real-IP", "127.0.0.1:1234", "10.0.0.1", "", "10.0.0.1"},
		{"with XFF", "127.0.0.1:1234", "", "10.0.0.1, 127.0.0.1", "10.0.0.1"},
		{"X-Real-IP takes priority over XFF", "127.0.0.1:1234", "10.0.0.1", "192.168.1.1", "10.0.0.1"},
		{"no port in remote addr", "1.2.3.4", "", "", "1.2.3.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := http.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			got := extractIP(r)
			if got != tt.want {
				t.Errorf("extractIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsAllowedOrigin(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		allowed []string
		want    bool
	}{
		{"exact match", "https://a.example", []string{"https://a.example"}, true},
		{"wildcard", "https://anything.example", []string{"*"}, true},
		{"no match", "https://b.example", []string{"https://a.example"}, false},
		{"empty allowlist", "https://a.example", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isAllowedOrigin(tt.origin, tt.allowed); got != tt.want {
				t.Errorf("isAllowedOrigin(%q, %v) = %v, want %v", tt.origin, tt.allowed, got, tt.want)
			}
		})
	}
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	rl := newRateLimiter(1, 2)

	r, _ := http.NewRequest("GET", "/", nil)
	r.RemoteAddr = "9.9.9.9:1111"

	limiter := rl.getLimiter(extractIP(r))
	if !limiter.Allow() {
		t.Fatal("expected first request to be allowed")
	}
	if !limiter.Allow() {
		t.Fatal("expected second request (within burst) to be allowed")
	}
	if limiter.Allow() {
		t.Fatal("expected third request to exceed burst")
	}
}

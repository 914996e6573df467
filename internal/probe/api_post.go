package probe

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sentrymon/engine/internal/check"
	"github.com/sentrymon/engine/internal/safenet"
	"github.com/sentrymon/engine/internal/store"
)

// APIPostChecker probes an HTTP endpoint with a POST body and validates
// the response against an expected pattern, reporting response time.
type APIPostChecker struct {
	AllowPrivate bool
}

func (c *APIPostChecker) Type() string { return "api_post" }

func (c *APIPostChecker) Validate(m check.Monitor) error {
	var s store.APIPostSettings
	if len(m.GetSettings()) > 0 {
		if err := json.Unmarshal(m.GetSettings(), &s); err != nil {
			return fmt.Errorf("invalid api_post settings: %w", err)
		}
	}
	if s.PositivePattern != "" {
		if _, err := regexp.Compile("(?i)" + s.PositivePattern); err != nil {
			return fmt.Errorf("invalid positive_pattern: %w", err)
		}
	}
	if s.NegativePattern != "" {
		if _, err := regexp.Compile("(?i)" + s.NegativePattern); err != nil {
			return fmt.Errorf("invalid negative_pattern: %w", err)
		}
	}
	return nil
}

func (c *APIPostChecker) Check(ctx context.Context, m check.Monitor) (*check.Result, error) {
	var s store.APIPostSettings
	if len(m.GetSettings()) > 0 {
		if err := json.Unmarshal(m.GetSettings(), &s); err != nil {
			return check.Errorf("invalid settings: %v", err), nil
		}
	}

	timeout := time.Duration(m.GetTimeoutSeconds()) * time.Second
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			baseDial := (&net.Dialer{Timeout: timeout, Control: safenet.MaybeDialControl(c.AllowPrivate)}).DialContext
			return dialerFunc(m.GetProxyURL(), baseDial)(ctx, network, addr)
		},
		TLSClientConfig:   &tls.Config{},
		DisableKeepAlives: true,
	}
	client := &http.Client{Transport: transport, Timeout: timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.GetTarget(), strings.NewReader(s.PostBody))
	if err != nil {
		return check.Errorf("invalid request: %v", err), nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "MonitoringSystem/1.0")
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return check.Errorf("request failed: %v", err), nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))

	codes := s.StatusCodes
	if len(codes) == 0 {
		codes = []int{200, 201, 202, 204}
	}
	codeOK := false
	for _, want := range codes {
		if resp.StatusCode == want {
			codeOK = true
			break
		}
	}
	if !codeOK {
		return &check.Result{
			Success: false, Status: check.StatusError,
			Message:      fmt.Sprintf("unexpected status code %d", resp.StatusCode),
			ResponseTime: &elapsed, StatusCode: &resp.StatusCode, Timestamp: time.Now(),
		}, nil
	}
	if s.PositivePattern != "" {
		re, err := regexp.Compile("(?i)" + s.PositivePattern)
		if err != nil {
			return check.Errorf("invalid positive_pattern: %v", err), nil
		}
		if !re.MatchString(string(body)) {
			return &check.Result{
				Success: false, Status: check.StatusError,
				Message:      "positive_pattern did not match response body",
				ResponseTime: &elapsed, StatusCode: &resp.StatusCode, Timestamp: time.Now(),
			}, nil
		}
	}
	if s.NegativePattern != "" {
		re, err := regexp.Compile("(?i)" + s.NegativePattern)
		if err != nil {
			return check.Errorf("invalid negative_pattern: %v", err), nil
		}
		if re.MatchString(string(body)) {
			return &check.Result{
				Success: false, Status: check.StatusError,
				Message:      "negative_pattern matched response body",
				ResponseTime: &elapsed, StatusCode: &resp.StatusCode, Timestamp: time.Now(),
			}, nil
		}
	}

	value := float64(elapsed)
	return &check.Result{
		Success: true, Value: &value,
		Message:      fmt.Sprintf("POST %d in %dms", resp.StatusCode, elapsed),
		ResponseTime: &elapsed, StatusCode: &resp.StatusCode, Timestamp: time.Now(),
	}, nil
}

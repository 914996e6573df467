package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/sentrymon/engine/internal/check"
	"github.com/sentrymon/engine/internal/store"
)

const azureMonitorScope = "https://management.azure.com/.default"

// AzureChecker reads the most recent Azure Monitor metric value for a
// resource via the REST API and reports it as its value.
type AzureChecker struct {
	Secrets SecretResolver
}

func (c *AzureChecker) Type() string { return "azure" }

func (c *AzureChecker) Validate(m check.Monitor) error {
	var s store.AzureSettings
	if len(m.GetSettings()) > 0 {
		if err := json.Unmarshal(m.GetSettings(), &s); err != nil {
			return fmt.Errorf("invalid azure settings: %w", err)
		}
	}
	if s.SubscriptionID == "" || s.TenantID == "" || s.ClientID == "" {
		return fmt.Errorf("azure settings require subscription_id, tenant_id, and client_id")
	}
	if s.ClientSecret == "" && s.CredentialRef == "" {
		return fmt.Errorf("azure settings require a client_secret or credential_ref")
	}
	if s.ResourceID == "" {
		return fmt.Errorf("azure settings require a resource_id")
	}
	return nil
}

func (c *AzureChecker) Check(ctx context.Context, m check.Monitor) (*check.Result, error) {
	var s store.AzureSettings
	if len(m.GetSettings()) > 0 {
		if err := json.Unmarshal(m.GetSettings(), &s); err != nil {
			return check.Errorf("invalid settings: %v", err), nil
		}
	}

	metricName := s.MetricName
	if metricName == "" {
		metricName = "Percentage CPU"
	}

	timeout := time.Duration(m.GetTimeoutSeconds()) * time.Second
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if s.ClientSecret == "" && s.CredentialRef != "" {
		if c.Secrets == nil {
			return check.Errorf("credential_ref set but no secret resolver is configured"), nil
		}
		secret, err := c.Secrets.Resolve(checkCtx, s.CredentialRef)
		if err != nil {
			return check.Errorf("resolve credential_ref: %v", err), nil
		}
		s.ClientSecret = secret
	}

	cfg := &clientcredentials.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", s.TenantID),
		Scopes:       []string{azureMonitorScope},
	}
	httpClient := cfg.Client(checkCtx)
	httpClient.Timeout = timeout

	start := time.Now()
	now := time.Now()
	url := fmt.Sprintf(
		"https://management.azure.com%s/providers/Microsoft.Insights/metrics?api-version=2018-01-01&metricnames=%s&timespan=%s/%s&interval=PT1M&aggregation=Average",
		s.ResourceID, metricName, now.Add(-5*time.Minute).Format(time.RFC3339), now.Format(time.RFC3339))

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, url, nil)
	if err != nil {
		return check.Errorf("invalid request: %v", err), nil
	}
	resp, err := httpClient.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return &check.Result{Success: false, Status: check.StatusError, Message: fmt.Sprintf("azure monitor request failed: %v", err), ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))

	if resp.StatusCode != http.StatusOK {
		return &check.Result{Success: false, Status: check.StatusError, Message: fmt.Sprintf("azure monitor returned %d: %s", resp.StatusCode, body), ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}

	var parsed struct {
		Value []struct {
			Timeseries []struct {
				Data []struct {
					TimeStamp time.Time `json:"timeStamp"`
					Average   *float64  `json:"average"`
				} `json:"data"`
			} `json:"timeseries"`
		} `json:"value"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &check.Result{Success: false, Status: check.StatusError, Message: fmt.Sprintf("parse response failed: %v", err), ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}

	var values []float64
	if len(parsed.Value) > 0 && len(parsed.Value[0].Timeseries) > 0 {
		data := parsed.Value[0].Timeseries[0].Data
		sort.Slice(data, func(i, j int) bool { return data[i].TimeStamp.Before(data[j].TimeStamp) })
		for _, d := range data {
			if d.Average != nil {
				values = append(values, *d.Average)
			}
		}
	}
	if len(values) == 0 {
		return &check.Result{Success: false, Status: check.StatusError, Message: "no datapoints returned in the last 5 minutes", ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}
	agg := aggregateMetricSeries(values)

	value := agg.Current
	return &check.Result{
		Success: true, Value: &value,
		Message: fmt.Sprintf("%s = %.2f (avg %.2f, trend %s)", metricName, agg.Current, agg.Average, agg.Trend),
		Metadata: map[string]any{
			"current": agg.Current, "average": agg.Average,
			"min": agg.Min, "max": agg.Max, "trend": agg.Trend,
		},
		ResponseTime: &elapsed, Timestamp: time.Now(),
	}, nil
}

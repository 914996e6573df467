package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/sentrymon/engine/internal/check"
	"github.com/sentrymon/engine/internal/store"
)

const gcpMonitoringScope = "https://www.googleapis.com/auth/monitoring.read"

// GCPChecker reads the most recent Cloud Monitoring time series point
// for a resource via the REST API and reports it as its value.
type GCPChecker struct {
	Secrets SecretResolver
}

func (c *GCPChecker) Type() string { return "gcp" }

func (c *GCPChecker) Validate(m check.Monitor) error {
	var s store.GCPSettings
	if len(m.GetSettings()) > 0 {
		if err := json.Unmarshal(m.GetSettings(), &s); err != nil {
			return fmt.Errorf("invalid gcp settings: %w", err)
		}
	}
	if s.ProjectID == "" {
		return fmt.Errorf("gcp settings require a project_id")
	}
	if s.ServiceAccountJSON == "" && s.CredentialRef == "" {
		return fmt.Errorf("gcp settings require a service_account_json or credential_ref")
	}
	return nil
}

func (c *GCPChecker) Check(ctx context.Context, m check.Monitor) (*check.Result, error) {
	var s store.GCPSettings
	if len(m.GetSettings()) > 0 {
		if err := json.Unmarshal(m.GetSettings(), &s); err != nil {
			return check.Errorf("invalid settings: %v", err), nil
		}
	}

	metricType := s.MetricType
	if metricType == "" {
		metricType = "compute.googleapis.com/instance/cpu/utilization"
	}

	timeout := time.Duration(m.GetTimeoutSeconds()) * time.Second
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if s.ServiceAccountJSON == "" && s.CredentialRef != "" {
		if c.Secrets == nil {
			return check.Errorf("credential_ref set but no secret resolver is configured"), nil
		}
		secret, err := c.Secrets.Resolve(checkCtx, s.CredentialRef)
		if err != nil {
			return check.Errorf("resolve credential_ref: %v", err), nil
		}
		s.ServiceAccountJSON = secret
	}

	start := time.Now()
	creds, err := google.CredentialsFromJSON(checkCtx, []byte(s.ServiceAccountJSON), gcpMonitoringScope)
	if err != nil {
		return check.Errorf("gcp credential parse failed: %v", err), nil
	}
	httpClient := &http.Client{Transport: &oauthTransport{src: creds.TokenSource}, Timeout: timeout}

	now := time.Now()
	interval := fmt.Sprintf(`interval.startTime=%s&interval.endTime=%s`,
		now.Add(-5*time.Minute).Format(time.RFC3339), now.Format(time.RFC3339))
	filter := fmt.Sprintf(`metric.type = "%s" AND resource.labels.instance_id = "%s"`, metricType, s.ResourceID)
	url := fmt.Sprintf("https://monitoring.googleapis.com/v3/projects/%s/timeSeries?%s&filter=%s&aggregation.alignmentPeriod=60s&aggregation.perSeriesAligner=ALIGN_MEAN",
		s.ProjectID, interval, filter)

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, url, nil)
	if err != nil {
		return check.Errorf("invalid request: %v", err), nil
	}
	resp, err := httpClient.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return &check.Result{Success: false, Status: check.StatusError, Message: fmt.Sprintf("monitoring API request failed: %v", err), ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))

	if resp.StatusCode != http.StatusOK {
		return &check.Result{Success: false, Status: check.StatusError, Message: fmt.Sprintf("monitoring API returned %d: %s", resp.StatusCode, body), ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}

	var parsed struct {
		TimeSeries []struct {
			Points []struct {
				Interval struct {
					EndTime time.Time `json:"endTime"`
				} `json:"interval"`
				Value struct {
					DoubleValue *float64 `json:"doubleValue"`
				} `json:"value"`
			} `json:"points"`
		} `json:"timeSeries"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &check.Result{Success: false, Status: check.StatusError, Message: fmt.Sprintf("parse response failed: %v", err), ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}
	if len(parsed.TimeSeries) == 0 || len(parsed.TimeSeries[0].Points) == 0 {
		return &check.Result{Success: false, Status: check.StatusError, Message: "no datapoints returned in the last 5 minutes", ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}

	points := parsed.TimeSeries[0].Points
	sort.Slice(points, func(i, j int) bool { return points[i].Interval.EndTime.Before(points[j].Interval.EndTime) })
	var values []float64
	for _, p := range points {
		if p.Value.DoubleValue != nil {
			values = append(values, *p.Value.DoubleValue)
		}
	}
	if len(values) == 0 {
		return &check.Result{Success: false, Status: check.StatusError, Message: "no datapoints returned in the last 5 minutes", ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}
	agg := aggregateMetricSeries(values)

	value := agg.Current
	return &check.Result{
		Success: true, Value: &value,
		Message: fmt.Sprintf("%s = %.2f (avg %.2f, trend %s)", metricType, agg.Current, agg.Average, agg.Trend),
		Metadata: map[string]any{
			"current": agg.Current, "average": agg.Average,
			"min": agg.Min, "max": agg.Max, "trend": agg.Trend,
		},
		ResponseTime: &elapsed, Timestamp: time.Now(),
	}, nil
}

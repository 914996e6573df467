package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/sentrymon/engine/internal/check"
	"github.com/sentrymon/engine/internal/store"
)

// AWSChecker reads the most recent CloudWatch datapoint for a resource's
// metric and reports it as its value (e.g. CPUUtilization percent).
type AWSChecker struct {
	Secrets SecretResolver
}

func (c *AWSChecker) Type() string { return "aws" }

func (c *AWSChecker) Validate(m check.Monitor) error {
	var s store.AWSSettings
	if len(m.GetSettings()) > 0 {
		if err := json.Unmarshal(m.GetSettings(), &s); err != nil {
			return fmt.Errorf("invalid aws settings: %w", err)
		}
	}
	if s.Region == "" {
		return fmt.Errorf("aws settings require a region")
	}
	if s.ResourceID == "" {
		return fmt.Errorf("aws settings require a resource_id")
	}
	return nil
}

func (c *AWSChecker) Check(ctx context.Context, m check.Monitor) (*check.Result, error) {
	var s store.AWSSettings
	if len(m.GetSettings()) > 0 {
		if err := json.Unmarshal(m.GetSettings(), &s); err != nil {
			return check.Errorf("invalid settings: %v", err), nil
		}
	}

	service := s.Service
	if service == "" {
		service = "ec2"
	}
	metric := s.Metric
	if metric == "" {
		metric = "CPUUtilization"
	}
	namespace, dimName := namespaceFor(service)

	timeout := time.Duration(m.GetTimeoutSeconds()) * time.Second
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if s.SecretAccessKey == "" && s.CredentialRef != "" {
		if c.Secrets == nil {
			return check.Errorf("credential_ref set but no secret resolver is configured"), nil
		}
		secret, err := c.Secrets.Resolve(checkCtx, s.CredentialRef)
		if err != nil {
			return check.Errorf("resolve credential_ref: %v", err), nil
		}
		s.SecretAccessKey = secret
	}

	var optFns []func(*config.LoadOptions) error
	optFns = append(optFns, config.WithRegion(s.Region))
	if s.AccessKeyID != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, "")))
	}

	start := time.Now()
	awsCfg, err := config.LoadDefaultConfig(checkCtx, optFns...)
	if err != nil {
		return check.Errorf("aws config load failed: %v", err), nil
	}

	client := cloudwatch.NewFromConfig(awsCfg)
	now := time.Now()
	out, err := client.GetMetricStatistics(checkCtx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(namespace),
		MetricName: aws.String(metric),
		Dimensions: []types.Dimension{{Name: aws.String(dimName), Value: aws.String(s.ResourceID)}},
		StartTime:  aws.Time(now.Add(-5 * time.Minute)),
		EndTime:    aws.Time(now),
		Period:     aws.Int32(60),
		Statistics: []types.Statistic{types.StatisticAverage},
	})
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return &check.Result{Success: false, Status: check.StatusError, Message: fmt.Sprintf("GetMetricStatistics failed: %v", err), ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}
	if len(out.Datapoints) == 0 {
		return &check.Result{Success: false, Status: check.StatusError, Message: "no datapoints returned in the last 5 minutes", ResponseTime: &elapsed, Timestamp: time.Now()}, nil
	}

	sort.Slice(out.Datapoints, func(i, j int) bool {
		return out.Datapoints[i].Timestamp.Before(*out.Datapoints[j].Timestamp)
	})
	values := make([]float64, len(out.Datapoints))
	for i, dp := range out.Datapoints {
		values[i] = aws.ToFloat64(dp.Average)
	}
	agg := aggregateMetricSeries(values)

	value := agg.Current
	return &check.Result{
		Success: true, Value: &value,
		Message: fmt.Sprintf("%s/%s %s = %.2f (avg %.2f, trend %s)", namespace, s.ResourceID, metric, agg.Current, agg.Average, agg.Trend),
		Metadata: map[string]any{
			"current": agg.Current, "average": agg.Average,
			"min": agg.Min, "max": agg.Max, "trend": agg.Trend,
		},
		ResponseTime: &elapsed, Timestamp: time.Now(),
	}, nil
}

func namespaceFor(service string) (namespace, dimension string) {
	switch service {
	case "rds":
		return "AWS/RDS", "DBInstanceIdentifier"
	case "lambda":
		return "AWS/Lambda", "FunctionName"
	case "elb", "alb":
		return "AWS/ApplicationELB", "LoadBalancer"
	default:
		return "AWS/EC2", "InstanceId"
	}
}

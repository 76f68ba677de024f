// Package metrics provides the CloudWatch-backed telemetry sink for the
// dispatch pipeline. Metric emission is strictly best-effort: a failed put
// is logged and dropped, never surfaced to the dispatch path.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"noticebox/internal/notify"
	"noticebox/internal/types"
)

// CloudWatchAPI defines the subset of the CloudWatch client used by the
// sink. Extracted for testability.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchSinkConfig holds the configuration for creating a CloudWatchSink.
type CloudWatchSinkConfig struct {
	// Namespace is the CloudWatch metric namespace.
	Namespace string

	// Logger for put failures.
	Logger *slog.Logger
}

// CloudWatchSink implements notify.Metrics by publishing dispatch counts and
// latencies as CloudWatch custom metrics.
type CloudWatchSink struct {
	api       CloudWatchAPI
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchSink creates a sink from an AWS config.
func NewCloudWatchSink(awsCfg aws.Config, cfg CloudWatchSinkConfig) *CloudWatchSink {
	return NewCloudWatchSinkWithAPI(cloudwatch.NewFromConfig(awsCfg), cfg)
}

// NewCloudWatchSinkWithAPI creates a sink with a pre-configured API client.
// Useful for testing with a mock CloudWatch interface.
func NewCloudWatchSinkWithAPI(api CloudWatchAPI, cfg CloudWatchSinkConfig) *CloudWatchSink {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "Noticebox"
	}
	return &CloudWatchSink{
		api:       api,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordDispatch publishes a NoticeDispatch count datum dimensioned by
// channel and result.
func (s *CloudWatchSink) RecordDispatch(ctx context.Context, channel types.ChannelType, result notify.MetricResult, count int) {
	s.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String("NoticeDispatch"),
		Value:      aws.Float64(float64(count)),
		Unit:       cwtypes.StandardUnitCount,
		Timestamp:  aws.Time(time.Now().UTC()),
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String("Channel"), Value: aws.String(string(channel))},
			{Name: aws.String("Result"), Value: aws.String(string(result))},
		},
	})
}

// RecordLatency publishes a DispatchLatency datum in milliseconds,
// dimensioned by channel.
func (s *CloudWatchSink) RecordLatency(ctx context.Context, channel types.ChannelType, d time.Duration) {
	s.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String("DispatchLatency"),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Timestamp:  aws.Time(time.Now().UTC()),
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String("Channel"), Value: aws.String(string(channel))},
		},
	})
}

func (s *CloudWatchSink) put(ctx context.Context, datum cwtypes.MetricDatum) {
	_, err := s.api.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(s.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "dropping metric datum",
			"metric", aws.ToString(datum.MetricName),
			"error", err.Error(),
		)
	}
}

// Compile-time assertion that CloudWatchSink satisfies notify.Metrics.
var _ notify.Metrics = (*CloudWatchSink)(nil)

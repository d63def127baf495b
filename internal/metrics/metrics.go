// Package metrics publishes ETL run metrics to CloudWatch. Publishing is
// best effort: the pipeline never fails because a metric could not be sent.
package metrics

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"dexflow/logger"
)

// Publisher pushes per-run datapoints into a CloudWatch namespace. A nil
// Publisher is valid and publishes nothing.
type Publisher struct {
	client    *cloudwatch.Client
	namespace string
	log       *logger.Entry
}

// NewPublisher builds a Publisher for the given region and namespace. If
// region is empty it falls back to the AWS_REGION environment variable. A
// failed AWS configuration load disables publishing rather than erroring.
func NewPublisher(region, namespace string) *Publisher {
	log := logger.GetLogger().WithComponent("metrics")

	if region == "" {
		region = os.Getenv("AWS_REGION")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		log.WithError(err).Warn("failed to load AWS configuration; metrics disabled")
		return nil
	}

	log.WithFields(logger.Fields{"region": region, "namespace": namespace}).Info("initialized metrics publisher")
	return &Publisher{
		client:    cloudwatch.NewFromConfig(cfg),
		namespace: namespace,
		log:       log,
	}
}

// RecordRun publishes the record count and duration of one chain-day run.
func (p *Publisher) RecordRun(ctx context.Context, chainID string, records int64, duration time.Duration, failed bool) {
	if p == nil || p.client == nil {
		return
	}

	dims := []cwtypes.Dimension{{
		Name:  aws.String("ChainID"),
		Value: aws.String(chainID),
	}}
	now := time.Now()

	status := 0.0
	if failed {
		status = 1.0
	}

	data := []cwtypes.MetricDatum{
		{
			MetricName: aws.String("RecordsProcessed"),
			Dimensions: dims,
			Timestamp:  aws.Time(now),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(records)),
		},
		{
			MetricName: aws.String("RunDurationSeconds"),
			Dimensions: dims,
			Timestamp:  aws.Time(now),
			Unit:       cwtypes.StandardUnitSeconds,
			Value:      aws.Float64(duration.Seconds()),
		},
		{
			MetricName: aws.String("RunFailed"),
			Dimensions: dims,
			Timestamp:  aws.Time(now),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(status),
		},
	}

	if _, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	}); err != nil {
		p.log.WithError(err).Warn("failed to publish run metrics")
	}
}

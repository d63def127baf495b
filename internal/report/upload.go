package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "dexflow/config"
	"dexflow/logger"
)

// Uploader publishes rendered dashboards to an S3 bucket so they can be
// served from static hosting.
type Uploader struct {
	client *s3.Client
	bucket string
	prefix string
	log    *logger.Entry
}

// NewUploader builds an S3 uploader from the storage configuration. Static
// credentials from the config take precedence over the ambient AWS chain.
func NewUploader(cfg appconfig.S3Config) (*Uploader, error) {
	log := logger.GetLogger().WithComponent("report")

	ctx := context.Background()
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	log.WithFields(logger.Fields{"bucket": cfg.Bucket, "region": cfg.Region}).Info("report uploader initialized")
	return &Uploader{
		client: s3.NewFromConfig(awsConfig),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log,
	}, nil
}

// Upload pushes the report file at localPath to the bucket under the
// configured prefix, keyed by the file's base name.
func (u *Uploader) Upload(ctx context.Context, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("reading report: %w", err)
	}

	key := path.Join(u.prefix, path.Base(localPath))
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/html; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("uploading report to s3://%s/%s: %w", u.bucket, key, err)
	}

	u.log.WithFields(logger.Fields{"bucket": u.bucket, "key": key, "size": len(data)}).Info("report uploaded")
	return nil
}

package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/wolfman30/medspa-pipeline/internal/config"
	"github.com/wolfman30/medspa-pipeline/internal/export"
	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

// LoadAWSConfig centralizes AWS SDK initialization so LocalStack and
// production share the same wiring.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if strings.TrimSpace(cfg.AWSAccessKeyID) != "" && strings.TrimSpace(cfg.AWSSecretAccessKey) != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, loaders...)
}

// NewS3Client builds the export client. An endpoint override switches to
// path-style addressing, which LocalStack needs.
func NewS3Client(awsCfg aws.Config, cfg *appconfig.Config) *s3.Client {
	endpoint := strings.TrimSpace(cfg.AWSEndpointOverride)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

// BuildExporter wires the S3 export sink, or returns nil when EXPORT_BUCKET
// is unset.
func BuildExporter(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*export.S3Sink, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	bucket := strings.TrimSpace(cfg.ExportBucket)
	if bucket == "" {
		logger.Warn("EXPORT_BUCKET not set; bulk export disabled")
		return nil, nil
	}

	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	logger.Info("bulk export enabled", "bucket", bucket, "prefix", cfg.ExportPrefix)
	return export.NewS3Sink(NewS3Client(awsCfg, cfg), bucket, cfg.ExportPrefix, logger), nil
}

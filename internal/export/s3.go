package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/medspa-pipeline/internal/pipeline"
	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

const DefaultLinkExpiry = 15 * time.Minute

// S3API is the subset of the S3 client used by S3Sink.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Presigner issues time-limited download links.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Sink uploads exports to a bucket and hands back a presigned link.
type S3Sink struct {
	client  S3API
	presign Presigner
	bucket  string
	prefix  string
	expiry  time.Duration
	now     func() time.Time
	logger  *logging.Logger
}

// NewS3Sink wires a sink over a real S3 client.
func NewS3Sink(client *s3.Client, bucket, prefix string, logger *logging.Logger) *S3Sink {
	return NewS3SinkWithAPI(client, s3.NewPresignClient(client), bucket, prefix, logger)
}

// NewS3SinkWithAPI allows injecting fakes for testing.
func NewS3SinkWithAPI(client S3API, presign Presigner, bucket, prefix string, logger *logging.Logger) *S3Sink {
	if logger == nil {
		logger = logging.Default()
	}
	if prefix == "" {
		prefix = "exports"
	}
	return &S3Sink{
		client:  client,
		presign: presign,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		expiry:  DefaultLinkExpiry,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.Component("export"),
	}
}

// Key is where an export lands: prefix/org/timestamp-filename, so repeated
// exports with the same name never overwrite each other.
func (s *S3Sink) Key(orgID, filename string) string {
	if orgID == "" {
		orgID = "unscoped"
	}
	stamp := s.now().Format("20060102T150405")
	return path.Join(s.prefix, orgID, stamp+"-"+path.Base(filename))
}

// Export implements pipeline.ExportSink.
func (s *S3Sink) Export(ctx context.Context, leads []pipeline.Lead, filename string) (string, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, leads); err != nil {
		return "", err
	}
	var orgID string
	if len(leads) > 0 {
		orgID = leads[0].OrgID
	}
	key := s.Key(orgID, filename)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(buf.Bytes()),
		ContentType:        aws.String("text/csv"),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", path.Base(filename))),
	})
	if err != nil {
		return "", fmt.Errorf("export: s3 put %s: %w", key, err)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", fmt.Errorf("export: presign %s: %w", key, err)
	}

	s.logger.Info("leads exported", "key", key, "count", len(leads), "bytes", buf.Len())
	return req.URL, nil
}

// Package artifacts uploads committed export files to an S3-compatible bucket.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cohortgraph/internal/config"
	"github.com/xkilldash9x/cohortgraph/internal/export"
)

// PutObjectAPI is the subset of the S3 client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader puts export files under a key prefix.
type Uploader struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger *zap.Logger
}

// NewUploader wraps an existing client.
func NewUploader(client PutObjectAPI, bucket, prefix string, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.Named("artifacts"),
	}
}

// NewS3Uploader builds an S3 client from the default AWS credential chain. If an
// endpoint is configured, path-style addressing is enabled (for MinIO and similar).
func NewS3Uploader(ctx context.Context, cfg config.S3Config, logger *zap.Logger) (*Uploader, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return NewUploader(s3.NewFromConfig(awsCfg, s3opts...), cfg.Bucket, cfg.Prefix, logger), nil
}

// Key is the object key a file is stored under.
func (u *Uploader) Key(name string) string {
	if u.prefix == "" {
		return name
	}
	return path.Join(u.prefix, name)
}

func contentType(name string) string {
	switch {
	case strings.HasSuffix(name, ".br"):
		return "application/octet-stream"
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	case strings.HasSuffix(name, ".csv"):
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

// Upload puts every file of the manifest and returns the keys written, in manifest order.
func (u *Uploader) Upload(ctx context.Context, files []export.ExportedFile) ([]string, error) {
	keys := make([]string, 0, len(files))
	for _, f := range files {
		key := u.Key(f.Name)
		if err := u.put(ctx, f, key); err != nil {
			return keys, err
		}
		keys = append(keys, key)
		u.logger.Info("Artifact uploaded.", zap.String("bucket", u.bucket), zap.String("key", key), zap.Int64("bytes", f.Bytes))
	}
	return keys, nil
}

func (u *Uploader) put(ctx context.Context, f export.ExportedFile, key string) error {
	body, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer body.Close()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(f.Bytes),
		ContentType:   aws.String(contentType(f.Name)),
		Metadata:      map[string]string{"sha256": f.SHA256},
	})
	if err != nil {
		return fmt.Errorf("s3 put object %s: %w", key, err)
	}
	return nil
}

package sync

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Destination uploads snapshots to an S3-compatible bucket.
type S3Destination struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Destination creates an S3 destination. key may contain "{date}",
// replaced by the snapshot's UTC date, to keep one object per day. A
// non-empty endpoint enables path-style addressing (MinIO and similar).
func NewS3Destination(ctx context.Context, bucket, key, region, endpoint string) (*S3Destination, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return &S3Destination{
		client: s3.NewFromConfig(cfg, s3opts...),
		bucket: bucket,
		key:    key,
	}, nil
}

// objectKey expands the key template for a snapshot taken at t.
func objectKey(template string, t time.Time) string {
	return strings.ReplaceAll(template, "{date}", t.UTC().Format("2006-01-02"))
}

// Write uploads data under the expanded object key.
func (d *S3Destination) Write(ctx context.Context, at time.Time, data []byte) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(objectKey(d.key, at)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

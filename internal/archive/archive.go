// Package archive uploads recorded clips to S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ayusman/mudra/internal/clip"
)

// DefaultBucket is used when no bucket is configured.
const DefaultBucket = "mudra-clips"

// ErrNotConfigured is returned by New without an endpoint.
var ErrNotConfigured = errors.New("archive endpoint not configured")

// Config configures the object store connection.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
	Region    string
}

// Archive stores clips under date-partitioned object names.
type Archive struct {
	client *minio.Client
	bucket string
	region string
}

// New creates an Archive. It does not contact the server.
func New(cfg Config) (*Archive, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, ErrNotConfigured
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	return &Archive{client: client, bucket: bucket, region: cfg.Region}, nil
}

// Bucket returns the target bucket name.
func (a *Archive) Bucket() string { return a.bucket }

// EnsureBucket creates the bucket if it does not exist.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	log.Printf("Creating archive bucket: %s", a.bucket)
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Put uploads c and returns its object name.
func (a *Archive) Put(ctx context.Context, id string, c clip.Clip, at time.Time) (string, error) {
	if c.Empty() {
		return "", errors.New("refusing to archive an empty clip")
	}

	name := ObjectName(id, c.ContentType(), at)
	_, err := a.client.PutObject(ctx, a.bucket, name, bytes.NewReader(c.Data), int64(len(c.Data)), minio.PutObjectOptions{
		ContentType: c.ContentType(),
		UserMetadata: map[string]string{
			"frames":      fmt.Sprint(c.Frames),
			"duration-ms": fmt.Sprint(c.Duration.Milliseconds()),
		},
	})
	if err != nil {
		return "", fmt.Errorf("upload clip: %w", err)
	}
	return name, nil
}

// ObjectName returns clips/YYYY/MM/DD/<id><ext> in UTC.
func ObjectName(id, mimeType string, at time.Time) string {
	return fmt.Sprintf("clips/%s/%s%s", at.UTC().Format("2006/01/02"), id, clip.Extension(mimeType))
}

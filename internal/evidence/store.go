package evidence

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStoreConfig configures the S3-compatible bucket archived
// evidence is uploaded to.
type ObjectStoreConfig struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
}

// ObjectStore wraps a minio client scoped to the evidence bucket, the
// same shape the control plane's internal/s3 client uses for its own
// archival uploads.
type ObjectStore struct {
	mc     *minio.Client
	bucket string
}

// NewObjectStore builds an ObjectStore from cfg.
func NewObjectStore(cfg ObjectStoreConfig) (*ObjectStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("evidence object store requires endpoint and bucket")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	return &ObjectStore{mc: mc, bucket: cfg.Bucket}, nil
}

// objectKey is where a lab's archived evidence lives in the bucket.
func objectKey(labID uuid.UUID) string {
	return fmt.Sprintf("labs/%s/evidence.tar.gz", labID)
}

// Upload stores the archived evidence for labID.
func (s *ObjectStore) Upload(ctx context.Context, labID uuid.UUID, r io.Reader, size int64) error {
	key := objectKey(labID)
	_, err := s.mc.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: "application/gzip",
	})
	if err != nil {
		return fmt.Errorf("uploading evidence to s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// Exists reports whether labID's evidence archive is already stored.
func (s *ObjectStore) Exists(ctx context.Context, labID uuid.UUID) (bool, error) {
	key := objectKey(labID)
	_, err := s.mc.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("checking evidence existence at s3://%s/%s: %w", s.bucket, key, err)
	}
	return true, nil
}

// EnsureBucket creates the configured bucket if it does not exist yet.
func (s *ObjectStore) EnsureBucket(ctx context.Context, region string) error {
	exists, err := s.mc.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking evidence bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("creating evidence bucket %q: %w", s.bucket, err)
	}
	return nil
}

// PresignedDownloadURL returns a time-limited URL an operator can use
// to fetch a lab's archived evidence directly from object storage.
func (s *ObjectStore) PresignedDownloadURL(ctx context.Context, labID uuid.UUID, expirySeconds int64) (string, error) {
	key := objectKey(labID)
	u, err := s.mc.PresignedGetObject(ctx, s.bucket, key, time.Duration(expirySeconds)*time.Second, nil)
	if err != nil {
		return "", fmt.Errorf("presigning evidence download for s3://%s/%s: %w", s.bucket, key, err)
	}
	return u.String(), nil
}

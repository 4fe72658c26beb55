package blobstore

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jmobrien1/mdraft2/internal/model"
)

// MinIOConfig holds the S3-compatible endpoint settings.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
}

// MinIO wraps MinIO/S3 interactions for uploaded originals.
type MinIO struct {
	client *minio.Client
	bucket string
	region string
}

// NewMinIO creates a MinIO client. No request is made until first use.
func NewMinIO(cfg MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, model.E(model.ErrConfiguration, "init minio", err)
	}
	return &MinIO{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *MinIO) EnsureBucket(ctx context.Context) error {
	if err := requireBucket("ensure bucket", s.bucket); err != nil {
		return err
	}
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return model.E(model.ErrStorage, "ensure bucket", fmt.Errorf("check bucket %s: %w", s.bucket, err))
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return model.E(model.ErrStorage, "ensure bucket", fmt.Errorf("make bucket %s: %w", s.bucket, err))
	}
	return nil
}

// Put uploads r under key and returns its s3:// URI.
func (s *MinIO) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if err := requireBucket("put object", s.bucket); err != nil {
		return "", err
	}
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, opts); err != nil {
		return "", model.E(model.ErrStorage, "put object", err)
	}
	return FormatURI(SchemeS3, s.bucket, key), nil
}

// Get downloads the object behind uri.
func (s *MinIO) Get(ctx context.Context, uri string) ([]byte, error) {
	if err := requireBucket("get object", s.bucket); err != nil {
		return nil, err
	}
	key, err := objectKey(uri, SchemeS3, s.bucket)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, model.E(model.ErrStorage, "get object", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, model.E(model.ErrStorage, "read object", err)
	}
	return buf, nil
}

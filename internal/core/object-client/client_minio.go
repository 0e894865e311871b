package objectclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"

	cfg "github.com/markdave123-py/Contexta-knowledge/internal/config"
	"github.com/markdave123-py/Contexta-knowledge/internal/core"
)

var _ core.ObjectClient = (*MinioClient)(nil)

// MinioClient stores blobs in MinIO or any S3-compatible endpoint.
type MinioClient struct {
	client   *minio.Client
	endpoint string
	secure   bool
}

func NewMinioClient(ctx context.Context, cfg *cfg.Config) (*MinioClient, error) {
	if cfg.MinioEndpoint == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT not set")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("bucket name not set")
	}

	// minio.New expects host[:port] without scheme
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.MinioEndpoint, "http://"), "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctxBucket, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctxBucket, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.BucketName, err)
	}
	if !exists {
		if err := client.MakeBucket(ctxBucket, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.BucketName, err)
		}
		log.Info().Str("bucket", cfg.BucketName).Msg("minio bucket created")
	}

	return &MinioClient{client: client, endpoint: endpoint, secure: cfg.MinioUseSSL}, nil
}

func (c *MinioClient) UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := c.client.PutObject(ctxUpload, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("minio upload failed: %w", err)
	}

	scheme := "http"
	if c.secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, c.endpoint, bucket, key), nil
}

func (c *MinioClient) DeleteFile(ctx context.Context, bucket, key string) error {
	ctxDel, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := c.client.RemoveObject(ctxDel, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio delete failed: %w", err)
	}
	return nil
}

func (c *MinioClient) GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	ctxGet, cancel := context.WithTimeout(ctx, 2*time.Minute)

	obj, err := c.client.GetObject(ctxGet, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("minio get failed: %w", err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller starts streaming.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		cancel()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("minio object %s: %w", key, core.ErrNotFound)
		}
		return nil, fmt.Errorf("minio stat failed: %w", err)
	}

	return &cancelReadCloser{ReadCloser: obj, cancel: cancel}, nil
}

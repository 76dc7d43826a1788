package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"frame-extractor/client"
)

// ArchiveStore offloads finished frame archives to an S3 compatible bucket.
type ArchiveStore struct {
	client     *miniogo.Client
	bucket     string
	prefix     string
	presignTTL time.Duration
}

type ArchiveStoreConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	Region     string
	Bucket     string
	Prefix     string
	PresignTTL time.Duration
}

func NewArchiveStore(cfg ArchiveStoreConfig) (*ArchiveStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	// A fixed region skips the bucket location lookup when presigning
	mc, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: client.GetTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &ArchiveStore{
		client:     mc,
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		presignTTL: cfg.PresignTTL,
	}, nil
}

func (s *ArchiveStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Key is the object key of a session's archive.
func (s *ArchiveStore) Key(sessionID, fileName string) string {
	return path.Join(s.prefix, sessionID, fileName)
}

// Upload stores the archive file and returns its size.
func (s *ArchiveStore) Upload(ctx context.Context, key, filePath string) (int64, error) {
	info, err := s.client.FPutObject(ctx, s.bucket, key, filePath, miniogo.PutObjectOptions{
		ContentType: "application/zip",
	})
	if err != nil {
		return 0, fmt.Errorf("upload zip: %w", err)
	}
	return info.Size, nil
}

// PresignedURL returns a time limited download link that saves as downloadName.
func (s *ArchiveStore) PresignedURL(ctx context.Context, key, downloadName string) (*url.URL, error) {
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", downloadName))

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.presignTTL, params)
	if err != nil {
		return nil, fmt.Errorf("presign %s: %w", key, err)
	}
	return u, nil
}

func (s *ArchiveStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, miniogo.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

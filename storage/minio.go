package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"auralite/config"
	"auralite/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore stores uploaded payloads as objects in a MinIO bucket. Selected
// with STORAGE_DRIVER=minio.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	maxSize int64
}

// NewMinioStore 初始化 MinIO 客户端并确保存储桶存在
func NewMinioStore(cfg *config.Config, maxSize int64) (*MinioStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("成功创建存储桶", logger.String("bucket", cfg.MinioBucket))
	}

	return &MinioStore{client: client, bucket: cfg.MinioBucket, maxSize: maxSize}, nil
}

// Save 将流上传为唯一命名的对象。超限时直接失败，不会留下对象。
func (s *MinioStore) Save(ctx context.Context, r io.Reader, originalName, contentType string) (string, int64, error) {
	// 先读入缓冲区以便在上传前校验大小（上限50MiB，可接受）
	buffer := &bytes.Buffer{}
	size, err := io.Copy(buffer, io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return "", 0, fmt.Errorf("failed to read upload stream: %w", err)
	}
	if size > s.maxSize {
		return "", 0, ErrFileTooLarge
	}

	name := GenerateStoredName(originalName)
	opts := minio.PutObjectOptions{
		ContentType:      contentType,
		DisableMultipart: true,
	}
	if _, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(buffer.Bytes()), size, opts); err != nil {
		return "", 0, fmt.Errorf("failed to upload to MinIO: %w", err)
	}

	return name, size, nil
}

// Remove deletes a stored object by name.
func (s *MinioStore) Remove(ctx context.Context, name string) error {
	if !validName(name) {
		return fmt.Errorf("invalid stored name: %q", name)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object %s: %w", name, err)
	}
	return nil
}

// Open opens a stored object by name for reading.
func (s *MinioStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if !validName(name) {
		return nil, fmt.Errorf("invalid stored name: %q", name)
	}
	object, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	// GetObject延迟求值，先Stat确认对象存在
	if _, err := object.Stat(); err != nil {
		object.Close()
		return nil, err
	}
	return object, nil
}

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"auralite/logger"
)

// LocalStore stores uploaded payloads as files inside a single upload root
// directory.
type LocalStore struct {
	root    string
	maxSize int64
}

// NewLocalStore creates the upload root if absent and returns a LocalStore.
func NewLocalStore(root string, maxSize int64) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", root, err)
	}
	return &LocalStore{root: root, maxSize: maxSize}, nil
}

// Root returns the upload root directory.
func (s *LocalStore) Root() string {
	return s.root
}

// Save 将流写入临时文件，校验大小上限后重命名为最终的唯一文件名。
// 任何失败（包括流中断和超限）都会删除临时文件，部分内容绝不会出现在最终名下。
func (s *LocalStore) Save(ctx context.Context, r io.Reader, originalName, contentType string) (string, int64, error) {
	tmp, err := os.CreateTemp(s.root, ".upload-*.part")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("删除上传临时文件失败",
				logger.String("path", tmpPath),
				logger.ErrorField(err))
		}
	}

	// 多读一个字节以检测超限，上限在流中途生效而不是收完才检查
	written, err := io.Copy(tmp, io.LimitReader(r, s.maxSize+1))
	if err != nil {
		cleanup()
		return "", 0, fmt.Errorf("failed to write upload stream: %w", err)
	}
	if written > s.maxSize {
		cleanup()
		return "", 0, ErrFileTooLarge
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", 0, fmt.Errorf("failed to sync upload file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", 0, fmt.Errorf("failed to close upload file: %w", err)
	}

	name := GenerateStoredName(originalName)
	finalPath := filepath.Join(s.root, name)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to finalize upload file: %w", err)
	}

	return name, written, nil
}

// Remove deletes a stored file by name.
func (s *LocalStore) Remove(ctx context.Context, name string) error {
	if !validName(name) {
		return fmt.Errorf("invalid stored name: %q", name)
	}
	if err := os.Remove(filepath.Join(s.root, name)); err != nil {
		return fmt.Errorf("failed to remove stored file %s: %w", name, err)
	}
	return nil
}

// Open opens a stored file by name for reading.
func (s *LocalStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if !validName(name) {
		return nil, fmt.Errorf("invalid stored name: %q", name)
	}
	f, err := os.Open(filepath.Join(s.root, name))
	if err != nil {
		return nil, err
	}
	return f, nil
}

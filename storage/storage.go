package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

// ErrFileTooLarge is returned by Save when the stream exceeds the size cap.
var ErrFileTooLarge = errors.New("file exceeds maximum allowed size")

// Store 是音频文件的持久化后端。
// Save 将流写入一个唯一命名的对象并返回存储名，失败时不得留下可见的部分文件。
type Store interface {
	Save(ctx context.Context, r io.Reader, originalName, contentType string) (name string, size int64, err error)
	Remove(ctx context.Context, name string) error
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

func generateUniqueSuffix() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// GenerateStoredName 生成不会与并发上传冲突的存储文件名：
// 纳秒时间戳 + 随机后缀 + 小写原始扩展名。
func GenerateStoredName(originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	return fmt.Sprintf("%d-%s%s", time.Now().UnixNano(), generateUniqueSuffix(), ext)
}

// validName 拒绝包含路径成分的存储名，存储名必须是单一文件名
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

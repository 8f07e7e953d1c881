package client

import (
	"context"
	"sync"

	"auralite/model"

	"github.com/google/uuid"
)

// ItemState is the terminal-state machine of one batch item.
type ItemState string

const (
	StatePending   ItemState = "pending"
	StateUploading ItemState = "uploading"
	StateSucceeded ItemState = "succeeded"
	StateFailed    ItemState = "failed"
)

// UploadItem tracks one file through an upload batch. It exists only for the
// duration of the batch.
type UploadItem struct {
	Path     string
	Title    string
	Artist   string
	Album    string
	State    ItemState
	Progress float64 // 0-100, non-decreasing
	Err      string
	Track    *model.Track
}

// BatchResult summarizes a completed batch.
type BatchResult struct {
	BatchID   string
	Succeeded int
	Failed    int
	Items     []*UploadItem
	// Tracks is the authoritative track listing fetched from the server after
	// the batch, populated when at least one item succeeded.
	Tracks []*model.Track
}

// BatchProgressFunc 在任一条目的进度变化时回调：条目下标、该条目
// 进度和整批的平均进度（均为0-100）。
type BatchProgressFunc func(index int, itemPct, overallPct float64)

// Uploader 将一批文件按顺序上传到同一个歌单。
type Uploader struct {
	client     *Client
	onProgress BatchProgressFunc

	// 字节进度回调在请求体的写入goroutine上触发，且服务器可能在
	// 请求体写完之前就应答，所以条目字段的读写都必须持锁。
	mu sync.Mutex
}

// NewUploader creates an Uploader on top of a Client.
func NewUploader(c *Client, onProgress BatchProgressFunc) *Uploader {
	return &Uploader{client: c, onProgress: onProgress}
}

// UploadBatch 逐个上传文件：严格串行，前一个文件到达终态后才开始
// 下一个；单个文件失败不中止整批。返回成功/失败计数，且只要有至少
// 一个成功，就从服务端重新拉取权威曲目列表，绝不用上传响应在本地拼装。
func (u *Uploader) UploadBatch(ctx context.Context, playlistID int64, items []*UploadItem) (*BatchResult, error) {
	result := &BatchResult{
		BatchID: uuid.NewString(),
		Items:   items,
	}
	if len(items) == 0 {
		return result, nil
	}

	for _, item := range items {
		if item.State == "" {
			item.State = StatePending
		}
	}

	for i, item := range items {
		u.mu.Lock()
		item.State = StateUploading
		u.notifyLocked(i, items)
		u.mu.Unlock()

		req := UploadRequest{
			PlaylistID: playlistID,
			Path:       item.Path,
			Title:      item.Title,
			Artist:     item.Artist,
			Album:      item.Album,
		}

		track, err := u.client.UploadTrack(ctx, req, func(sent, total int64) {
			u.mu.Lock()
			defer u.mu.Unlock()
			// 条目到达终态后，写入goroutine迟到的进度不再生效
			if item.State != StateUploading {
				return
			}
			pct := 100.0
			if total > 0 {
				pct = float64(sent) / float64(total) * 100
			}
			if pct > 100 {
				pct = 100
			}
			// 进度只增不减
			if pct > item.Progress {
				item.Progress = pct
				u.notifyLocked(i, items)
			}
		})

		u.mu.Lock()
		if err != nil {
			item.State = StateFailed
			item.Err = err.Error()
			result.Failed++
			u.notifyLocked(i, items)
			u.mu.Unlock()
			continue
		}

		// 即使传输层没有字节级进度，完成的条目也计为100
		item.Progress = 100
		item.State = StateSucceeded
		item.Track = track
		result.Succeeded++
		u.notifyLocked(i, items)
		u.mu.Unlock()
	}

	if result.Succeeded > 0 {
		tracks, err := u.client.PlaylistTracks(ctx, playlistID)
		if err != nil {
			return result, err
		}
		result.Tracks = tracks
	}

	return result, nil
}

// OverallProgress 返回整批的平均进度：未开始的条目计0，完成的计100。
func OverallProgress(items []*UploadItem) float64 {
	if len(items) == 0 {
		return 0
	}
	var sum float64
	for _, item := range items {
		sum += item.Progress
	}
	return sum / float64(len(items))
}

// notifyLocked 向调用方上报进度，调用前必须已持有 u.mu
func (u *Uploader) notifyLocked(index int, items []*UploadItem) {
	if u.onProgress != nil {
		u.onProgress(index, items[index].Progress, OverallProgress(items))
	}
}

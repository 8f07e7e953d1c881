package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"auralite/db"
	"auralite/logger"
	"auralite/model"
)

// 曲目列表缓存的过期时间。写路径总是先失效再响应，TTL只是兜底。
const trackListTTL = 5 * time.Minute

// TrackListKey 根据歌单ID生成曲目列表的Redis键
func TrackListKey(playlistID int64) string {
	return fmt.Sprintf("tracks:%d", playlistID)
}

// GetTrackList 从缓存读取歌单的曲目列表。
// 缓存未命中、Redis不可用或数据损坏时返回 (nil, false)。
func GetTrackList(ctx context.Context, playlistID int64) ([]*model.Track, bool) {
	if db.RedisClient == nil {
		return nil, false
	}

	data, err := db.RedisClient.Get(ctx, TrackListKey(playlistID)).Bytes()
	if err != nil {
		return nil, false
	}

	var tracks []*model.Track
	if err := json.Unmarshal(data, &tracks); err != nil {
		logger.Warn("曲目列表缓存数据损坏，已忽略",
			logger.Int64("playlistId", playlistID),
			logger.ErrorField(err))
		return nil, false
	}
	return tracks, true
}

// SetTrackList 将歌单的曲目列表写入缓存
func SetTrackList(ctx context.Context, playlistID int64, tracks []*model.Track) {
	if db.RedisClient == nil {
		return
	}

	data, err := json.Marshal(tracks)
	if err != nil {
		return
	}

	if err := db.RedisClient.Set(ctx, TrackListKey(playlistID), data, trackListTTL).Err(); err != nil {
		logger.Warn("写入曲目列表缓存失败",
			logger.Int64("playlistId", playlistID),
			logger.ErrorField(err))
	}
}

// InvalidateTrackList 使歌单的曲目列表缓存失效。
// 上传、删除曲目和删除歌单后必须调用，保证读取到的列表与库中一致。
func InvalidateTrackList(ctx context.Context, playlistID int64) {
	if db.RedisClient == nil {
		return
	}

	if err := db.RedisClient.Del(ctx, TrackListKey(playlistID)).Err(); err != nil {
		logger.Warn("失效曲目列表缓存失败",
			logger.Int64("playlistId", playlistID),
			logger.ErrorField(err))
	}
}

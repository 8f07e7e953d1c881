package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"auralite/cache"
	"auralite/config"
	"auralite/db"
	"auralite/logger"
	"auralite/model"
	"auralite/protocol"
	"auralite/repository"
	"auralite/storage"

	"github.com/gorilla/mux"
)

// 上传请求的服务端超时，限制被拖死的连接占用资源
const uploadTimeout = 5 * time.Minute

// 单个非文件字段的大小上限
const maxFieldSize = 1 << 20

// APIHandler 处理所有API请求
type APIHandler struct {
	playlistRepo repository.PlaylistRepository
	trackRepo    repository.TrackRepository
	store        storage.Store
	cfg          *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	playlistRepo repository.PlaylistRepository,
	trackRepo repository.TrackRepository,
	store storage.Store,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		playlistRepo: playlistRepo,
		trackRepo:    trackRepo,
		store:        store,
		cfg:          cfg,
	}
}

// GetPlaylistTracksHandler 返回歌单的曲目列表，按创建时间倒序。
// 读路径先查缓存，未命中再读库并回填。
func (h *APIHandler) GetPlaylistTracksHandler(w http.ResponseWriter, r *http.Request) {
	playlistID, err := strconv.ParseInt(mux.Vars(r)["playlistId"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, protocol.APIError{Error: "Invalid playlist ID"})
		return
	}

	playlist, err := h.playlistRepo.GetPlaylistByID(playlistID)
	if err != nil {
		writeStoreError(w, "GetPlaylistByID", err)
		return
	}
	if playlist == nil {
		writeError(w, http.StatusNotFound, protocol.APIError{Error: "Playlist not found"})
		return
	}

	if tracks, ok := cache.GetTrackList(r.Context(), playlistID); ok {
		writeJSON(w, http.StatusOK, tracks)
		return
	}

	tracks, err := h.trackRepo.GetTracksByPlaylistID(playlistID)
	if err != nil {
		writeStoreError(w, "GetTracksByPlaylistID", err)
		return
	}

	cache.SetTrackList(r.Context(), playlistID, tracks)
	writeJSON(w, http.StatusOK, tracks)
}

// uploadReceipt 记录上传流的接收状态。
// 流中断是否可容忍只取决于文件是否已完整落盘，而不是错误消息匹配。
type uploadReceipt struct {
	fields       map[string]string
	storedName   string
	originalName string
	contentType  string
	size         int64
	fileComplete bool
}

// UploadTrackHandler handles audio file uploads and metadata.
// 流水线：receiving → validating → persisting-file → writing-record → responding，
// 文件落盘之后的任何失败都会删除已写入的文件，保证不产生孤儿文件。
func (h *APIHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	logger.Info("开始处理上传请求",
		logger.String("remoteAddr", r.RemoteAddr),
		logger.Int64("contentLength", r.ContentLength))

	ctx, cancel := context.WithTimeout(r.Context(), uploadTimeout)
	defer cancel()
	r = r.WithContext(ctx)

	// 整体请求大小兜底：文件上限 + 字段预算
	r.Body = http.MaxBytesReader(w, r.Body, protocol.MaxFileSize+int64(protocol.MaxFields)*maxFieldSize+(1<<20))

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, protocol.APIError{
			Error: "Failed to parse upload form. Please check your file and try again.",
		})
		return
	}

	receipt, errResp := h.receiveUpload(ctx, mr)
	if errResp != nil {
		h.discardUpload(ctx, receipt)
		writeError(w, errResp.status, errResp.body)
		return
	}

	track, errResp := h.persistUpload(receipt)
	if errResp != nil {
		h.discardUpload(ctx, receipt)
		writeError(w, errResp.status, errResp.body)
		return
	}

	cache.InvalidateTrackList(ctx, track.PlaylistID)

	logger.Info("曲目上传成功",
		logger.Int64("trackId", track.ID),
		logger.Int64("playlistId", track.PlaylistID),
		logger.String("filePath", track.FilePath),
		logger.Int64("fileSize", track.FileSize))
	writeJSON(w, http.StatusCreated, track)
}

// uploadError 是流水线某一阶段的失败出口
type uploadError struct {
	status int
	body   protocol.APIError
}

// receiveUpload 流式接收multipart请求体：收集元数据字段，
// 遇到音频part时先过类型白名单，再经由存储后端落盘（persisting-file阶段，
// 大小上限由流读取器在中途强制，不等收完再检查）。
func (h *APIHandler) receiveUpload(ctx context.Context, mr *multipart.Reader) (*uploadReceipt, *uploadError) {
	receipt := &uploadReceipt{fields: make(map[string]string)}
	fileCount := 0

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// 流在part边界中断。仅当文件已完整落盘时容忍并继续，
			// 否则按可重试的中断处理。绝不按错误消息模糊匹配来压制。
			if receipt.fileComplete {
				logger.Warn("文件已完整接收，忽略后续的表单流异常",
					logger.String("filePath", receipt.storedName),
					logger.ErrorField(err))
				break
			}
			return receipt, &uploadError{http.StatusBadRequest, protocol.APIError{
				Error:   "Upload failed: The upload was interrupted. Please try again.",
				Details: "Please ensure your connection is stable and try uploading again.",
				Code:    protocol.CodeInterrupted,
			}}
		}

		if part.FormName() != protocol.FileField {
			if len(receipt.fields) >= protocol.MaxFields {
				part.Close()
				return receipt, &uploadError{http.StatusBadRequest, protocol.APIError{
					Error: "Too many form fields",
					Code:  protocol.CodeTooManyParts,
				}}
			}
			value, err := io.ReadAll(io.LimitReader(part, maxFieldSize))
			part.Close()
			if err != nil {
				if receipt.fileComplete {
					logger.Warn("文件已完整接收，忽略残缺的表单字段",
						logger.String("field", part.FormName()),
						logger.ErrorField(err))
					continue
				}
				return receipt, &uploadError{http.StatusBadRequest, protocol.APIError{
					Error: "Upload failed: The upload was interrupted. Please try again.",
					Code:  protocol.CodeInterrupted,
				}}
			}
			receipt.fields[part.FormName()] = string(value)
			continue
		}

		fileCount++
		if fileCount > protocol.MaxFiles {
			part.Close()
			return receipt, &uploadError{http.StatusBadRequest, protocol.APIError{
				Error: "Only one file is allowed per upload",
			}}
		}

		receipt.originalName = part.FileName()
		receipt.contentType = part.Header.Get("Content-Type")

		// 类型门禁在写盘之前生效
		if !protocol.Allowed(receipt.contentType, receipt.originalName) {
			part.Close()
			logger.Warn("不支持的文件类型",
				logger.String("contentType", receipt.contentType),
				logger.String("filename", receipt.originalName))
			return receipt, &uploadError{http.StatusBadRequest, protocol.APIError{
				Error: fmt.Sprintf("Invalid file type. Only audio files are allowed. Got: %s", displayType(receipt.contentType)),
				Code:  protocol.CodeInvalidType,
			}}
		}

		name, size, err := h.store.Save(ctx, part, receipt.originalName, receipt.contentType)
		part.Close()
		if err != nil {
			if errors.Is(err, storage.ErrFileTooLarge) {
				return receipt, &uploadError{http.StatusRequestEntityTooLarge, protocol.APIError{
					Error: "File too large. Maximum size is 50MB.",
					Code:  protocol.CodeFileTooLarge,
				}}
			}
			// 写盘中途失败意味着流被截断，临时文件已由存储层清理
			logger.Error("写入上传文件失败",
				logger.String("filename", receipt.originalName),
				logger.ErrorField(err))
			return receipt, &uploadError{http.StatusBadRequest, protocol.APIError{
				Error:   "Upload failed: The upload was interrupted. Please try again.",
				Details: "Please ensure your connection is stable and try uploading again.",
				Code:    protocol.CodeInterrupted,
			}}
		}

		receipt.storedName = name
		receipt.size = size
		receipt.fileComplete = true
	}

	return receipt, nil
}

func displayType(contentType string) string {
	if contentType == "" {
		return "unknown"
	}
	return contentType
}

// discardUpload 删除已落盘但未建档的文件，失败只记日志
func (h *APIHandler) discardUpload(ctx context.Context, receipt *uploadReceipt) {
	if receipt == nil || receipt.storedName == "" {
		return
	}
	if err := h.store.Remove(ctx, receipt.storedName); err != nil {
		logger.Error("清理未建档的上传文件失败",
			logger.String("filePath", receipt.storedName),
			logger.ErrorField(err))
	} else {
		logger.Info("已清理未建档的上传文件", logger.String("filePath", receipt.storedName))
	}
}

// persistUpload 校验元数据并写入曲目记录（writing-record阶段）
func (h *APIHandler) persistUpload(receipt *uploadReceipt) (*model.Track, *uploadError) {
	playlistIDStr := strings.TrimSpace(receipt.fields[protocol.PlaylistField])
	title := strings.TrimSpace(receipt.fields[protocol.TitleField])

	if playlistIDStr == "" || title == "" || !receipt.fileComplete {
		return nil, &uploadError{http.StatusBadRequest, protocol.APIError{
			Error: "Playlist ID, title, and file are required",
		}}
	}

	playlistID, err := strconv.ParseInt(playlistIDStr, 10, 64)
	if err != nil {
		return nil, &uploadError{http.StatusBadRequest, protocol.APIError{
			Error: "Invalid playlist ID",
		}}
	}

	playlist, err := h.playlistRepo.GetPlaylistByID(playlistID)
	if err != nil {
		return nil, storeUploadError("GetPlaylistByID", err)
	}
	if playlist == nil {
		return nil, &uploadError{http.StatusNotFound, protocol.APIError{
			Error: "Playlist not found",
		}}
	}

	track := &model.Track{
		PlaylistID: playlistID,
		Title:      title,
		Artist:     strings.TrimSpace(receipt.fields[protocol.ArtistField]),
		Album:      strings.TrimSpace(receipt.fields[protocol.AlbumField]),
		FilePath:   receipt.storedName,
		FileSize:   receipt.size,
		FileType:   receipt.contentType,
	}

	id, err := h.trackRepo.CreateTrack(track)
	if err != nil {
		return nil, storeUploadError("CreateTrack", err)
	}

	// 返回库中的完整记录，客户端无需再发一次查询
	created, err := h.trackRepo.GetTrackByID(id)
	if err != nil || created == nil {
		logger.Warn("回读新建曲目失败，使用本地构造的记录",
			logger.Int64("trackId", id),
			logger.ErrorField(err))
		track.ID = id
		track.CreatedAt = time.Now()
		return track, nil
	}

	return created, nil
}

// storeUploadError 将数据库失败映射为流水线错误出口，完整细节只进日志
func storeUploadError(op string, err error) *uploadError {
	classified := db.ClassifyDBError(err)
	logger.Error("上传流水线的存储操作失败",
		logger.String("op", op),
		logger.String("code", classified.Code),
		logger.ErrorField(err))
	return &uploadError{classified.Status, protocol.APIError{
		Error: classified.Message,
		Code:  classified.Code,
		Hint:  classified.Hint,
	}}
}

// DeleteTrackHandler 删除曲目：先删行，再尽力删除文件。
// 文件删除失败只记日志，不作为错误返回给调用方。
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	trackID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, protocol.APIError{Error: "Invalid track ID"})
		return
	}

	track, err := h.trackRepo.GetTrackByID(trackID)
	if err != nil {
		writeStoreError(w, "GetTrackByID", err)
		return
	}
	if track == nil {
		writeError(w, http.StatusNotFound, protocol.APIError{Error: "Track not found"})
		return
	}

	ok, err := h.trackRepo.DeleteTrack(trackID)
	if err != nil {
		writeStoreError(w, "DeleteTrack", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, protocol.APIError{Error: "Track not found"})
		return
	}

	if track.FilePath != "" {
		if err := h.store.Remove(r.Context(), track.FilePath); err != nil {
			logger.Warn("删除曲目文件失败",
				logger.Int64("trackId", trackID),
				logger.String("filePath", track.FilePath),
				logger.ErrorField(err))
		}
	}

	cache.InvalidateTrackList(r.Context(), track.PlaylistID)

	logger.Info("曲目删除成功",
		logger.Int64("trackId", trackID),
		logger.Int64("playlistId", track.PlaylistID))
	w.WriteHeader(http.StatusNoContent)
}

// ServeUploadHandler 通过存储后端以只读方式提供已上传的音频文件
func (h *APIHandler) ServeUploadHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	object, err := h.store.Open(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusNotFound, protocol.APIError{Error: "File not found"})
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", contentTypeForName(name))
	w.Header().Set("Cache-Control", "public, max-age=31536000")

	if _, err := io.Copy(w, object); err != nil {
		logger.Error("发送音频文件失败",
			logger.String("name", name),
			logger.ErrorField(err))
	}
}

func contentTypeForName(name string) string {
	switch strings.ToLower(pathExt(name)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/x-m4a"
	case ".aac":
		return "audio/aac"
	case ".mp4":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}

func pathExt(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}

package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"auralite/cache"
	"auralite/logger"
	"auralite/protocol"

	"github.com/gorilla/mux"
)

// playlistRequest 是创建/重命名歌单的请求体
type playlistRequest struct {
	Name string `json:"name"`
}

// CreatePlaylistHandler 创建一个新歌单
func (h *APIHandler) CreatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.APIError{Error: "Invalid request body"})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, protocol.APIError{Error: "Playlist name is required"})
		return
	}

	id, err := h.playlistRepo.CreatePlaylist(name)
	if err != nil {
		writeStoreError(w, "CreatePlaylist", err)
		return
	}

	playlist, err := h.playlistRepo.GetPlaylistByID(id)
	if err != nil {
		writeStoreError(w, "GetPlaylistByID", err)
		return
	}

	logger.Info("歌单创建成功",
		logger.Int64("playlistId", id),
		logger.String("name", name))
	writeJSON(w, http.StatusCreated, playlist)
}

// GetPlaylistsHandler 返回所有歌单，按创建时间倒序
func (h *APIHandler) GetPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.playlistRepo.GetAllPlaylists()
	if err != nil {
		writeStoreError(w, "GetAllPlaylists", err)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

// UpdatePlaylistHandler 重命名歌单
func (h *APIHandler) UpdatePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, protocol.APIError{Error: "Invalid playlist ID"})
		return
	}

	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.APIError{Error: "Invalid request body"})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, protocol.APIError{Error: "Playlist name is required"})
		return
	}

	ok, err := h.playlistRepo.UpdatePlaylistName(id, name)
	if err != nil {
		writeStoreError(w, "UpdatePlaylistName", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, protocol.APIError{Error: "Playlist not found"})
		return
	}

	playlist, err := h.playlistRepo.GetPlaylistByID(id)
	if err != nil {
		writeStoreError(w, "GetPlaylistByID", err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

// DeletePlaylistHandler 删除歌单。曲目行由外键级联删除，
// 对应的音频文件逐个尽力删除，单个文件失败不影响其余文件。
func (h *APIHandler) DeletePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, protocol.APIError{Error: "Invalid playlist ID"})
		return
	}

	// 先取出文件名，行删除后就查不到了
	filePaths, err := h.trackRepo.GetFilePathsByPlaylistID(id)
	if err != nil {
		writeStoreError(w, "GetFilePathsByPlaylistID", err)
		return
	}

	ok, err := h.playlistRepo.DeletePlaylist(id)
	if err != nil {
		writeStoreError(w, "DeletePlaylist", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, protocol.APIError{Error: "Playlist not found"})
		return
	}

	for _, path := range filePaths {
		if err := h.store.Remove(r.Context(), path); err != nil {
			logger.Warn("删除曲目文件失败",
				logger.String("filePath", path),
				logger.ErrorField(err))
		}
	}

	cache.InvalidateTrackList(r.Context(), id)

	logger.Info("歌单删除成功",
		logger.Int64("playlistId", id),
		logger.Int("trackFiles", len(filePaths)))
	w.WriteHeader(http.StatusNoContent)
}

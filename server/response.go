package server

import (
	"encoding/json"
	"net/http"

	"auralite/db"
	"auralite/logger"
	"auralite/protocol"
)

// writeJSON 以JSON编码响应体
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("写入响应失败", logger.ErrorField(err))
	}
}

// writeError 以统一的错误体格式响应
func writeError(w http.ResponseWriter, status int, apiErr protocol.APIError) {
	writeJSON(w, status, apiErr)
}

// writeStoreError 记录完整的数据库错误并向调用方返回分类后的摘要。
// 完整诊断细节只进日志，不下发给非诊断调用方。
func writeStoreError(w http.ResponseWriter, op string, err error) {
	classified := db.ClassifyDBError(err)
	logger.Error("后端存储操作失败",
		logger.String("op", op),
		logger.String("code", classified.Code),
		logger.ErrorField(err))
	writeError(w, classified.Status, protocol.APIError{
		Error: classified.Message,
		Code:  classified.Code,
		Hint:  classified.Hint,
	})
}

package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auralite/config"
	"auralite/db"
	"auralite/logger"
	"auralite/protocol"
	"auralite/repository"
	"auralite/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	// Initialize database schema
	if err := db.InitDB(); err != nil {
		logger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}

	// Redis不可用时只降级缓存，不阻止启动
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis不可用，曲目列表缓存已禁用", logger.ErrorField(err))
	} else {
		defer db.CloseRedis()
		logger.Info("Successfully connected to Redis")
	}

	store, err := buildStore(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize storage backend", logger.ErrorField(err))
	}

	playlistRepo := repository.NewMySQLPlaylistRepository(db.DB)
	trackRepo := repository.NewMySQLTrackRepository(db.DB)
	apiHandler := NewAPIHandler(playlistRepo, trackRepo, store, cfg)

	router := NewRouter(apiHandler, cfg)

	// 读写超时要覆盖上传请求（服务端5分钟的上传超时）
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  uploadTimeout + 30*time.Second,
		WriteTimeout: uploadTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server starting",
			logger.String("addr", server.Addr),
			logger.String("storageDriver", cfg.StorageDriver))

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	// 等待中断信号
	<-stop
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("Server stopped")
}

// NewRouter 构建API路由
func NewRouter(apiHandler *APIHandler, cfg *config.Config) *mux.Router {
	router := mux.NewRouter()

	// CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 歌单相关的API端点
	router.HandleFunc("/api/playlists", apiHandler.CreatePlaylistHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists", apiHandler.GetPlaylistsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists/{id}", apiHandler.UpdatePlaylistHandler).Methods(http.MethodPut)
	router.HandleFunc("/api/playlists/{id}", apiHandler.DeletePlaylistHandler).Methods(http.MethodDelete)

	// 曲目相关的API端点
	router.HandleFunc("/api/tracks/playlist/{playlistId}", apiHandler.GetPlaylistTracksHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks", apiHandler.UploadTrackHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{id}", apiHandler.DeleteTrackHandler).Methods(http.MethodDelete)

	// 已上传音频的只读静态服务
	router.HandleFunc("/uploads/{name}", apiHandler.ServeUploadHandler).Methods(http.MethodGet)

	// Frontend UI serving
	if cfg.WebAppDir != "" {
		uiFileServer := http.FileServer(http.Dir(cfg.WebAppDir))
		router.PathPrefix("/").Handler(uiFileServer)
	}

	return router
}

// buildStore 根据配置选择存储后端，默认本地磁盘
func buildStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageDriver {
	case "minio":
		return storage.NewMinioStore(cfg, protocol.MaxFileSize)
	default:
		return storage.NewLocalStore(cfg.UploadDir, protocol.MaxFileSize)
	}
}

package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net"
	"time"

	"auralite/config"
	"auralite/logger"

	"github.com/go-sql-driver/mysql"
)

var DB *sql.DB

// buildDSN 构造MySQL连接串。clientFoundRows让UPDATE的RowsAffected
// 按匹配行数统计：重复提交相同的歌单名不会因"0行变更"被误判为不存在。
func buildDSN(cfg *config.Config) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&clientFoundRows=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
}

// ConnectDB establishes a connection to the database.
func ConnectDB(cfg *config.Config) error {
	var err error
	DB, err = sql.Open("mysql", buildDSN(cfg))
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxIdleConns(10)
	DB.SetMaxOpenConns(100)
	DB.SetConnMaxLifetime(time.Hour)

	if err = DB.Ping(); err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Successfully connected to the database")
	return nil
}

// InitDB initializes the database schema, creating tables if they don't exist.
func InitDB() error {
	if err := createPlaylistsTable(); err != nil {
		return err
	}
	if err := createTracksTable(); err != nil {
		return err
	}

	logger.Info("Database initialization completed")
	return nil
}

func createPlaylistsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS playlists (
		id INT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	);
	`
	_, err := DB.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create playlists table: %w", err)
	}
	return nil
}

func createTracksTable() error {
	// 删除歌单时由外键级联删除其曲目
	query := `
	CREATE TABLE IF NOT EXISTS tracks (
		id INT AUTO_INCREMENT PRIMARY KEY,
		playlist_id INT NOT NULL,
		title VARCHAR(255) NOT NULL,
		artist VARCHAR(100),
		album VARCHAR(100),
		duration INT DEFAULT 0,
		file_path VARCHAR(500) NOT NULL,
		file_size BIGINT,
		file_type VARCHAR(50),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT fk_playlist_tracks FOREIGN KEY (playlist_id) REFERENCES playlists(id) ON DELETE CASCADE
	);
	`
	_, err := DB.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to create tracks table: %w", err)
	}
	return nil
}

// MySQL server error numbers we give operator-facing guidance for.
const (
	mysqlErrAccessDenied   = 1045
	mysqlErrBadDB          = 1049
	mysqlErrNoSuchTable    = 1146
	mysqlErrNoDefaultValue = 1364
)

// StoreError 描述一个后端存储错误及其对调用方的呈现方式
type StoreError struct {
	Status  int    // HTTP status class for the caller
	Message string // Operator-facing guidance
	Code    string // Machine code from the driver, if any
	Hint    string
}

// ClassifyDBError 将数据库错误映射为带运维提示的结构化错误。
// 连接/凭证/缺表类错误返回503，其余返回500。
func ClassifyDBError(err error) *StoreError {
	if err == nil {
		return nil
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrAccessDenied:
			return &StoreError{
				Status:  503,
				Message: "Database access denied. Please check your database credentials in .env file.",
				Code:    fmt.Sprintf("ER_%d", myErr.Number),
				Hint:    "Verify DB_USER and DB_PASSWORD.",
			}
		case mysqlErrBadDB:
			return &StoreError{
				Status:  503,
				Message: "Database does not exist. Please create it or check DB_NAME.",
				Code:    fmt.Sprintf("ER_%d", myErr.Number),
			}
		case mysqlErrNoSuchTable:
			return &StoreError{
				Status:  503,
				Message: "Database tables not found. Please restart the server to run schema setup.",
				Code:    fmt.Sprintf("ER_%d", myErr.Number),
			}
		default:
			return &StoreError{
				Status:  500,
				Message: "Database error.",
				Code:    fmt.Sprintf("ER_%d", myErr.Number),
			}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, mysql.ErrInvalidConn) {
		return &StoreError{
			Status:  503,
			Message: "Cannot connect to database. Please check if MySQL server is running.",
			Hint:    "Check DB_HOST and DB_PORT in .env file.",
		}
	}

	return &StoreError{
		Status:  500,
		Message: "Internal server error.",
	}
}

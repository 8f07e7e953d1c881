package db

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"auralite/config"

	"github.com/go-sql-driver/mysql"
)

func TestBuildDSN(t *testing.T) {
	cfg := &config.Config{
		DBUser:     "app",
		DBPassword: "secret",
		DBHost:     "db.internal",
		DBPort:     "3306",
		DBName:     "auralite",
	}

	dsn := buildDSN(cfg)
	if !strings.HasPrefix(dsn, "app:secret@tcp(db.internal:3306)/auralite?") {
		t.Errorf("dsn = %q, unexpected address part", dsn)
	}
	// clientFoundRows缺失时，提交未变化的歌单名会让RowsAffected
	// 返回0，重命名接口会对存在的歌单误报404
	for _, param := range []string{"parseTime=true", "charset=utf8mb4", "clientFoundRows=true"} {
		if !strings.Contains(dsn, param) {
			t.Errorf("dsn %q missing %s", dsn, param)
		}
	}
}

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "dial tcp: connection refused" }
func (fakeNetError) Timeout() bool   { return false }
func (fakeNetError) Temporary() bool { return true }

func TestClassifyDBError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"nil", nil, 0, ""},
		{"access denied", &mysql.MySQLError{Number: 1045, Message: "Access denied"}, 503, "ER_1045"},
		{"unknown database", &mysql.MySQLError{Number: 1049, Message: "Unknown database"}, 503, "ER_1049"},
		{"missing table", &mysql.MySQLError{Number: 1146, Message: "Table doesn't exist"}, 503, "ER_1146"},
		{"other mysql error", &mysql.MySQLError{Number: 1364, Message: "Field has no default"}, 500, "ER_1364"},
		{"network error", fakeNetError{}, 503, ""},
		{"wrapped network error", fmt.Errorf("query: %w", fakeNetError{}), 503, ""},
		{"invalid connection", mysql.ErrInvalidConn, 503, ""},
		{"plain error", errors.New("boom"), 500, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyDBError(tt.err)
			if tt.err == nil {
				if got != nil {
					t.Fatalf("ClassifyDBError(nil) = %+v, want nil", got)
				}
				return
			}
			if got.Status != tt.wantStatus {
				t.Errorf("status = %d, want %d", got.Status, tt.wantStatus)
			}
			if got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message == "" {
				t.Error("classified errors must carry guidance for the operator")
			}
		})
	}
}

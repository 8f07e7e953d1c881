package repository

import (
	"database/sql"
	"fmt"

	"auralite/model"
)

// PlaylistRepository defines the interface for playlist data operations.
type PlaylistRepository interface {
	CreatePlaylist(name string) (int64, error)
	GetPlaylistByID(id int64) (*model.Playlist, error)
	GetAllPlaylists() ([]*model.Playlist, error)
	UpdatePlaylistName(id int64, name string) (bool, error)
	DeletePlaylist(id int64) (bool, error)
}

// mysqlPlaylistRepository implements PlaylistRepository for MySQL.
type mysqlPlaylistRepository struct {
	DB *sql.DB
}

// NewMySQLPlaylistRepository creates a new instance of mysqlPlaylistRepository.
func NewMySQLPlaylistRepository(db *sql.DB) PlaylistRepository {
	return &mysqlPlaylistRepository{DB: db}
}

// CreatePlaylist adds a new playlist and returns its ID.
func (r *mysqlPlaylistRepository) CreatePlaylist(name string) (int64, error) {
	res, err := r.DB.Exec(`INSERT INTO playlists (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreatePlaylist: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreatePlaylist: %w", err)
	}
	return id, nil
}

// GetPlaylistByID retrieves a playlist by its ID. Returns (nil, nil) when not found.
func (r *mysqlPlaylistRepository) GetPlaylistByID(id int64) (*model.Playlist, error) {
	query := `SELECT id, name, created_at, updated_at FROM playlists WHERE id = ?`
	row := r.DB.QueryRow(query, id)

	playlist := &model.Playlist{}
	err := row.Scan(&playlist.ID, &playlist.Name, &playlist.CreatedAt, &playlist.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Playlist not found
		}
		return nil, fmt.Errorf("failed to scan playlist by ID %d: %w", id, err)
	}
	return playlist, nil
}

// GetAllPlaylists retrieves all playlists, newest first.
func (r *mysqlPlaylistRepository) GetAllPlaylists() ([]*model.Playlist, error) {
	query := `SELECT id, name, created_at, updated_at FROM playlists ORDER BY created_at DESC`
	rows, err := r.DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	playlists := make([]*model.Playlist, 0)
	for rows.Next() {
		playlist := &model.Playlist{}
		err := rows.Scan(&playlist.ID, &playlist.Name, &playlist.CreatedAt, &playlist.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playlist in GetAllPlaylists: %w", err)
		}
		playlists = append(playlists, playlist)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetAllPlaylists: %w", err)
	}

	return playlists, nil
}

// UpdatePlaylistName renames a playlist. Returns false when the ID is unknown.
// 依赖连接串中的clientFoundRows：RowsAffected按匹配行数统计，
// 名称未变化的更新不会被当成行不存在。
func (r *mysqlPlaylistRepository) UpdatePlaylistName(id int64, name string) (bool, error) {
	res, err := r.DB.Exec(`UPDATE playlists SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		return false, fmt.Errorf("failed to execute UpdatePlaylistName for ID %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows for UpdatePlaylistName: %w", err)
	}
	return affected > 0, nil
}

// DeletePlaylist removes a playlist row. Tracks are removed by the FK cascade.
// Returns false when the ID is unknown.
func (r *mysqlPlaylistRepository) DeletePlaylist(id int64) (bool, error) {
	res, err := r.DB.Exec(`DELETE FROM playlists WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to execute DeletePlaylist for ID %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows for DeletePlaylist: %w", err)
	}
	return affected > 0, nil
}

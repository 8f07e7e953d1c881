package repository

import (
	"database/sql"
	"fmt"

	"auralite/model"
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(track *model.Track) (int64, error)
	GetTrackByID(id int64) (*model.Track, error)
	GetTracksByPlaylistID(playlistID int64) ([]*model.Track, error)
	GetFilePathsByPlaylistID(playlistID int64) ([]string, error)
	DeleteTrack(id int64) (bool, error)
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository(db *sql.DB) TrackRepository {
	return &mysqlTrackRepository{DB: db}
}

// CreateTrack adds a new track to the database and returns its ID.
func (r *mysqlTrackRepository) CreateTrack(track *model.Track) (int64, error) {
	query := `INSERT INTO tracks (playlist_id, title, artist, album, duration, file_path, file_size, file_type)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.DB.Exec(query,
		track.PlaylistID, track.Title, track.Artist, track.Album,
		track.Duration, track.FilePath, track.FileSize, track.FileType)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateTrack: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateTrack: %w", err)
	}
	return id, nil
}

// GetTrackByID retrieves a track by its ID. Returns (nil, nil) when not found.
func (r *mysqlTrackRepository) GetTrackByID(id int64) (*model.Track, error) {
	query := `SELECT id, playlist_id, title, artist, album, duration, file_path, file_size, file_type, created_at
	           FROM tracks WHERE id = ?`
	row := r.DB.QueryRow(query, id)

	track := &model.Track{}
	var artist, album, fileType sql.NullString
	var fileSize sql.NullInt64
	err := row.Scan(&track.ID, &track.PlaylistID, &track.Title, &artist, &album,
		&track.Duration, &track.FilePath, &fileSize, &fileType, &track.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track by ID %d: %w", id, err)
	}
	track.Artist = artist.String
	track.Album = album.String
	track.FileType = fileType.String
	track.FileSize = fileSize.Int64
	return track, nil
}

// GetTracksByPlaylistID retrieves all tracks of a playlist, newest first.
func (r *mysqlTrackRepository) GetTracksByPlaylistID(playlistID int64) ([]*model.Track, error) {
	query := `SELECT id, playlist_id, title, artist, album, duration, file_path, file_size, file_type, created_at
	           FROM tracks WHERE playlist_id = ? ORDER BY created_at DESC`
	rows, err := r.DB.Query(query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks for playlist ID %d: %w", playlistID, err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track := &model.Track{}
		var artist, album, fileType sql.NullString
		var fileSize sql.NullInt64
		err := rows.Scan(&track.ID, &track.PlaylistID, &track.Title, &artist, &album,
			&track.Duration, &track.FilePath, &fileSize, &fileType, &track.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track in GetTracksByPlaylistID: %w", err)
		}
		track.Artist = artist.String
		track.Album = album.String
		track.FileType = fileType.String
		track.FileSize = fileSize.Int64
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetTracksByPlaylistID: %w", err)
	}

	return tracks, nil
}

// GetFilePathsByPlaylistID retrieves the stored filenames of all tracks in a
// playlist. Used to remove payloads after a cascade delete.
func (r *mysqlTrackRepository) GetFilePathsByPlaylistID(playlistID int64) ([]string, error) {
	rows, err := r.DB.Query(`SELECT file_path FROM tracks WHERE playlist_id = ?`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query file paths for playlist ID %d: %w", playlistID, err)
	}
	defer rows.Close()

	paths := make([]string, 0)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("failed to scan file path in GetFilePathsByPlaylistID: %w", err)
		}
		if path != "" {
			paths = append(paths, path)
		}
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetFilePathsByPlaylistID: %w", err)
	}

	return paths, nil
}

// DeleteTrack removes a track row. Returns false when the ID is unknown.
func (r *mysqlTrackRepository) DeleteTrack(id int64) (bool, error) {
	res, err := r.DB.Exec(`DELETE FROM tracks WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to execute DeleteTrack for ID %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows for DeleteTrack: %w", err)
	}
	return affected > 0, nil
}

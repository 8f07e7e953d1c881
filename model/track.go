package model

import "time"

// Track represents one uploaded audio file's metadata plus a reference to its
// stored bytes.
type Track struct {
	ID         int64     `json:"id"`
	PlaylistID int64     `json:"playlistId"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist"`
	Album      string    `json:"album"`
	Duration   int       `json:"duration"` // Duration in seconds, 0 if unknown
	FilePath   string    `json:"filePath"` // Stored filename inside the upload root
	FileSize   int64     `json:"fileSize"`
	FileType   string    `json:"fileType"`
	CreatedAt  time.Time `json:"createdAt"`
}

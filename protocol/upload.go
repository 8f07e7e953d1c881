// Package protocol defines the wire contract for track uploads: the multipart
// field names, the per-request limits, the audio format allow-list and the
// error body shape shared by the server pipeline and the upload client.
package protocol

import (
	"path/filepath"
	"strings"
)

// Multipart field names for one upload request.
const (
	FileField     = "audio"
	PlaylistField = "playlistId"
	TitleField    = "title"
	ArtistField   = "artist"
	AlbumField    = "album"
)

// Per-request limits.
const (
	MaxFileSize int64 = 50 << 20 // 50 MiB per file
	MaxFields         = 10       // Max number of non-file fields
	MaxFiles          = 1        // Exactly one file per request
)

// Machine codes carried in error responses.
const (
	CodeFileTooLarge = "LIMIT_FILE_SIZE"
	CodeInvalidType  = "INVALID_FILE_TYPE"
	CodeInterrupted  = "UPLOAD_INTERRUPTED"
	CodeTooManyParts = "LIMIT_FIELD_COUNT"
)

var allowedTypes = map[string]bool{
	"audio/mpeg":   true,
	"audio/mp3":    true,
	"audio/x-mpeg": true,
	"audio/mpeg3":  true,
	"audio/wav":    true,
	"audio/ogg":    true,
	"audio/x-m4a":  true,
	"audio/aac":    true,
	"audio/mp4":    true,
}

var allowedExts = map[string]bool{
	".mp3": true,
	".wav": true,
	".ogg": true,
	".m4a": true,
	".aac": true,
	".mp4": true,
}

// Allowed reports whether an upload with the declared content type and original
// filename passes the audio allow-list. The extension acts as a fallback for
// clients that send a generic content type.
func Allowed(contentType, filename string) bool {
	if allowedTypes[strings.ToLower(contentType)] {
		return true
	}
	return allowedExts[strings.ToLower(filepath.Ext(filename))]
}

// DeriveTitle derives a default track title from a filename by stripping the
// trailing extension.
func DeriveTitle(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// APIError is the body of every non-2xx JSON response.
type APIError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

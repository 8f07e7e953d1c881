package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"auralite/model"
	"auralite/protocol"
)

// formPart describes one part of a multipart upload body. A part with a
// filename set is the audio file, anything else is a metadata field.
type formPart struct {
	field string
	value string

	filename    string
	contentType string
	data        string
}

func metaParts(playlistID int64, title string) []formPart {
	return []formPart{
		{field: protocol.PlaylistField, value: strconv.FormatInt(playlistID, 10)},
		{field: protocol.TitleField, value: title},
	}
}

func buildForm(t *testing.T, parts []formPart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.filename != "" {
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition",
				fmt.Sprintf(`form-data; name="%s"; filename="%s"`, protocol.FileField, p.filename))
			if p.contentType != "" {
				h.Set("Content-Type", p.contentType)
			}
			w, err := mw.CreatePart(h)
			if err != nil {
				t.Fatalf("CreatePart: %v", err)
			}
			if _, err := w.Write([]byte(p.data)); err != nil {
				t.Fatalf("write file part: %v", err)
			}
			continue
		}
		if err := mw.WriteField(p.field, p.value); err != nil {
			t.Fatalf("WriteField(%s): %v", p.field, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func postUpload(t *testing.T, env *testEnv, body io.Reader, contentType string) *http.Response {
	t.Helper()
	resp, err := http.Post(env.ts.URL+"/api/tracks", contentType, body)
	if err != nil {
		t.Fatalf("POST /api/tracks: %v", err)
	}
	return resp
}

func decodeAPIError(t *testing.T, resp *http.Response) protocol.APIError {
	t.Helper()
	defer resp.Body.Close()
	var apiErr protocol.APIError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return apiErr
}

func uploadDirEntries(t *testing.T, env *testEnv) []string {
	t.Helper()
	entries, err := os.ReadDir(env.store.Root())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestUploadTrackRoundTrip(t *testing.T) {
	env := newTestEnv(t, protocol.MaxFileSize)
	playlistID := env.seedPlaylist(t, "uploads")

	payload := strings.Repeat("RIFFdata", 128)
	parts := append(metaParts(playlistID, "First Light"),
		formPart{field: protocol.ArtistField, value: "The Testers"},
		formPart{field: protocol.AlbumField, value: "Fixtures"},
		formPart{filename: "First Light.MP3", contentType: "audio/mpeg", data: payload},
	)
	body, ctype := buildForm(t, parts)

	resp := postUpload(t, env, body, ctype)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var track model.Track
	decodeBody(t, resp, &track)
	if track.Title != "First Light" || track.Artist != "The Testers" || track.Album != "Fixtures" {
		t.Errorf("metadata mismatch: %+v", track)
	}
	if track.PlaylistID != playlistID {
		t.Errorf("playlistID = %d, want %d", track.PlaylistID, playlistID)
	}
	if track.FileSize != int64(len(payload)) {
		t.Errorf("fileSize = %d, want %d", track.FileSize, len(payload))
	}
	if !strings.HasSuffix(track.FilePath, ".mp3") {
		t.Errorf("filePath = %q, want lower-cased .mp3 suffix", track.FilePath)
	}

	// 列表接口立即可见，文件按落盘名可取回且字节一致
	listResp, err := http.Get(fmt.Sprintf("%s/api/tracks/playlist/%d", env.ts.URL, playlistID))
	if err != nil {
		t.Fatalf("GET tracks: %v", err)
	}
	var tracks []*model.Track
	decodeBody(t, listResp, &tracks)
	if len(tracks) != 1 || tracks[0].ID != track.ID {
		t.Fatalf("track listing = %+v, want the uploaded track", tracks)
	}

	fileResp, err := http.Get(env.ts.URL + "/uploads/" + track.FilePath)
	if err != nil {
		t.Fatalf("GET upload: %v", err)
	}
	defer fileResp.Body.Close()
	if fileResp.StatusCode != http.StatusOK {
		t.Fatalf("serve status = %d, want 200", fileResp.StatusCode)
	}
	if got := fileResp.Header.Get("Content-Type"); got != "audio/mpeg" {
		t.Errorf("served Content-Type = %q, want audio/mpeg", got)
	}
	served, _ := io.ReadAll(fileResp.Body)
	if string(served) != payload {
		t.Error("served bytes differ from uploaded payload")
	}
}

func TestUploadUnknownPlaylistLeavesNoFile(t *testing.T) {
	env := newTestEnv(t, protocol.MaxFileSize)

	parts := append(metaParts(999, "orphan candidate"),
		formPart{filename: "a.mp3", contentType: "audio/mpeg", data: "payload"})
	body, ctype := buildForm(t, parts)

	resp := postUpload(t, env, body, ctype)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()

	if names := uploadDirEntries(t, env); len(names) != 0 {
		t.Errorf("rejected upload left files behind: %v", names)
	}
	if len(env.trackRepo.tracks) != 0 {
		t.Error("rejected upload created a track record")
	}
}

func TestUploadInsertFailureCleansUpFile(t *testing.T) {
	env := newTestEnv(t, protocol.MaxFileSize)
	playlistID := env.seedPlaylist(t, "uploads")
	env.trackRepo.createErr = errors.New("insert exploded")

	parts := append(metaParts(playlistID, "doomed"),
		formPart{filename: "a.mp3", contentType: "audio/mpeg", data: "payload"})
	body, ctype := buildForm(t, parts)

	resp := postUpload(t, env, body, ctype)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	resp.Body.Close()

	if names := uploadDirEntries(t, env); len(names) != 0 {
		t.Errorf("failed insert left files behind: %v", names)
	}
}

func TestUploadRejectsNonAudio(t *testing.T) {
	env := newTestEnv(t, protocol.MaxFileSize)
	playlistID := env.seedPlaylist(t, "uploads")

	parts := append(metaParts(playlistID, "cover art"),
		formPart{filename: "cover.png", contentType: "image/png", data: "PNG..."})
	body, ctype := buildForm(t, parts)

	resp := postUpload(t, env, body, ctype)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	apiErr := decodeAPIError(t, resp)
	if apiErr.Code != protocol.CodeInvalidType {
		t.Errorf("code = %q, want %q", apiErr.Code, protocol.CodeInvalidType)
	}

	if names := uploadDirEntries(t, env); len(names) != 0 {
		t.Errorf("rejected type reached disk: %v", names)
	}
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	env := newTestEnv(t, 64)
	playlistID := env.seedPlaylist(t, "uploads")

	parts := append(metaParts(playlistID, "too big"),
		formPart{filename: "big.mp3", contentType: "audio/mpeg", data: strings.Repeat("a", 100)})
	body, ctype := buildForm(t, parts)

	resp := postUpload(t, env, body, ctype)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", resp.StatusCode)
	}
	apiErr := decodeAPIError(t, resp)
	if apiErr.Code != protocol.CodeFileTooLarge {
		t.Errorf("code = %q, want %q", apiErr.Code, protocol.CodeFileTooLarge)
	}

	if names := uploadDirEntries(t, env); len(names) != 0 {
		t.Errorf("oversized upload left files behind: %v", names)
	}
}

func TestUploadMissingMetadata(t *testing.T) {
	env := newTestEnv(t, protocol.MaxFileSize)
	env.seedPlaylist(t, "uploads")

	// 只有文件没有元数据字段
	body, ctype := buildForm(t, []formPart{
		{filename: "a.mp3", contentType: "audio/mpeg", data: "payload"},
	})
	resp := postUpload(t, env, body, ctype)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	if names := uploadDirEntries(t, env); len(names) != 0 {
		t.Errorf("metadata-less upload left files behind: %v", names)
	}
}

func TestUploadMissingFile(t *testing.T) {
	env := newTestEnv(t, protocol.MaxFileSize)
	playlistID := env.seedPlaylist(t, "uploads")

	body, ctype := buildForm(t, metaParts(playlistID, "no file"))
	resp := postUpload(t, env, body, ctype)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUploadTooManyFields(t *testing.T) {
	env := newTestEnv(t, protocol.MaxFileSize)
	playlistID := env.seedPlaylist(t, "uploads")

	parts := metaParts(playlistID, "spam")
	for i := 0; i < protocol.MaxFields; i++ {
		parts = append(parts, formPart{field: fmt.Sprintf("extra%d", i), value: "x"})
	}
	parts = append(parts, formPart{filename: "a.mp3", contentType: "audio/mpeg", data: "payload"})
	body, ctype := buildForm(t, parts)

	resp := postUpload(t, env, body, ctype)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	apiErr := decodeAPIError(t, resp)
	if apiErr.Code != protocol.CodeTooManyParts {
		t.Errorf("code = %q, want %q", apiErr.Code, protocol.CodeTooManyParts)
	}
}

func TestUploadInterruptedMidFile(t *testing.T) {
	env := newTestEnv(t, protocol.MaxFileSize)
	playlistID := env.seedPlaylist(t, "uploads")

	payload := strings.Repeat("FILEDATA", 64)
	parts := append(metaParts(playlistID, "cut short"),
		formPart{filename: "a.mp3", contentType: "audio/mpeg", data: payload})
	body, ctype := buildForm(t, parts)

	// 在文件数据中间截断请求体
	full := body.Bytes()
	idx := bytes.Index(full, []byte(payload))
	if idx < 0 {
		t.Fatal("payload not found in form body")
	}
	truncated := full[:idx+len(payload)/2]

	resp := postUpload(t, env, bytes.NewReader(truncated), ctype)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	apiErr := decodeAPIError(t, resp)
	if apiErr.Code != protocol.CodeInterrupted {
		t.Errorf("code = %q, want %q", apiErr.Code, protocol.CodeInterrupted)
	}

	if names := uploadDirEntries(t, env); len(names) != 0 {
		t.Errorf("interrupted upload left files behind: %v", names)
	}
}

func TestUploadInterruptedAfterFileComplete(t *testing.T) {
	env := newTestEnv(t, protocol.MaxFileSize)
	playlistID := env.seedPlaylist(t, "uploads")

	payload := strings.Repeat("RIFFdata", 16)
	trailer := "TrailingAlbumValue"
	parts := append(metaParts(playlistID, "survivor"),
		formPart{filename: "a.mp3", contentType: "audio/mpeg", data: payload},
		formPart{field: protocol.AlbumField, value: trailer},
	)
	body, ctype := buildForm(t, parts)

	// 文件已被后一个边界完整终止，再在尾部字段中间截断：
	// 此时中断必须被容忍，上传照常成功
	full := body.Bytes()
	idx := bytes.Index(full, []byte(trailer))
	if idx < 0 {
		t.Fatal("trailer field not found in form body")
	}
	truncated := full[:idx+4]

	resp := postUpload(t, env, bytes.NewReader(truncated), ctype)
	if resp.StatusCode != http.StatusCreated {
		apiErr := decodeAPIError(t, resp)
		t.Fatalf("status = %d (%+v), want 201", resp.StatusCode, apiErr)
	}

	var track model.Track
	decodeBody(t, resp, &track)
	if track.FileSize != int64(len(payload)) {
		t.Errorf("fileSize = %d, want %d", track.FileSize, len(payload))
	}
	if _, err := os.Stat(filepath.Join(env.store.Root(), track.FilePath)); err != nil {
		t.Errorf("stored file missing: %v", err)
	}
}

func TestDeleteTrackRemovesRowAndFile(t *testing.T) {
	env := newTestEnv(t, protocol.MaxFileSize)
	playlistID := env.seedPlaylist(t, "uploads")

	name, size, err := env.store.Save(context.Background(), strings.NewReader("bytes"), "a.mp3", "audio/mpeg")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	trackID, err := env.trackRepo.CreateTrack(&model.Track{
		PlaylistID: playlistID, Title: "a", FilePath: name, FileSize: size,
	})
	if err != nil {
		t.Fatalf("CreateTrack: %v", err)
	}

	resp := doRequest(t, http.MethodDelete, fmt.Sprintf("%s/api/tracks/%d", env.ts.URL, trackID), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	if _, ok := env.trackRepo.tracks[trackID]; ok {
		t.Error("track row still present after delete")
	}
	if _, err := os.Stat(filepath.Join(env.store.Root(), name)); !os.IsNotExist(err) {
		t.Error("track file still present after delete")
	}
}

func TestDeleteTrackToleratesMissingFile(t *testing.T) {
	env := newTestEnv(t, protocol.MaxFileSize)
	playlistID := env.seedPlaylist(t, "uploads")

	trackID, err := env.trackRepo.CreateTrack(&model.Track{
		PlaylistID: playlistID, Title: "ghost", FilePath: "gone.mp3",
	})
	if err != nil {
		t.Fatalf("CreateTrack: %v", err)
	}

	resp := doRequest(t, http.MethodDelete, fmt.Sprintf("%s/api/tracks/%d", env.ts.URL, trackID), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
}

func TestDeleteTrackUnknown(t *testing.T) {
	env := newTestEnv(t, protocol.MaxFileSize)

	resp := doRequest(t, http.MethodDelete, env.ts.URL+"/api/tracks/12345", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeletePlaylistRemovesTrackFiles(t *testing.T) {
	env := newTestEnv(t, protocol.MaxFileSize)
	playlistID := env.seedPlaylist(t, "doomed playlist")

	var names []string
	for i := 0; i < 3; i++ {
		name, _, err := env.store.Save(context.Background(), strings.NewReader("bytes"), "a.mp3", "audio/mpeg")
		if err != nil {
			t.Fatalf("Save #%d: %v", i, err)
		}
		names = append(names, name)
		if _, err := env.trackRepo.CreateTrack(&model.Track{
			PlaylistID: playlistID, Title: fmt.Sprintf("t%d", i), FilePath: name,
		}); err != nil {
			t.Fatalf("CreateTrack #%d: %v", i, err)
		}
	}

	// 其中一个文件已经不在磁盘上，不能挡住其余文件的清理
	if err := os.Remove(filepath.Join(env.store.Root(), names[1])); err != nil {
		t.Fatalf("pre-remove: %v", err)
	}

	resp := doRequest(t, http.MethodDelete, fmt.Sprintf("%s/api/playlists/%d", env.ts.URL, playlistID), nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	if remaining := uploadDirEntries(t, env); len(remaining) != 0 {
		t.Errorf("playlist delete left files behind: %v", remaining)
	}
	if _, ok := env.playlistRepo.playlists[playlistID]; ok {
		t.Error("playlist row still present after delete")
	}
}

func TestGetTracksUnknownPlaylist(t *testing.T) {
	env := newTestEnv(t, protocol.MaxFileSize)

	resp, err := http.Get(env.ts.URL + "/api/tracks/playlist/404")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"auralite/model"
	"auralite/protocol"
)

// ProgressFunc receives byte-level progress for one upload.
type ProgressFunc func(bytesSent, totalBytes int64)

// UploadRequest describes one file to upload into a playlist. Title defaults
// to the filename with its extension stripped.
type UploadRequest struct {
	PlaylistID int64
	Path       string
	Title      string
	Artist     string
	Album      string
}

// UploadTrack uploads one local audio file and returns the created track
// record as stored by the server.
func (c *Client) UploadTrack(ctx context.Context, req UploadRequest, onProgress ProgressFunc) (*model.Track, error) {
	f, err := os.Open(req.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	totalBytes := stat.Size()

	title := req.Title
	if title == "" {
		title = protocol.DeriveTitle(req.Path)
	}

	// 通过管道流式构造multipart请求体，文件不整体读入内存
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeUploadForm(mw, f, req, title, totalBytes, onProgress)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/tracks", pr)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp)
	}

	track := &model.Track{}
	if err := json.NewDecoder(resp.Body).Decode(track); err != nil {
		return nil, fmt.Errorf("invalid response from server: %w", err)
	}
	return track, nil
}

func writeUploadForm(mw *multipart.Writer, f *os.File, req UploadRequest, title string, totalBytes int64, onProgress ProgressFunc) error {
	if err := mw.WriteField(protocol.PlaylistField, strconv.FormatInt(req.PlaylistID, 10)); err != nil {
		return err
	}
	if err := mw.WriteField(protocol.TitleField, title); err != nil {
		return err
	}
	if req.Artist != "" {
		if err := mw.WriteField(protocol.ArtistField, req.Artist); err != nil {
			return err
		}
	}
	if req.Album != "" {
		if err := mw.WriteField(protocol.AlbumField, req.Album); err != nil {
			return err
		}
	}

	fw, err := mw.CreateFormFile(protocol.FileField, filepath.Base(req.Path))
	if err != nil {
		return err
	}

	_, err = io.Copy(fw, &progressReader{r: f, total: totalBytes, onProgress: onProgress})
	return err
}

// progressReader 在读取文件时上报已发送字节数
type progressReader struct {
	r          io.Reader
	sent       int64
	total      int64
	onProgress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		if p.onProgress != nil {
			p.onProgress(p.sent, p.total)
		}
	}
	return n, err
}

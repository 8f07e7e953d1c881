// Package client is a Go client for the Auralite API: playlist and track CRUD
// plus a sequential batch uploader with per-file and aggregate progress.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"auralite/model"
	"auralite/protocol"
)

// Transport-level timeout for one upload. Independent from the server's own
// request timeout; neither side retries automatically.
const uploadTimeout = 10 * time.Minute

// Client calls the Auralite HTTP API.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// New creates a Client for the given base URL, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: uploadTimeout},
	}
}

// NewWithHTTPClient creates a Client with a caller-supplied http.Client.
func NewWithHTTPClient(baseURL string, httpc *http.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   httpc,
	}
}

// CreatePlaylist creates a playlist and returns the created record.
func (c *Client) CreatePlaylist(ctx context.Context, name string) (*model.Playlist, error) {
	playlist := &model.Playlist{}
	if err := c.doJSON(ctx, http.MethodPost, "/api/playlists", map[string]string{"name": name}, playlist); err != nil {
		return nil, err
	}
	return playlist, nil
}

// Playlists returns all playlists, newest first.
func (c *Client) Playlists(ctx context.Context) ([]*model.Playlist, error) {
	var playlists []*model.Playlist
	if err := c.doJSON(ctx, http.MethodGet, "/api/playlists", nil, &playlists); err != nil {
		return nil, err
	}
	return playlists, nil
}

// RenamePlaylist renames a playlist and returns the updated record.
func (c *Client) RenamePlaylist(ctx context.Context, id int64, name string) (*model.Playlist, error) {
	playlist := &model.Playlist{}
	path := fmt.Sprintf("/api/playlists/%d", id)
	if err := c.doJSON(ctx, http.MethodPut, path, map[string]string{"name": name}, playlist); err != nil {
		return nil, err
	}
	return playlist, nil
}

// DeletePlaylist deletes a playlist, its tracks and their files.
func (c *Client) DeletePlaylist(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/playlists/%d", id), nil, nil)
}

// PlaylistTracks returns the authoritative track listing for a playlist,
// newest first.
func (c *Client) PlaylistTracks(ctx context.Context, playlistID int64) ([]*model.Track, error) {
	var tracks []*model.Track
	path := fmt.Sprintf("/api/tracks/playlist/%d", playlistID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &tracks); err != nil {
		return nil, err
	}
	return tracks, nil
}

// DeleteTrack deletes a track and best-effort removes its stored file.
func (c *Client) DeleteTrack(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/tracks/%d", id), nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response from server: %w", err)
	}
	return nil
}

// responseError 从非2xx响应中提取尽可能具体的错误信息：
// 结构化error字段 → message → details → 原始响应文本 → 状态码兜底。
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var apiErr protocol.APIError
	if err := json.Unmarshal(body, &apiErr); err == nil {
		msg := apiErr.Error
		if msg == "" {
			var generic map[string]interface{}
			if json.Unmarshal(body, &generic) == nil {
				for _, key := range []string{"message", "details"} {
					if s, ok := generic[key].(string); ok && s != "" {
						msg = s
						break
					}
				}
			}
		}
		if msg != "" {
			if apiErr.Hint != "" {
				msg += " " + apiErr.Hint
			}
			return errors.New(msg)
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return errors.New(text)
	}
	return fmt.Errorf("upload failed with status %d", resp.StatusCode)
}

// classifyTransportError 区分失败原因以便给出针对性的提示：
// 取消、超时、网络不可达。
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return errors.New("Upload was cancelled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.New("Upload timeout. The file may be too large or connection is slow.")
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.New("Upload timeout. The file may be too large or connection is slow.")
	}
	return fmt.Errorf("Network error during upload. Please check your connection and that the server is running and accessible: %v", err)
}

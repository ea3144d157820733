// Package api is the typed HTTP client for the SceneKeeper server. It
// decodes the server's error envelope into APIError and wraps connectivity
// failures in TransportError so callers can branch offline vs server-denied.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/scenekeeper/internal/scene"
)

// APIError is a structured error decoded from the server's error envelope.
type APIError struct {
	Code    string
	Message string
	Status  int
	// CurrentVersion is set only for VERSION_CONFLICT responses.
	CurrentVersion *int64
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error %s (%d): %s", e.Code, e.Status, e.Message)
}

// TransportError marks a failure to reach the server at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport error: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// File mirrors the server's file representation.
type File struct {
	ID           string         `json:"id"`
	OwnerUserID  string         `json:"ownerUserId"`
	TeamID       *string        `json:"teamId,omitempty"`
	Title        string         `json:"title"`
	Version      int64          `json:"version"`
	IsFavorite   bool           `json:"isFavorite"`
	IsTrashed    bool           `json:"isTrashed"`
	LastOpenedAt *time.Time     `json:"lastOpenedAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	Scene        *scene.Payload `json:"scene,omitempty"`
}

type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SetToken installs the bearer token used for authenticated calls.
func (c *Client) SetToken(token string) { c.token = token }

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var envelope struct {
		Error struct {
			Code           string `json:"code"`
			Message        string `json:"message"`
			CurrentVersion *int64 `json:"currentVersion"`
		} `json:"error"`
	}

	apiErr := &APIError{Status: resp.StatusCode, Code: "INTERNAL"}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error.Code != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		apiErr.CurrentVersion = envelope.Error.CurrentVersion
	}
	return apiErr
}

// Ping probes server reachability.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/ping", nil, nil)
}

type authResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

func (c *Client) Register(ctx context.Context, email, password string) (string, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/auth/register", map[string]string{
		"email": email, "password": password,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp authResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": password,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

type fileEnvelope struct {
	File File `json:"file"`
}

func (c *Client) CreateFile(ctx context.Context, title string, teamID *string, payload *scene.Payload) (*File, error) {
	var resp fileEnvelope
	err := c.do(ctx, http.MethodPost, "/files", map[string]any{
		"title":  title,
		"teamId": teamID,
		"scene":  payload,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.File, nil
}

func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	var resp fileEnvelope
	if err := c.do(ctx, http.MethodGet, "/files/"+fileID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.File, nil
}

// SaveFile attempts a version-checked save: it succeeds only if version
// matches the server's stored version.
func (c *Client) SaveFile(ctx context.Context, fileID string, version int64, title string, payload scene.Payload) (*File, error) {
	var resp fileEnvelope
	err := c.do(ctx, http.MethodPut, "/files/"+fileID, map[string]any{
		"version": version,
		"title":   title,
		"scene":   payload,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.File, nil
}

func (c *Client) ListFiles(ctx context.Context) ([]File, error) {
	var resp struct {
		Files []File `json:"files"`
	}
	if err := c.do(ctx, http.MethodGet, "/files", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

func (c *Client) TrashFile(ctx context.Context, fileID string) error {
	return c.do(ctx, http.MethodDelete, "/files/"+fileID, nil, nil)
}

func (c *Client) RestoreFile(ctx context.Context, fileID string) (*File, error) {
	var resp fileEnvelope
	if err := c.do(ctx, http.MethodPost, "/files/"+fileID+"/restore", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.File, nil
}

func (c *Client) DeleteFilePermanent(ctx context.Context, fileID string) error {
	return c.do(ctx, http.MethodDelete, "/files/"+fileID+"/permanent", nil, nil)
}

func (c *Client) SetFavorite(ctx context.Context, fileID string, favorite bool) (*File, error) {
	var resp fileEnvelope
	err := c.do(ctx, http.MethodPatch, "/files/"+fileID+"/favorite", map[string]any{
		"isFavorite": favorite,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.File, nil
}

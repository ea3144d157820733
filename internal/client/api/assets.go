package api

import (
	"context"
	"fmt"
	"net/http"
)

// AssetUpload is the server's grant for uploading one binary asset: the
// asset id to confirm later and a presigned URL to PUT the bytes to.
type AssetUpload struct {
	AssetID   string `json:"assetId"`
	UploadURL string `json:"uploadUrl"`
}

// CreateAssetUpload registers a pending asset on the file and returns the
// presigned upload grant.
func (c *Client) CreateAssetUpload(ctx context.Context, fileID string) (*AssetUpload, error) {
	var out AssetUpload
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/files/%s/assets", fileID), nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteAssetUpload confirms the bytes landed in object storage.
func (c *Client) CompleteAssetUpload(ctx context.Context, fileID, assetID string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/files/%s/assets/%s/complete", fileID, assetID), nil, nil)
}

// GetAssetDownloadURL returns a presigned URL for fetching an uploaded asset.
func (c *Client) GetAssetDownloadURL(ctx context.Context, fileID, assetID string) (string, error) {
	var out struct {
		DownloadURL string `json:"downloadUrl"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/files/%s/assets/%s", fileID, assetID), nil, &out)
	if err != nil {
		return "", err
	}
	return out.DownloadURL, nil
}

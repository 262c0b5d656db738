package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	// PresignedURLPath is the backend endpoint issuing pre-signed upload URLs.
	PresignedURLPath = "/api/students/get-presigned-url"
	// UpdateFilePath is the backend endpoint recording the uploaded object key.
	UpdateFilePath = "/api/students/update-file"
	// RequestIDHeader carries the submission ID on backend calls.
	RequestIDHeader = "X-Request-ID"
)

// PresignedURLRequest ...
type PresignedURLRequest struct {
	StudentID     int64  `json:"studentId"`
	FileExtension string `json:"fileExtension"`
}

// PresignedURLResponse is consumed once and never persisted.
type PresignedURLResponse struct {
	UploadURL string `json:"uploadUrl"`
	FileKey   string `json:"fileKey"`
}

// UpdateFileRequest ...
type UpdateFileRequest struct {
	StudentID int64  `json:"studentId"`
	FileKey   string `json:"fileKey"`
}

type apiClient struct {
	httpClient *retryablehttp.Client
	baseURL    string
	logger     log.Logger
}

func newAPIClient(client *retryablehttp.Client, baseURL string, logger log.Logger) apiClient {
	return apiClient{
		httpClient: client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// GetPresignedURL ...
func (c apiClient) GetPresignedURL(ctx context.Context, requestBody PresignedURLRequest) (PresignedURLResponse, error) {
	resp, err := c.postJSON(ctx, PresignedURLPath, requestBody)
	if err != nil {
		return PresignedURLResponse{}, err
	}
	defer c.closeBody(resp.Body)

	if !isSuccess(resp.StatusCode) {
		return PresignedURLResponse{}, unwrapError(resp)
	}

	var response PresignedURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return PresignedURLResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if response.UploadURL == "" || response.FileKey == "" {
		return PresignedURLResponse{}, ErrIncompleteResponse
	}
	if _, err := url.ParseRequestURI(response.UploadURL); err != nil {
		return PresignedURLResponse{}, fmt.Errorf("%w: upload url: %s", ErrIncompleteResponse, err)
	}

	return response, nil
}

// UploadFile PUTs the raw bytes to a pre-signed storage URL.
func (c apiClient) UploadFile(ctx context.Context, uploadURL string, body io.ReadSeeker, size int64, contentType string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	// Add Content-Length header manually because retryablehttp doesn't do it automatically
	req.Header.Set("Content-Length", fmt.Sprintf("%d", size))
	req.ContentLength = size

	c.logger.Debugf("PUT %s (%d bytes, %s)", redact(uploadURL), size, contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer c.closeBody(resp.Body)

	if !isSuccess(resp.StatusCode) {
		return unwrapError(resp)
	}

	return nil
}

// ConfirmUpload ...
func (c apiClient) ConfirmUpload(ctx context.Context, requestBody UpdateFileRequest) error {
	resp, err := c.postJSON(ctx, UpdateFilePath, requestBody)
	if err != nil {
		return err
	}
	defer c.closeBody(resp.Body)

	if !isSuccess(resp.StatusCode) {
		return unwrapError(resp)
	}

	// Response body is ignored on success.
	return nil
}

func (c apiClient) postJSON(ctx context.Context, path string, requestBody interface{}) (*http.Response, error) {
	body, err := json.Marshal(requestBody)
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if id := RequestIDFromContext(ctx); id != "" {
		req.Header.Set(RequestIDHeader, id)
	}

	c.logger.Debugf("POST %s %s", c.baseURL+path, body)

	return c.httpClient.Do(req)
}

func (c apiClient) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Printf(err.Error())
	}
}

func isSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

func unwrapError(resp *http.Response) error {
	errorResp, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return err
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(errorResp))}
}

// redact drops the query string so signatures never reach the logs.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}

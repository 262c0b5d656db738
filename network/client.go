// Package network talks to the student records backend and to object storage.
//
// The flow is three calls: GetPresignedURL, UploadFile to the returned URL,
// then ConfirmUpload with the returned file key. Nothing is retried; the first
// failure is returned to the caller as is.
package network

import (
	"context"
	"io"
	"net/http"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// Client ...
type Client interface {
	GetPresignedURL(ctx context.Context, req PresignedURLRequest) (PresignedURLResponse, error)
	UploadFile(ctx context.Context, uploadURL string, body io.ReadSeeker, size int64, contentType string) error
	ConfirmUpload(ctx context.Context, req UpdateFileRequest) error
}

// NewClient returns a Client for the backend at baseURL.
func NewClient(baseURL string, logger log.Logger) Client {
	return NewClientWithHTTPClient(NewHTTPClient(logger), baseURL, logger)
}

// NewClientWithHTTPClient ...
func NewClientWithHTTPClient(httpClient *retryablehttp.Client, baseURL string, logger log.Logger) Client {
	return newAPIClient(httpClient, baseURL, logger)
}

// NewHTTPClient returns a retryablehttp client that performs exactly one attempt per request.
func NewHTTPClient(logger log.Logger) *retryablehttp.Client {
	client := retryhttp.NewClient(logger)
	client.RetryMax = 0
	client.CheckRetry = noRetry
	return client
}

// noRetry hands every response and error back to the caller unchanged.
func noRetry(_ context.Context, _ *http.Response, _ error) (bool, error) {
	return false, nil
}

type requestIDKey struct{}

// WithRequestID attaches a submission ID that is sent along with backend calls.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext ...
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

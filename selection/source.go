package selection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/melbahja/got"
)

const fileScheme = "file://"

// ErrSizeUnknown is returned for remote files whose size the server does not report.
var ErrSizeUnknown = errors.New("remote file size unknown")

// Downloader fetches a remote file to a local destination.
type Downloader interface {
	// Size returns the size of the remote file, or -1 if the server does not report it.
	Size(ctx context.Context, source string) (int64, error)
	Download(ctx context.Context, destination, source string) error
}

// SourceResolver turns a user supplied file reference into a local path.
// References may be plain paths, file:// URLs or http(s):// URLs; remote
// files are downloaded to a temporary directory first.
type SourceResolver interface {
	// LocalPath returns the local path of source and a func removing
	// anything created for it. The func is never nil.
	LocalPath(ctx context.Context, source string) (string, func(), error)
}

type sourceResolver struct {
	downloader   Downloader
	pathProvider pathutil.PathProvider
	pathModifier pathutil.PathModifier
	logger       log.Logger
}

// NewSourceResolver ...
func NewSourceResolver(downloader Downloader, pathProvider pathutil.PathProvider, pathModifier pathutil.PathModifier, logger log.Logger) SourceResolver {
	return &sourceResolver{
		downloader:   downloader,
		pathProvider: pathProvider,
		pathModifier: pathModifier,
		logger:       logger,
	}
}

func noCleanup() {}

// LocalPath ...
func (r *sourceResolver) LocalPath(ctx context.Context, source string) (string, func(), error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return "", noCleanup, fmt.Errorf("no file given")
	}

	switch {
	case strings.HasPrefix(source, fileScheme):
		pth, err := r.pathModifier.AbsPath(strings.TrimPrefix(source, fileScheme))
		return pth, noCleanup, err
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return r.download(ctx, source)
	default:
		pth, err := r.pathModifier.AbsPath(source)
		return pth, noCleanup, err
	}
}

func (r *sourceResolver) download(ctx context.Context, source string) (string, func(), error) {
	parsed, err := url.Parse(source)
	if err != nil {
		return "", noCleanup, fmt.Errorf("parse url %s: %w", source, err)
	}
	name := filepath.Base(parsed.Path)
	// Reject before spending bandwidth or disk on a file the filter would refuse.
	if err := CheckName(name); err != nil {
		return "", noCleanup, err
	}

	size, err := r.downloader.Size(ctx, source)
	if err != nil {
		return "", noCleanup, fmt.Errorf("check size of %s: %w", source, err)
	}
	if size < 0 {
		return "", noCleanup, fmt.Errorf("%w: %s", ErrSizeUnknown, source)
	}
	if err := CheckSize(size); err != nil {
		return "", noCleanup, err
	}

	tmpDir, err := r.pathProvider.CreateTempDir("idupload")
	if err != nil {
		return "", noCleanup, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.logger.Warnf("Failed to remove %s: %s", tmpDir, err)
		}
	}

	localPath := filepath.Join(tmpDir, name)
	r.logger.Debugf("Downloading %s (%s) to %s", source, HumanSize(size), localPath)
	if err := r.downloader.Download(ctx, localPath, source); err != nil {
		cleanup()
		return "", noCleanup, fmt.Errorf("download %s: %w", source, err)
	}

	return localPath, cleanup, nil
}

// GotDownloader downloads files with parallel range requests.
// No response body is read past MaxFileSize.
type GotDownloader struct {
	Client *http.Client
}

// Size asks the server for the file size with a HEAD request.
func (d GotDownloader) Size(ctx context.Context, source string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, source, nil)
	if err != nil {
		return 0, err
	}

	resp, err := d.client().Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return 0, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp.ContentLength, nil
}

// Download ...
func (d GotDownloader) Download(ctx context.Context, destination, source string) error {
	client := *d.client()
	client.Transport = cappedTransport{base: client.Transport, limit: MaxFileSize}

	download := got.NewDownload(ctx, source, destination)
	download.Client = &client

	// Init fetches the whole file when the server does not support ranges.
	if err := download.Init(); err != nil {
		return err
	}
	if total := download.TotalSize(); total > uint64(MaxFileSize) {
		return fmt.Errorf("%w: %s exceeds %s", ErrFileTooLarge, HumanSize(int64(total)), HumanSize(MaxFileSize))
	}

	return download.Start()
}

func (d GotDownloader) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

// cappedTransport fails reads of response bodies longer than limit.
type cappedTransport struct {
	base  http.RoundTripper
	limit int64
}

func (t cappedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.Body = &cappedBody{ReadCloser: resp.Body, remaining: t.limit + 1}
	return resp, nil
}

type cappedBody struct {
	io.ReadCloser
	remaining int64
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		return 0, ErrFileTooLarge
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.ReadCloser.Read(p)
	b.remaining -= int64(n)
	return n, err
}

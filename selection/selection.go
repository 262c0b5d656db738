// Package selection filters the file a user picks before it may be submitted.
//
// A file is accepted only when its extension is on the allow-list and its size
// is within MaxFileSize. Rejected files never reach the upload flow.
package selection

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/docker/go-units"
)

// MaxFileSize is the largest file the form accepts.
const MaxFileSize int64 = 15 * units.MiB

// AllowedExtensions lists the accepted file extensions, lower case, without the dot.
var AllowedExtensions = []string{"jpg", "jpeg", "png", "pdf", "gif", "webp", "svg"}

var allowedPattern = "*.{" + strings.Join(AllowedExtensions, ",") + "}"

var (
	// ErrExtensionNotAllowed is returned for files outside the allow-list.
	ErrExtensionNotAllowed = errors.New("file extension not allowed")
	// ErrFileTooLarge is returned for files bigger than MaxFileSize.
	ErrFileTooLarge = errors.New("file too large")
	// ErrEmptyFile is returned for zero byte files.
	ErrEmptyFile = errors.New("file is empty")
)

// File is a file that passed the selection filter.
type File struct {
	Name        string
	ContentType string
	Size        int64
	content     []byte
}

// Extension returns the lower case extension of the file name without the dot.
func (f *File) Extension() string {
	return Extension(f.Name)
}

// Reader returns a fresh reader over the file content.
func (f *File) Reader() *bytes.Reader {
	return bytes.NewReader(f.content)
}

// Bytes returns the raw file content.
func (f *File) Bytes() []byte {
	return f.content
}

// New checks name and content against the filter and returns the selected File.
func New(name string, content []byte) (*File, error) {
	name = filepath.Base(name)
	if err := CheckName(name); err != nil {
		return nil, err
	}
	if err := CheckSize(int64(len(content))); err != nil {
		return nil, err
	}

	return &File{
		Name:        name,
		ContentType: ContentType(name, content),
		Size:        int64(len(content)),
		content:     content,
	}, nil
}

// Open selects a local file. Name and size are checked before the content is read.
func Open(pth string) (*File, error) {
	name := filepath.Base(pth)
	if err := CheckName(name); err != nil {
		return nil, err
	}

	info, err := os.Stat(pth)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", pth)
	}
	if err := CheckSize(info.Size()); err != nil {
		return nil, err
	}

	f, err := os.Open(pth)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	// The file may grow between Stat and Read.
	content, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return New(name, content)
}

// CheckName verifies the file extension is on the allow-list.
func CheckName(name string) error {
	matched, err := doublestar.Match(allowedPattern, strings.ToLower(filepath.Base(name)))
	if err != nil {
		return fmt.Errorf("match file name: %w", err)
	}
	if !matched {
		return fmt.Errorf("%w: %s", ErrExtensionNotAllowed, name)
	}
	return nil
}

// CheckSize verifies the file size is within MaxFileSize.
func CheckSize(size int64) error {
	if size == 0 {
		return ErrEmptyFile
	}
	if size > MaxFileSize {
		return fmt.Errorf("%w: %s exceeds %s", ErrFileTooLarge, HumanSize(size), HumanSize(MaxFileSize))
	}
	return nil
}

// Extension returns the lower case extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// ContentType resolves the MIME type from the extension, falling back to content sniffing.
func ContentType(name string, content []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(strings.ToLower(name))); t != "" {
		if mediaType, _, err := mime.ParseMediaType(t); err == nil {
			return mediaType
		}
		return t
	}
	if Extension(name) == "svg" {
		return "image/svg+xml"
	}
	if len(content) == 0 {
		return "application/octet-stream"
	}
	mediaType, _, err := mime.ParseMediaType(http.DetectContentType(content))
	if err != nil {
		return "application/octet-stream"
	}
	return mediaType
}

// Preview returns a data URL for image files so a front end can show a thumbnail.
// Non-image files have no preview.
func Preview(f *File) string {
	if f == nil || !strings.HasPrefix(f.ContentType, "image/") {
		return ""
	}
	return "data:" + f.ContentType + ";base64," + base64.StdEncoding.EncodeToString(f.content)
}

// HumanSize formats a byte count the way the form hint does ("15MB").
func HumanSize(size int64) string {
	return units.CustomSize("%.4g%s", float64(size), 1024.0, []string{"B", "KB", "MB", "GB", "TB"})
}

// Hint is the helper text shown under an empty file input.
func Hint() string {
	names := make([]string, 0, len(AllowedExtensions))
	for _, ext := range AllowedExtensions {
		names = append(names, strings.ToUpper(ext))
	}
	last := len(names) - 1
	return fmt.Sprintf("%s, or %s (MAX. %s)", strings.Join(names[:last], ", "), names[last], HumanSize(MaxFileSize))
}

// Accept is the value of the HTML accept attribute matching the allow-list.
func Accept() string {
	exts := make([]string, 0, len(AllowedExtensions))
	for _, ext := range AllowedExtensions {
		exts = append(exts, "."+ext)
	}
	return strings.Join(exts, ",")
}

// RejectionMessage turns a selection error into the text shown to the user.
func RejectionMessage(err error) string {
	switch {
	case errors.Is(err, ErrExtensionNotAllowed):
		return "Invalid file type. Allowed types: " + strings.Join(AllowedExtensions, ", ")
	case errors.Is(err, ErrFileTooLarge):
		return fmt.Sprintf("File size exceeds %s limit", HumanSize(MaxFileSize))
	case errors.Is(err, ErrEmptyFile):
		return "Selected file is empty"
	case errors.Is(err, ErrSizeUnknown):
		return "Could not determine the size of the remote file"
	default:
		return "Could not read the selected file"
	}
}

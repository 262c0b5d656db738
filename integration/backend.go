// Package integration provides an in-process stand-in for the student records
// backend and its object storage, and end-to-end tests running the upload
// client against them.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/trixmart/go-idupload/network"
	"github.com/trixmart/go-idupload/selection"
)

const (
	// Bucket is the bucket objects are stored in.
	Bucket = "student-ids"
	// Region ...
	Region = "eu-west-1"

	accessKeyID     = "AKIDINTEGRATION"
	secretAccessKey = "integration-secret"
	presignExpiry   = 15 * time.Minute
)

// Endpoint names one of the three calls the client makes.
type Endpoint string

// Endpoints.
const (
	EndpointPresign Endpoint = "presign"
	EndpointStorage Endpoint = "storage"
	EndpointConfirm Endpoint = "confirm"
)

// StoredObject is an object received by the storage sink.
type StoredObject struct {
	Content     []byte
	ContentType string
}

type failure struct {
	status int
	body   string
}

// Backend serves the two backend endpoints and a storage sink accepting PUTs to
// the SigV4 pre-signed URLs the backend hands out.
type Backend struct {
	API     *httptest.Server
	Storage *httptest.Server

	logger    log.Logger
	presigner *s3.PresignClient

	mu         sync.Mutex
	students   map[int64]bool
	issued     map[string]string // object key -> signed content type
	objects    map[string]StoredObject
	records    map[int64]string
	calls      map[Endpoint]int
	requestIDs []string
	failures   map[Endpoint]failure
}

// NewBackend starts both servers. Call Close when done.
// With no students given every positive student ID is known.
func NewBackend(logger log.Logger, students ...int64) *Backend {
	b := &Backend{
		logger:   logger,
		issued:   map[string]string{},
		objects:  map[string]StoredObject{},
		records:  map[int64]string{},
		calls:    map[Endpoint]int{},
		failures: map[Endpoint]failure{},
	}
	if len(students) > 0 {
		b.students = map[int64]bool{}
		for _, id := range students {
			b.students[id] = true
		}
	}

	b.Storage = httptest.NewServer(b.storageRouter())
	b.API = httptest.NewServer(b.apiRouter())

	client := s3.New(s3.Options{
		Region:       Region,
		Credentials:  credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		BaseEndpoint: aws.String(b.Storage.URL),
		UsePathStyle: true,
	})
	b.presigner = s3.NewPresignClient(client, s3.WithPresignExpires(presignExpiry))

	return b
}

// Close shuts both servers down.
func (b *Backend) Close() {
	b.API.Close()
	b.Storage.Close()
}

// FailWith makes every following call to endpoint answer with status and body.
func (b *Backend) FailWith(endpoint Endpoint, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[endpoint] = failure{status: status, body: body}
}

// Calls returns how many times endpoint was called.
func (b *Backend) Calls(endpoint Endpoint) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[endpoint]
}

// Object returns the object stored under key.
func (b *Backend) Object(key string) (StoredObject, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[key]
	return obj, ok
}

// Record returns the file key recorded for a student.
func (b *Backend) Record(studentID int64) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key, ok := b.records[studentID]
	return key, ok
}

// RequestIDs returns the X-Request-ID headers seen on backend calls, in order.
func (b *Backend) RequestIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.requestIDs...)
}

func (b *Backend) apiRouter() http.Handler {
	r := chi.NewRouter()
	r.Post(network.PresignedURLPath, b.presign)
	r.Post(network.UpdateFilePath, b.confirm)
	return r
}

func (b *Backend) storageRouter() http.Handler {
	r := chi.NewRouter()
	r.Put("/{bucket}/*", b.store)
	return r
}

// begin counts the call and reports a configured failure, if any.
func (b *Backend) begin(endpoint Endpoint, w http.ResponseWriter, r *http.Request) bool {
	b.mu.Lock()
	b.calls[endpoint]++
	if endpoint != EndpointStorage {
		b.requestIDs = append(b.requestIDs, r.Header.Get(network.RequestIDHeader))
	}
	f, failing := b.failures[endpoint]
	b.mu.Unlock()

	if failing {
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, f.body)
		return false
	}
	return true
}

func (b *Backend) presign(w http.ResponseWriter, r *http.Request) {
	if !b.begin(EndpointPresign, w, r) {
		return
	}

	var req network.PresignedURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.StudentID <= 0 {
		writeMessage(w, http.StatusBadRequest, "Invalid student ID")
		return
	}
	if err := selection.CheckName("upload." + req.FileExtension); err != nil {
		writeMessage(w, http.StatusBadRequest, "Unsupported file extension")
		return
	}
	if !b.knownStudent(req.StudentID) {
		writeMessage(w, http.StatusNotFound, "Student not found")
		return
	}

	key := fmt.Sprintf("%d/%s.%s", req.StudentID, uuid.NewString(), strings.ToLower(req.FileExtension))
	contentType := selection.ContentType(key, nil)
	presigned, err := b.presigner.PresignPutObject(r.Context(), &s3.PutObjectInput{
		Bucket:      aws.String(Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		b.logger.Errorf("Failed to presign %s: %s", key, err)
		writeMessage(w, http.StatusInternalServerError, "Could not create upload URL")
		return
	}

	b.mu.Lock()
	b.issued[key] = contentType
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, network.PresignedURLResponse{UploadURL: presigned.URL, FileKey: key})
}

func (b *Backend) store(w http.ResponseWriter, r *http.Request) {
	if !b.begin(EndpointStorage, w, r) {
		return
	}

	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")
	query := r.URL.Query()
	for _, param := range []string{"X-Amz-Algorithm", "X-Amz-Credential", "X-Amz-Signature", "X-Amz-Expires", "X-Amz-SignedHeaders"} {
		if query.Get(param) == "" {
			writeStorageError(w, http.StatusForbidden, "AccessDenied")
			return
		}
	}
	if !strings.HasPrefix(query.Get("X-Amz-Credential"), accessKeyID+"/") {
		writeStorageError(w, http.StatusForbidden, "InvalidAccessKeyId")
		return
	}

	b.mu.Lock()
	signedContentType, ok := b.issued[key]
	b.mu.Unlock()
	if bucket != Bucket || !ok {
		writeStorageError(w, http.StatusForbidden, "SignatureDoesNotMatch")
		return
	}
	if strings.Contains(query.Get("X-Amz-SignedHeaders"), "content-type") && r.Header.Get("Content-Type") != signedContentType {
		writeStorageError(w, http.StatusForbidden, "SignatureDoesNotMatch")
		return
	}
	if r.ContentLength < 0 {
		writeStorageError(w, http.StatusLengthRequired, "MissingContentLength")
		return
	}

	content, err := io.ReadAll(r.Body)
	if err != nil {
		writeStorageError(w, http.StatusBadRequest, "IncompleteBody")
		return
	}

	b.mu.Lock()
	b.objects[key] = StoredObject{Content: content, ContentType: r.Header.Get("Content-Type")}
	b.mu.Unlock()
	b.logger.Debugf("Stored %s (%d bytes)", key, len(content))

	w.WriteHeader(http.StatusOK)
}

func (b *Backend) confirm(w http.ResponseWriter, r *http.Request) {
	if !b.begin(EndpointConfirm, w, r) {
		return
	}

	var req network.UpdateFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, ok := b.Object(req.FileKey); !ok {
		writeMessage(w, http.StatusConflict, "File has not been uploaded")
		return
	}
	if !strings.HasPrefix(req.FileKey, fmt.Sprintf("%d/", req.StudentID)) {
		writeMessage(w, http.StatusForbidden, "File belongs to another student")
		return
	}

	b.mu.Lock()
	b.records[req.StudentID] = req.FileKey
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"studentId": req.StudentID, "fileKey": req.FileKey})
}

func (b *Backend) knownStudent(id int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.students == nil || b.students[id]
}

// Presign issues an upload URL without going through the HTTP API.
func (b *Backend) Presign(ctx context.Context, key, contentType string) (string, error) {
	presigned, err := b.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.issued[key] = contentType
	b.mu.Unlock()
	return presigned.URL, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeStorageError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code></Error>`, code)
}

// Package uploadform associates an uploaded ID document with a student record.
//
// A submission validates the input, asks the backend for a pre-signed storage
// URL, PUTs the file to storage and finally tells the backend which object
// key belongs to the student. Any failing step aborts the rest.
package uploadform

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/trixmart/go-idupload/network"
	"github.com/trixmart/go-idupload/selection"
)

// Request is what the user submitted.
type Request struct {
	// StudentID is the raw text typed by the user.
	StudentID string
	File      *selection.File
}

// Outcome is the result of one submission.
type Outcome struct {
	Success bool
	// Message is the text shown to the user, for both success and failure.
	Message string
	// Err is an *Error when Success is false.
	Err error
	// FileKey is the storage key recorded for the student on success.
	FileKey string
}

// PhaseObserver is notified every time a submission enters a new phase.
type PhaseObserver func(Phase)

// Option ...
type Option func(*options)

type options struct {
	observer     PhaseObserver
	newRequestID func() string
}

// WithPhaseObserver registers a callback for phase changes.
func WithPhaseObserver(observer PhaseObserver) Option {
	return func(o *options) {
		o.observer = observer
	}
}

// WithRequestIDGenerator overrides how submission IDs are generated.
func WithRequestIDGenerator(fn func() string) Option {
	return func(o *options) {
		o.newRequestID = fn
	}
}

func newOptions(opts []Option) options {
	o := options{
		observer:     func(Phase) {},
		newRequestID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Orchestrator runs the upload sequence.
type Orchestrator struct {
	client network.Client
	logger log.Logger
	opts   options
}

// NewOrchestrator ...
func NewOrchestrator(client network.Client, logger log.Logger, opts ...Option) *Orchestrator {
	return &Orchestrator{
		client: client,
		logger: logger,
		opts:   newOptions(opts),
	}
}

// Submit runs one submission to completion. It never returns an error and
// never panics; failures are reported through the Outcome.
func (o *Orchestrator) Submit(ctx context.Context, req Request) Outcome {
	return o.submit(ctx, req, o.opts.observer)
}

func (o *Orchestrator) submit(ctx context.Context, req Request, observe PhaseObserver) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = o.fail(observe, newUnknownError(fmt.Errorf("panic: %v", r)))
		}
	}()

	observe(PhaseValidating)
	studentID, validationErr := validate(req)
	if validationErr != nil {
		return o.fail(observe, validationErr)
	}

	requestID := o.opts.newRequestID()
	ctx = network.WithRequestID(ctx, requestID)
	o.logger.Debugf("Submission %s: student %d, file %s (%s, %s)", requestID, studentID, req.File.Name, req.File.ContentType, units.HumanSizeWithPrecision(float64(req.File.Size), 3))

	observe(PhaseRequestingURL)
	o.logger.Infof("Requesting upload URL...")
	presigned, err := o.client.GetPresignedURL(ctx, network.PresignedURLRequest{
		StudentID:     studentID,
		FileExtension: req.File.Extension(),
	})
	if err != nil {
		return o.fail(observe, newPresignError(err))
	}
	o.logger.Debugf("File key: %s", presigned.FileKey)

	observe(PhaseUploading)
	o.logger.Infof("Uploading file...")
	uploadStartTime := time.Now()
	if err := o.client.UploadFile(ctx, presigned.UploadURL, req.File.Reader(), req.File.Size, req.File.ContentType); err != nil {
		return o.fail(observe, newStorageUploadError(err))
	}
	o.logger.Donef("File uploaded in %s", time.Since(uploadStartTime).Round(time.Millisecond))

	observe(PhaseConfirming)
	o.logger.Infof("Updating student record...")
	if err := o.client.ConfirmUpload(ctx, network.UpdateFileRequest{
		StudentID: studentID,
		FileKey:   presigned.FileKey,
	}); err != nil {
		return o.fail(observe, newConfirmationError(err))
	}

	observe(PhaseSuccess)
	o.logger.Donef(SuccessMessage)
	return Outcome{
		Success: true,
		Message: SuccessMessage,
		FileKey: presigned.FileKey,
	}
}

func (o *Orchestrator) fail(observe PhaseObserver, err *Error) Outcome {
	observe(PhaseError)
	o.logger.Debugf("Submission failed: %s", err)
	return Outcome{
		Message: displayText(err),
		Err:     err,
	}
}

// validate returns the numeric student ID, or a validation *Error.
func validate(req Request) (int64, *Error) {
	raw := strings.TrimSpace(req.StudentID)
	if raw == "" || req.File == nil {
		return 0, newValidationError(MissingFieldsMessage, nil)
	}

	studentID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, newValidationError(InvalidStudentIDMessage, err)
	}
	if studentID <= 0 {
		return 0, newValidationError(InvalidStudentIDMessage, nil)
	}

	return studentID, nil
}

package uploadform

import (
	"errors"
	"fmt"

	"github.com/trixmart/go-idupload/network"
)

// Error kinds. Use errors.Is against these to classify a failed Outcome.
var (
	ErrValidation    = errors.New("validation failed")
	ErrPresign       = errors.New("presigned url request failed")
	ErrStorageUpload = errors.New("storage upload failed")
	ErrConfirmation  = errors.New("record update failed")
	ErrUnknown       = errors.New("unknown error")
	// ErrBusy is returned when a submission is already in flight.
	ErrBusy = errors.New("submission already in progress")
)

// User facing texts.
const (
	SuccessMessage          = "Upload successful!"
	MissingFieldsMessage    = "Please fill all fields"
	InvalidStudentIDMessage = "Student ID must be a positive number"
	PresignFallbackMessage  = "Failed to get upload URL"
	StorageFailedMessage    = "Storage upload failed"
	ConfirmFailedMessage    = "Failed to update record"
	UnknownErrorMessage     = "Unknown error"
	BusyMessage             = "An upload is already in progress"
)

// Error is a classified submission failure.
type Error struct {
	// Kind is one of the Err* sentinels of this package.
	Kind error
	// Message is the text shown to the user.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err)
	}
	return e.Message
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap ...
func (e *Error) Unwrap() error {
	return e.Err
}

func newValidationError(message string, cause error) *Error {
	return &Error{Kind: ErrValidation, Message: message, Err: cause}
}

func newPresignError(cause error) *Error {
	message := network.ServerMessage(cause)
	if message == "" {
		message = PresignFallbackMessage
	}
	return &Error{Kind: ErrPresign, Message: message, Err: cause}
}

func newStorageUploadError(cause error) *Error {
	return &Error{Kind: ErrStorageUpload, Message: StorageFailedMessage, Err: cause}
}

func newConfirmationError(cause error) *Error {
	return &Error{Kind: ErrConfirmation, Message: ConfirmFailedMessage, Err: cause}
}

func newUnknownError(cause error) *Error {
	return &Error{Kind: ErrUnknown, Message: UnknownErrorMessage, Err: cause}
}

// displayText renders err as the single line shown in the message slot.
// Validation problems are shown as is, everything else is prefixed.
func displayText(err *Error) string {
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrBusy) {
		return err.Message
	}
	return "Error: " + err.Message
}

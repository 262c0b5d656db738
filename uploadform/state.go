package uploadform

import (
	"github.com/trixmart/go-idupload/selection"
)

// Phase is the step a submission is currently in.
type Phase string

// Phases, in the order a successful submission walks through them.
const (
	PhaseIdle          Phase = "idle"
	PhaseValidating    Phase = "validating"
	PhaseRequestingURL Phase = "requesting-url"
	PhaseUploading     Phase = "uploading"
	PhaseConfirming    Phase = "confirming"
	PhaseSuccess       Phase = "success"
	PhaseError         Phase = "error"
)

// Terminal reports whether no further phase follows p within a submission.
func (p Phase) Terminal() bool {
	return p == PhaseSuccess || p == PhaseError
}

// Message is the single line status slot of the form.
type Message struct {
	Text    string
	IsError bool
}

// FormState is everything the form displays. It is only changed through Reduce.
type FormState struct {
	StudentID string
	File      *selection.File
	Preview   string
	Busy      bool
	Phase     Phase
	Message   Message
}

// Event is a user or network event that changes the form state.
type Event interface {
	event()
}

// StudentIDChanged is emitted when the user edits the student ID field.
type StudentIDChanged struct {
	Value string
}

// FileSelected is emitted when a file passed the selection filter.
type FileSelected struct {
	File *selection.File
}

// FileRejected is emitted when the selection filter refused a file.
type FileRejected struct {
	Reason string
}

// FileCleared ...
type FileCleared struct{}

// SubmitStarted ...
type SubmitStarted struct{}

// PhaseChanged ...
type PhaseChanged struct {
	Phase Phase
}

// SubmitFinished carries the outcome of a submission.
type SubmitFinished struct {
	Outcome Outcome
}

func (StudentIDChanged) event() {}
func (FileSelected) event()     {}
func (FileRejected) event()     {}
func (FileCleared) event()      {}
func (SubmitStarted) event()    {}
func (PhaseChanged) event()     {}
func (SubmitFinished) event()   {}

// NewFormState returns the state of a freshly rendered form.
func NewFormState() FormState {
	return FormState{Phase: PhaseIdle}
}

// Reduce returns the state that follows s after e.
func Reduce(s FormState, e Event) FormState {
	switch e := e.(type) {
	case StudentIDChanged:
		s.StudentID = e.Value
	case FileSelected:
		s.File = e.File
		s.Preview = selection.Preview(e.File)
		s.Message = Message{}
	case FileRejected:
		s.File = nil
		s.Preview = ""
		s.Message = Message{Text: e.Reason, IsError: true}
	case FileCleared:
		s.File = nil
		s.Preview = ""
	case SubmitStarted:
		s.Busy = true
		s.Phase = PhaseValidating
		s.Message = Message{}
	case PhaseChanged:
		s.Phase = e.Phase
	case SubmitFinished:
		s.Busy = false
		if e.Outcome.Success {
			s.StudentID = ""
			s.File = nil
			s.Preview = ""
			s.Phase = PhaseSuccess
			s.Message = Message{Text: e.Outcome.Message}
		} else {
			s.Phase = PhaseError
			s.Message = Message{Text: e.Outcome.Message, IsError: true}
		}
	}
	return s
}

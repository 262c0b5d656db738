package uploadform

import (
	"context"
	"sync"

	"github.com/trixmart/go-idupload/selection"
)

// Form holds the state of one upload form and serializes its submissions.
type Form struct {
	mu           sync.Mutex
	state        FormState
	orchestrator *Orchestrator
	opts         options
}

// NewForm ...
func NewForm(orchestrator *Orchestrator, opts ...Option) *Form {
	return &Form{
		state:        NewFormState(),
		orchestrator: orchestrator,
		opts:         newOptions(opts),
	}
}

// State returns a snapshot of the current form state.
func (f *Form) State() FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// SetStudentID ...
func (f *Form) SetStudentID(raw string) {
	f.dispatch(StudentIDChanged{Value: raw})
}

// SelectFile runs the selection filter on the picked file. A rejected file
// clears the file slot and its preview.
func (f *Form) SelectFile(name string, content []byte) error {
	file, err := selection.New(name, content)
	if err != nil {
		return f.RejectFile(err)
	}
	f.dispatch(FileSelected{File: file})
	return nil
}

// RejectFile clears the file slot for a file that could not be read at all,
// for example because the upload exceeded the size limit in transit.
func (f *Form) RejectFile(err error) error {
	f.dispatch(FileRejected{Reason: selection.RejectionMessage(err)})
	return newValidationError(selection.RejectionMessage(err), err)
}

// ClearFile ...
func (f *Form) ClearFile() {
	f.dispatch(FileCleared{})
}

// Submit submits the current form content. While a submission is running
// further calls return immediately with an ErrBusy outcome.
func (f *Form) Submit(ctx context.Context) Outcome {
	f.mu.Lock()
	if f.state.Busy {
		f.mu.Unlock()
		err := &Error{Kind: ErrBusy, Message: BusyMessage}
		return Outcome{Message: displayText(err), Err: err}
	}
	f.state = Reduce(f.state, SubmitStarted{})
	req := Request{StudentID: f.state.StudentID, File: f.state.File}
	f.mu.Unlock()

	outcome := f.orchestrator.submit(ctx, req, f.observe)
	f.dispatch(SubmitFinished{Outcome: outcome})
	return outcome
}

func (f *Form) observe(phase Phase) {
	// Terminal phases are applied together with the outcome.
	if !phase.Terminal() {
		f.dispatch(PhaseChanged{Phase: phase})
	}
	f.opts.observer(phase)
}

func (f *Form) dispatch(e Event) {
	f.mu.Lock()
	f.state = Reduce(f.state, e)
	f.mu.Unlock()
}

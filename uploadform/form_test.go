package uploadform

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/trixmart/go-idupload/network"
	"github.com/trixmart/go-idupload/selection"
)

var ignoreFileContent = cmpopts.IgnoreUnexported(selection.File{})

func newTestForm(client network.Client, opts ...Option) *Form {
	return NewForm(newTestOrchestrator(client), opts...)
}

func TestForm_SelectFile(t *testing.T) {
	form := newTestForm(new(mockClient))

	require.NoError(t, form.SelectFile("id.png", []byte("png")))

	state := form.State()
	require.NotNil(t, state.File)
	assert.Equal(t, "id.png", state.File.Name)
	assert.Equal(t, "data:image/png;base64,cG5n", state.Preview)
	assert.Empty(t, state.Message)
}

func TestForm_SelectFileRejectedClearsSlot(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content []byte
		wantErr error
	}{
		{name: "disallowed extension", file: "setup.exe", content: []byte("MZ"), wantErr: selection.ErrExtensionNotAllowed},
		{name: "too large", file: "scan.pdf", content: make([]byte, selection.MaxFileSize+1), wantErr: selection.ErrFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := newTestForm(new(mockClient))
			require.NoError(t, form.SelectFile("id.png", []byte("png")))

			err := form.SelectFile(tt.file, tt.content)

			require.ErrorIs(t, err, ErrValidation)
			require.ErrorIs(t, err, tt.wantErr)

			state := form.State()
			assert.Nil(t, state.File)
			assert.Empty(t, state.Preview)
			assert.True(t, state.Message.IsError)
			assert.Equal(t, selection.RejectionMessage(tt.wantErr), state.Message.Text)
		})
	}
}

func TestForm_SubmitWithoutFile(t *testing.T) {
	client := new(mockClient)
	form := newTestForm(client)
	form.SetStudentID("1023")

	outcome := form.Submit(context.Background())

	require.ErrorIs(t, outcome.Err, ErrValidation)
	want := FormState{
		StudentID: "1023",
		Phase:     PhaseError,
		Message:   Message{Text: MissingFieldsMessage, IsError: true},
	}
	if diff := cmp.Diff(want, form.State(), ignoreFileContent); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
	client.AssertNotCalled(t, "GetPresignedURL", mock.Anything, mock.Anything)
}

func TestForm_SuccessResetsForm(t *testing.T) {
	client := new(mockClient)
	client.On("GetPresignedURL", mock.Anything, network.PresignedURLRequest{StudentID: 1023, FileExtension: "png"}).
		Return(network.PresignedURLResponse{UploadURL: testUploadURL, FileKey: testFileKey}, nil).Once()
	client.On("UploadFile", mock.Anything, testUploadURL, mock.Anything, mock.Anything, "image/png").Return(nil).Once()
	client.On("ConfirmUpload", mock.Anything, network.UpdateFileRequest{StudentID: 1023, FileKey: testFileKey}).Return(nil).Once()

	form := newTestForm(client)
	form.SetStudentID("1023")
	require.NoError(t, form.SelectFile("id.png", []byte("png")))

	outcome := form.Submit(context.Background())

	require.True(t, outcome.Success)
	want := FormState{
		Phase:   PhaseSuccess,
		Message: Message{Text: "Upload successful!"},
	}
	if diff := cmp.Diff(want, form.State(), ignoreFileContent); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
	client.AssertExpectations(t)
}

func TestForm_FailureKeepsInput(t *testing.T) {
	client := new(mockClient)
	client.On("GetPresignedURL", mock.Anything, mock.Anything).
		Return(network.PresignedURLResponse{}, &network.StatusError{StatusCode: 400, Body: `{"error":"Unknown student"}`})

	form := newTestForm(client)
	form.SetStudentID("1023")
	require.NoError(t, form.SelectFile("id.png", []byte("png")))
	before := form.State()

	form.Submit(context.Background())

	state := form.State()
	assert.Equal(t, before.StudentID, state.StudentID)
	assert.Same(t, before.File, state.File)
	assert.Equal(t, before.Preview, state.Preview)
	assert.False(t, state.Busy)
	assert.Equal(t, PhaseError, state.Phase)
	assert.Equal(t, Message{Text: "Error: Unknown student", IsError: true}, state.Message)
}

func TestForm_MessageClearedOnNextAttempt(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	client := new(mockClient)
	client.On("GetPresignedURL", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(network.PresignedURLResponse{}, errors.New("refused"))

	form := newTestForm(client)
	form.Submit(context.Background())
	require.True(t, form.State().Message.IsError)

	form.SetStudentID("5")
	require.NoError(t, form.SelectFile("id.png", []byte("png")))

	done := make(chan struct{})
	go func() {
		defer close(done)
		form.Submit(context.Background())
	}()
	<-started

	state := form.State()
	assert.True(t, state.Busy)
	assert.Equal(t, PhaseRequestingURL, state.Phase)
	assert.Empty(t, state.Message.Text)

	close(release)
	<-done
}

func TestForm_BusyRejectsSecondSubmit(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	client := new(mockClient)
	client.On("GetPresignedURL", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(network.PresignedURLResponse{UploadURL: testUploadURL, FileKey: testFileKey}, nil).Once()
	client.On("UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	client.On("ConfirmUpload", mock.Anything, mock.Anything).Return(nil).Once()

	form := newTestForm(client)
	form.SetStudentID("1023")
	require.NoError(t, form.SelectFile("id.png", []byte("png")))

	var wg sync.WaitGroup
	wg.Add(1)
	var first Outcome
	go func() {
		defer wg.Done()
		first = form.Submit(context.Background())
	}()
	<-started

	second := form.Submit(context.Background())
	require.ErrorIs(t, second.Err, ErrBusy)
	assert.Equal(t, BusyMessage, second.Message)

	close(release)
	wg.Wait()

	assert.True(t, first.Success)
	client.AssertNumberOfCalls(t, "GetPresignedURL", 1)
}

func TestForm_PhaseObserverSeesState(t *testing.T) {
	client := new(mockClient)
	client.On("GetPresignedURL", mock.Anything, mock.Anything).
		Return(network.PresignedURLResponse{UploadURL: testUploadURL, FileKey: testFileKey}, nil)
	client.On("UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	client.On("ConfirmUpload", mock.Anything, mock.Anything).Return(nil)

	var form *Form
	var busy []bool
	form = newTestForm(client, WithPhaseObserver(func(p Phase) {
		if !p.Terminal() {
			busy = append(busy, form.State().Busy)
		}
	}))
	form.SetStudentID("1023")
	require.NoError(t, form.SelectFile("id.png", []byte("png")))

	form.Submit(context.Background())

	assert.Equal(t, []bool{true, true, true, true}, busy)
	assert.False(t, form.State().Busy)
}

func TestForm_ClearFile(t *testing.T) {
	form := newTestForm(new(mockClient))
	require.NoError(t, form.SelectFile("id.png", []byte("png")))

	form.ClearFile()

	assert.Nil(t, form.State().File)
	assert.Empty(t, form.State().Preview)
}

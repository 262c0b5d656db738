package uploadform

import (
	"context"
	"io"

	"github.com/bitrise-io/go-utils/v2/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/trixmart/go-idupload/network"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) GetPresignedURL(ctx context.Context, req network.PresignedURLRequest) (network.PresignedURLResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(network.PresignedURLResponse), args.Error(1)
}

func (m *mockClient) UploadFile(ctx context.Context, uploadURL string, body io.ReadSeeker, size int64, contentType string) error {
	content, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	args := m.Called(ctx, uploadURL, content, size, contentType)
	return args.Error(0)
}

func (m *mockClient) ConfirmUpload(ctx context.Context, req network.UpdateFileRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

// newMockLogger accepts any log call with up to maxLogArgs format arguments.
func newMockLogger() *mocks.Logger {
	const maxLogArgs = 6
	logger := new(mocks.Logger)
	for _, method := range []string{"Debugf", "Infof", "Donef", "Warnf", "Errorf", "Printf"} {
		for n := 0; n <= maxLogArgs; n++ {
			args := make([]interface{}, n+1)
			for i := range args {
				args[i] = mock.Anything
			}
			logger.On(method, args...).Return().Maybe()
		}
	}
	return logger
}

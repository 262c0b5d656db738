package integration

import (
	"bytes"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/require"
	"github.com/trixmart/go-idupload/selection"
)

var logger = log.NewLogger()

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// pngOf returns size bytes starting with a PNG signature.
func pngOf(size int) []byte {
	return append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0x42}, size-len(pngHeader))...)
}

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	return repo.envVars[key]
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	delete(repo.envVars, key)
	return nil
}

func (repo fakeEnvRepo) List() []string {
	var values []string
	for k, v := range repo.envVars {
		values = append(values, k+"="+v)
	}
	return values
}

func mustFile(t *testing.T, name string, content []byte) *selection.File {
	t.Helper()
	file, err := selection.New(name, content)
	require.NoError(t, err)
	return file
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	value, ok := repo.envVars[key]
	if ok {
		return value
	}
	return ""
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

func newLoader(envVars map[string]string) Loader {
	return NewLoader(fakeEnvRepo{envVars: envVars}, log.NewLogger()).WithDotEnvPath("")
}

func TestLoad_APIBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{name: "unset falls back", value: "", want: "http://localhost:8080"},
		{name: "blank falls back", value: "   ", want: "http://localhost:8080"},
		{name: "explicit", value: "https://api.example.com", want: "https://api.example.com"},
		{name: "trailing slash trimmed", value: "https://api.example.com/v1/", want: "https://api.example.com/v1"},
		{name: "no scheme", value: "api.example.com", wantErr: true},
		{name: "unsupported scheme", value: "ftp://api.example.com", wantErr: true},
		{name: "unparsable", value: "http://[::1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := newLoader(map[string]string{APIBaseURLKey: tt.value}).Load()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.APIBaseURL)
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dotEnv := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(dotEnv, []byte("API_BASE_URL=http://backend.internal:9000\nOTHER=1\n"), 0o600))

	envVars := map[string]string{}
	cfg, err := NewLoader(fakeEnvRepo{envVars: envVars}, log.NewLogger()).WithDotEnvPath(dotEnv).Load()
	require.NoError(t, err)

	assert.Equal(t, "http://backend.internal:9000", cfg.APIBaseURL)
	assert.Equal(t, "1", envVars["OTHER"])
}

func TestLoad_EnvironmentWinsOverDotEnv(t *testing.T) {
	dotEnv := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(dotEnv, []byte("API_BASE_URL=http://from-file:1\n"), 0o600))

	envVars := map[string]string{APIBaseURLKey: "http://from-env:2"}
	cfg, err := NewLoader(fakeEnvRepo{envVars: envVars}, log.NewLogger()).WithDotEnvPath(dotEnv).Load()
	require.NoError(t, err)

	assert.Equal(t, "http://from-env:2", cfg.APIBaseURL)
}

func TestLoad_MissingDotEnvIsFine(t *testing.T) {
	cfg, err := NewLoader(fakeEnvRepo{envVars: map[string]string{}}, log.NewLogger()).
		WithDotEnvPath(filepath.Join(t.TempDir(), "missing.env")).
		Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIBaseURL, cfg.APIBaseURL)
}

func TestLoad_UnreadableDotEnv(t *testing.T) {
	// A directory cannot be parsed as a .env file.
	_, err := NewLoader(fakeEnvRepo{envVars: map[string]string{}}, log.NewLogger()).
		WithDotEnvPath(t.TempDir()).
		Load()
	require.Error(t, err)
}

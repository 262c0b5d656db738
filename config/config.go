// Package config resolves the runtime configuration of the upload client.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/joho/godotenv"
)

const (
	// APIBaseURLKey is the environment variable holding the backend base URL.
	APIBaseURLKey = "API_BASE_URL"
	// DefaultAPIBaseURL is used when APIBaseURLKey is unset or empty.
	DefaultAPIBaseURL = "http://localhost:8080"
	// DefaultDotEnvPath is read before the environment, if it exists.
	DefaultDotEnvPath = ".env"
)

// Config ...
type Config struct {
	APIBaseURL string
}

// Loader builds a Config from an optional .env file and the environment.
type Loader struct {
	envRepo    env.Repository
	logger     log.Logger
	dotEnvPath string
}

// NewLoader ...
func NewLoader(envRepo env.Repository, logger log.Logger) Loader {
	return Loader{
		envRepo:    envRepo,
		logger:     logger,
		dotEnvPath: DefaultDotEnvPath,
	}
}

// WithDotEnvPath returns a copy of l reading the given file instead of .env. An empty path disables .env loading.
func (l Loader) WithDotEnvPath(pth string) Loader {
	l.dotEnvPath = pth
	return l
}

// Load ...
func (l Loader) Load() (Config, error) {
	if err := l.loadDotEnv(); err != nil {
		return Config{}, err
	}

	baseURL, err := l.apiBaseURL()
	if err != nil {
		return Config{}, err
	}
	l.logger.Debugf("%s: %s", APIBaseURLKey, baseURL)

	return Config{APIBaseURL: baseURL}, nil
}

// loadDotEnv copies values from the .env file into the environment.
// Variables that are already set win over the file.
func (l Loader) loadDotEnv() error {
	if l.dotEnvPath == "" {
		return nil
	}

	values, err := godotenv.Read(l.dotEnvPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Debugf("No %s file found, reading from environment", l.dotEnvPath)
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", l.dotEnvPath, err)
	}

	for key, value := range values {
		if l.envRepo.Get(key) != "" {
			continue
		}
		if err := l.envRepo.Set(key, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return nil
}

func (l Loader) apiBaseURL() (string, error) {
	raw := strings.TrimSpace(l.envRepo.Get(APIBaseURLKey))
	if raw == "" {
		return DefaultAPIBaseURL, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid %s: %w", APIBaseURLKey, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid %s: %q is not an absolute http(s) URL", APIBaseURLKey, raw)
	}

	return strings.TrimRight(raw, "/"), nil
}

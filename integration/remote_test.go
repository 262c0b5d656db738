//go:build integration
// +build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trixmart/go-idupload/config"
	"github.com/trixmart/go-idupload/network"
	"github.com/trixmart/go-idupload/selection"
	"github.com/trixmart/go-idupload/uploadform"
)

// TestRemoteUpload runs the upload against a deployed backend:
// API_BASE_URL, IDUPLOAD_STUDENT_ID and IDUPLOAD_FILE have to be set.
func TestRemoteUpload(t *testing.T) {
	// Given
	studentID := os.Getenv("IDUPLOAD_STUDENT_ID")
	testFile := os.Getenv("IDUPLOAD_FILE")
	if studentID == "" || testFile == "" {
		t.Skip("IDUPLOAD_STUDENT_ID and IDUPLOAD_FILE are required")
	}

	cfg, err := config.NewLoader(env.NewRepository(), logger).Load()
	require.NoError(t, err)

	file, err := selection.Open(testFile)
	require.NoError(t, err)

	logger.EnableDebugLog(true)
	client := network.NewClient(cfg.APIBaseURL, logger)
	orchestrator := uploadform.NewOrchestrator(client, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// When
	outcome := orchestrator.Submit(ctx, uploadform.Request{StudentID: studentID, File: file})

	// Then
	assert.True(t, outcome.Success, outcome.Message)
	assert.NotEmpty(t, outcome.FileKey)
}

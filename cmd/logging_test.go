package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLogging_InvalidLevel(t *testing.T) {
	_, err := setupLogging("loud", "")
	assert.Error(t, err)
}

func TestSetupLogging_WritesToFile(t *testing.T) {
	// GIVEN logging into a file
	defer logrus.SetLevel(logrus.GetLevel())
	path := filepath.Join(t.TempDir(), "trial.log")
	closeLog, err := setupLogging("info", path)
	require.NoError(t, err)

	// WHEN a line is logged and the file closed
	logrus.Info("epoch finished")
	closeLog()

	// THEN the line is in the file
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "epoch finished")
}

package config_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shodh/memory-engine/internal/config"
)

func TestSetupLoggerWithWritersFansOutToBoth(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := config.SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("engine started", "namespaces", 3)

	assert.Contains(t, stderr.String(), "engine started")
	assert.Contains(t, file.String(), "engine started")
	assert.Contains(t, file.String(), `"namespaces":3`)
}

func TestSetupLoggerWithWritersRespectsLevel(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := config.SetupLoggerWithWriters(&stderr, &file, slog.LevelWarn)

	logger.Debug("should not appear")
	logger.Warn("should appear")

	assert.NotContains(t, stderr.String(), "should not appear")
	assert.Contains(t, stderr.String(), "should appear")
}

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunReturnsConfigErrorExitCodeOnInvalidEmbedDim(t *testing.T) {
	t.Setenv("EMBED_DIM", "0")
	assert.Equal(t, exitConfigError, run())
}

func TestRunReturnsConfigErrorExitCodeOnUnreadableStoragePath(t *testing.T) {
	t.Setenv("EMBED_DIM", "8")
	t.Setenv("STORAGE_PATH", "/dev/null/not-a-directory")
	assert.Equal(t, exitConfigError, run())
}

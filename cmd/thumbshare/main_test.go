package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunGenerateKey(t *testing.T) {
	assert.NoError(t, run([]string{"--generate-key"}))
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	assert.Error(t, run([]string{"--no-such-flag"}))
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("THUMBSHARE_LOGGING_LEVEL", "loud")
	assert.Error(t, run([]string{"--data_directory", t.TempDir()}))
}

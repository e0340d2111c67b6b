package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_FileOutput(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(LogOption{Format: "json", LogDir: dir, Level: "debug"}))
	t.Cleanup(func() { _ = Init(LogOption{Format: "console", Level: "info"}) })

	Infof("[test] hello %d", 1)
	Sync()

	data, err := os.ReadFile(filepath.Join(dir, logFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[test] hello 1")
}

func TestInit_InvalidOption(t *testing.T) {
	assert.Error(t, Init(LogOption{Level: "loud"}))
	assert.Error(t, Init(LogOption{Format: "xml"}))
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	config, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), config)
	assert.False(t, config.SkipSignatureVerification)
	require.NotNil(t, config.MaxDistanceDepth)
	assert.Equal(t, DefaultMaxDistanceDepth, *config.MaxDistanceDepth)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
data_path: /var/lib/nostrdb
skip_signature_verification: true
max_distance_depth: 3
root: "0000000000000000000000000000000000000000000000000000000000000000"
workers: 4
enqueue_timeout: 1s
store_raw_events: true
`)
	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/nostrdb", config.DataPath)
	assert.True(t, config.SkipSignatureVerification)
	require.NotNil(t, config.MaxDistanceDepth)
	assert.Equal(t, 3, *config.MaxDistanceDepth)
	assert.Equal(t, 4, config.Workers)
	assert.Equal(t, time.Second, config.EnqueueTimeout)
	assert.True(t, config.StoreRawEvents)
	assert.Equal(t, DefaultQueueSize, config.QueueSize)
	assert.Equal(t, DefaultLogLevel, config.LogLevel)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "skip_signature_verificaton: true\n"))
	assert.Error(t, err)
}

func TestLoad_RejectsNegativeDepth(t *testing.T) {
	_, err := Load(writeConfig(t, "max_distance_depth: -2\n"))
	assert.Error(t, err)
}

func TestLoad_ExplicitZeroDepthIsKept(t *testing.T) {
	config, err := Load(writeConfig(t, "max_distance_depth: 0\n"))
	require.NoError(t, err)
	require.NotNil(t, config.MaxDistanceDepth)
	assert.Equal(t, 0, *config.MaxDistanceDepth)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/op/go-logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Defaults", testLoadDefaults)
	t.Run("Environment", testLoadEnvironment)
	t.Run("Invalid", testLoadInvalid)
}

func testLoadDefaults(t *testing.T) {
	for _, key := range []string{"EHT_MAX_BUCKET_SIZE", "EHT_MAX_BUCKET_DEPTH", "EHT_PAGES_IN_BUFFER"} {
		// Setenv registers the restore; an empty value would still be parsed.
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func testLoadEnvironment(t *testing.T) {
	t.Setenv("EHT_MAX_BUCKET_SIZE", "4")
	t.Setenv("EHT_MAX_BUCKET_DEPTH", "12")
	t.Setenv("EHT_PAGES_IN_BUFFER", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(4), cfg.BucketSize)
	assert.Equal(t, int64(12), cfg.MaxDepth)
	assert.Equal(t, int64(8), cfg.PagesInBuffer)
}

func testLoadInvalid(t *testing.T) {
	tests := map[string][2]string{
		"ZeroBucketSize": {"EHT_MAX_BUCKET_SIZE", "0"},
		"DepthTooLarge":  {"EHT_MAX_BUCKET_DEPTH", "64"},
		"NoFrames":       {"EHT_PAGES_IN_BUFFER", "0"},
		"NotANumber":     {"EHT_MAX_BUCKET_SIZE", "fifty"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(env[0], env[1])
			_, err := Load()
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestGetPrompt(t *testing.T) {
	assert.Equal(t, Prompt, GetPrompt(true))
	assert.Equal(t, "", GetPrompt(false))
}

func TestSetupLogging(t *testing.T) {
	assert.ErrorIs(t, SetupLogging(LogOptions{LogLevel: "loud"}), ErrInvalidConfig)
	require.NoError(t, SetupLogging(LogOptions{LogLevel: "warning", NoLogFiles: true}))
	assert.Equal(t, logging.WARNING, logging.GetLevel(""))

	dir := t.TempDir()
	require.NoError(t, SetupLogging(LogOptions{LogLevel: "DEBUG", LogDir: dir}))
	logging.MustGetLogger("config").Info("hello")
	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[config]")
	assert.Contains(t, string(data), "hello")
	require.NoError(t, SetupLogging(LogOptions{LogLevel: "info", NoLogFiles: true}))
}

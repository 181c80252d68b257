package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/log"
)

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TALLY_TEST_FROM_FILE=file\nTALLY_TEST_PRESET=file\n"), 0o600))

	t.Setenv("TALLY_TEST_PRESET", "env")
	t.Setenv("TALLY_TEST_FROM_FILE", "")
	require.NoError(t, os.Unsetenv("TALLY_TEST_FROM_FILE"))

	LoadEnvFile(path)

	assert.Equal(t, "file", os.Getenv("TALLY_TEST_FROM_FILE"))
	assert.Equal(t, "env", os.Getenv("TALLY_TEST_PRESET"), "environment wins over .env")
}

func TestLoadEnvFileMissingIsIgnored(t *testing.T) {
	assert.NotPanics(t, func() {
		LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"))
	})
}

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger("debug", log.ComponentCLI)

	assert.Equal(t, log.ComponentCLI, logger.Component())
	assert.True(t, logger.Enabled(context.Background(), log.ParseLevel("debug")))

	logger = SetupLogger("error", log.ComponentCLI)
	assert.False(t, logger.Enabled(context.Background(), log.ParseLevel("warn")))
}

func TestInitSQLite(t *testing.T) {
	repo := InitSQLite(log.Discard(), filepath.Join(t.TempDir(), "tally.db"))
	t.Cleanup(func() { _ = repo.Close() })

	require.NoError(t, repo.Ping(context.Background()))
}

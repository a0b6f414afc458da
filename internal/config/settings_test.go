package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings("")
	require.NoError(t, err)

	assert.Equal(t, 400, s.PageSize)
	assert.Equal(t, 30*time.Second, s.LockLease)
	assert.Equal(t, "@every 1m", s.ScanSchedule)
	assert.Equal(t, 2*time.Minute, s.WorkerTTL)
	assert.Equal(t, 4, s.TenantConcurrency)
	assert.Equal(t, 1.0, s.ScanTriggersPerSecond)
	assert.Equal(t, 5, s.ScanTriggerBurst)
}

func TestLoadSettingsFromEnv(t *testing.T) {
	t.Setenv("DISPATCH_PAGE_SIZE", "100")
	t.Setenv("DISPATCH_LOCK_LEASE", "1m")
	t.Setenv("DISPATCH_SCAN_SCHEDULE", "@every 30s")

	s, err := LoadSettings("")
	require.NoError(t, err)

	assert.Equal(t, 100, s.PageSize)
	assert.Equal(t, time.Minute, s.LockLease)
	assert.Equal(t, "@every 30s", s.ScanSchedule)
}

func TestLoadSettingsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("page_size: 50\ntenant_concurrency: 2\n"), 0o600))

	s, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, 50, s.PageSize)
	assert.Equal(t, 2, s.TenantConcurrency)
	assert.Equal(t, 30*time.Second, s.LockLease, "unset keys keep their defaults")
}

func TestLoadSettingsRejectsInvalidValues(t *testing.T) {
	t.Setenv("DISPATCH_PAGE_SIZE", "0")

	_, err := LoadSettings("")
	assert.Error(t, err)
}

func TestLoadSettingsMissingFile(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

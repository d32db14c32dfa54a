package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Dispatch.RequestTTL)
	assert.Equal(t, time.Minute, cfg.Dispatch.SweepInterval)
	assert.True(t, cfg.Dispatch.CapabilityFallback)
	assert.InDelta(t, 0.15, cfg.Invoice.TaxRate, 1e-9)
	assert.Equal(t, 30, cfg.Invoice.DueDays)
	assert.Empty(t, cfg.RabbitMQ.URL)
	assert.Equal(t, 2*time.Second, cfg.RabbitMQ.PublishTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DISPATCH_REQUEST_TTL", "2m")
	t.Setenv("DISPATCH_CAPABILITY_FALLBACK", "false")
	t.Setenv("INVOICE_HANDLING_FEE", "75.5")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()

	assert.Equal(t, 2*time.Minute, cfg.Dispatch.RequestTTL)
	assert.False(t, cfg.Dispatch.CapabilityFallback)
	assert.InDelta(t, 75.5, cfg.Invoice.HandlingFee, 1e-9)
	assert.Equal(t, 0, cfg.Redis.DB, "unparsable values fall back to the default")
}

func TestLoadDotEnvUp_FindsParentFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("FLEET_TEST_DOTENV=loaded\n"), 0o600))
	child := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(child, 0o755))
	t.Chdir(child)
	t.Setenv("FLEET_TEST_DOTENV", "")
	os.Unsetenv("FLEET_TEST_DOTENV")

	LoadDotEnvUp(3)

	assert.Equal(t, "loaded", os.Getenv("FLEET_TEST_DOTENV"))
}

package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("UPSTREAM_LEDGER_URL", "http://ledger.local")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "http://ledger.local", cfg.Upstream.LedgerURL)
	assert.Equal(t, "http://localhost:8090/score", cfg.Upstream.ScoreURL)
	assert.Equal(t, 10*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, uint32(5), cfg.Engine.CBMaxFailures)
	assert.Equal(t, "food_uploads/", cfg.Media.KeyPrefix)
	assert.Equal(t, "file", cfg.Dashboard.Store)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	yaml := `
server:
  port: 3100
upstream:
  score_url: http://score.test
  ledger_url: http://ledger.test
  timeout: 2s
engine:
  retry_attempts: 1
logger:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, 3100, cfg.Server.Port)
	assert.Equal(t, "http://score.test", cfg.Upstream.ScoreURL)
	assert.Equal(t, 2*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, uint(1), cfg.Engine.RetryAttempts)
	assert.Equal(t, "console", cfg.Logger.Format)
}

func TestLoadConfigAuthRequiresKey(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("AUTH_ENABLED", "true")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "public key")
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LoggerConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = NewLogger(LoggerConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "vitalpolicy:inflight:create:P1", GetInflightKey("create", "P1"))
	assert.Equal(t, "vitalpolicy:store:@health_score", GetStoreKey(StoreKeyHealthScore))
}

// chdir is the Go 1.21 equivalent of t.Chdir: it changes the working
// directory for the duration of the test and restores it on cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

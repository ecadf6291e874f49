package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scar/pkg/config"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, config.Default().Validate())
}

func TestLoadOverlaysDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scar.toml")
	body := `
coordinator_id = 1
servers = ["127.0.0.1:9000", "127.0.0.1:9001"]
threads = 8
protocol = "scar"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.CoordinatorID)
	assert.Equal(t, 8, cfg.Threads)
	assert.Equal(t, "scar", cfg.Protocol)
	// fields absent from the file keep Default's values.
	assert.Equal(t, 32, cfg.BatchFlushSize)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownProtocol(t *testing.T) {
	cfg := config.Default()
	cfg.Protocol = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadCoordinatorID(t *testing.T) {
	cfg := config.Default()
	cfg.CoordinatorID = 5
	assert.Error(t, cfg.Validate())
}

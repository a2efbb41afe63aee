package application

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/graphsnap-go/pkg/snapshot"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRunWithConfigFile(t *testing.T) {
	t.Setenv("GRAPHSNAP_CONFIG_FILE_PATH", "")
	path := writeConfig(t, `
snapshot:
  max_depth: 7
  field_tag: snap
logging:
  snapshot:
    level: debug
`)
	app := New("inspect", "--config", path)
	require.NoError(t, app.Run())

	cfg := app.SnapshotConfig()
	assert.Equal(t, 7, cfg.MaxDepth)
	assert.Equal(t, "snap", cfg.FieldTag)
	assert.Equal(t, snapshot.DefaultFallbackMaxLen, cfg.FallbackMaxLen)
	assert.NotNil(t, app.Logger("snapshot"))
	assert.NotNil(t, app.Logger("unknown"))
	assert.Equal(t, 7, app.Engine().Config().MaxDepth)
	assert.Equal(t, 3, app.Engine(snapshot.WithMaxDepth(3)).Config().MaxDepth)
}

func TestRunEnvOverride(t *testing.T) {
	path := writeConfig(t, "snapshot:\n  max_depth: 7\n")
	t.Setenv("GRAPHSNAP_CONFIG_FILE_PATH", path)
	t.Setenv("GRAPHSNAP_SNAPSHOT_MAX_DEPTH", "9")

	app := New("inspect")
	require.NoError(t, app.Run())
	assert.Equal(t, 9, app.SnapshotConfig().MaxDepth)
}

func TestRunWithoutConfigFile(t *testing.T) {
	t.Setenv("GRAPHSNAP_CONFIG_FILE_PATH", "")
	t.Chdir(t.TempDir())

	app := New("inspect")
	require.NoError(t, app.Run())
	assert.Equal(t, snapshot.DefaultConfig().MaxDepth, app.SnapshotConfig().MaxDepth)
}

func TestRunErrors(t *testing.T) {
	t.Setenv("GRAPHSNAP_CONFIG_FILE_PATH", "")

	assert.Error(t, New("--config").Run())
	assert.Error(t, New("--config="+filepath.Join(t.TempDir(), "absent.yaml")).Run())

	path := writeConfig(t, "snapshot:\n  max_depth: -1\n")
	assert.Error(t, New("--config", path).Run())
}

package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonasehrlich/ek-scraper/internal/config"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestCreateConfigWritesLoadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, execute(t, "create-config", path))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Searches)
}

func TestCreateConfigRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"searches": []}`), 0o644))

	err := execute(t, "create-config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestRunRequiresConfigArgument(t *testing.T) {
	assert.Error(t, execute(t, "run"))
}

func TestRunMissingConfigFile(t *testing.T) {
	err := execute(t, "run", filepath.Join(t.TempDir(), "nope.json"), "--temp-data-store")
	assert.Error(t, err)
}

func TestOpenStoreDefaultsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "store.json")
	cfg := &config.Config{DataStore: config.DataStoreConfig{Type: "file"}}

	st, err := openStore(context.Background(), cfg, path, false, newLogger())
	require.NoError(t, err)
	require.NoError(t, st.Close(context.Background()))

	// The parent directory is created eagerly so Close can persist.
	_, err = os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
}

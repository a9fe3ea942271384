package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json5"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	p := cfg.RetryPolicy()
	require.Equal(t, 3, p.MaxAttempts)
	require.Equal(t, 30*time.Second, p.RetryDelay)
	require.Equal(t, 3*time.Second, p.PoliteDelay)
	require.Equal(t, 3*time.Second, cfg.PageDelay())
}

func TestLoadMergesLocalOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{
		// shared settings
		query: "【開店】",
		output: { format: "ndjson" },
		fetch: { retry_delay: "10s" },
	}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{
		checkpoint: { driver: "sqlite", path: "history.db" },
		fetch: { retry_delay: "1s" },
	}`), 0644))

	cfg, err := Load(filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "【開店】", cfg.Query)
	require.Equal(t, "ndjson", cfg.Output.Format)
	require.Equal(t, "sqlite", cfg.Checkpoint.Driver)
	require.Equal(t, "history.db", cfg.Checkpoint.Path)
	require.Equal(t, time.Second, cfg.RetryPolicy().RetryDelay)
	// untouched fields keep their defaults
	require.Equal(t, Default().ListURL, cfg.ListURL)
	require.Equal(t, "3s", cfg.Fetch.PoliteDelay)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{fetch: {page_delay: "soon"}}`), 0644))
	_, err := Load(filepath.Join(dir, "config.json5"))
	require.ErrorContains(t, err, "fetch.page_delay")
}

func TestOutputPath(t *testing.T) {
	cfg := Default()
	now := time.Date(2024, 3, 9, 7, 5, 0, 0, time.Local)
	require.Equal(t, filepath.Join("output", "attack_list_202403090705.csv"), cfg.OutputPath(now))

	cfg.Output.File = "fixed.csv"
	require.Equal(t, "fixed.csv", cfg.OutputPath(now))
}

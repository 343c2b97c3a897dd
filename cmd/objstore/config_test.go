package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("root", "", "")
	cmd.Flags().Uint64("max-bucket-size", 0, "")
	cmd.Flags().String("kv-backend", "", "")
	cmd.Flags().Bool("fail-eio", false, "")
	cmd.Flags().String("metrics-addr", "", "")
	return cmd
}

func TestLoadConfigRequiresRoot(t *testing.T) {
	cmd := newTestCmd()
	_, _, err := loadConfig(cmd)
	require.Error(t, err)
}

func TestLoadConfigFlagsOnly(t *testing.T) {
	cmd := newTestCmd()
	require.NoError(t, cmd.Flags().Set("root", "/tmp/store"))
	require.NoError(t, cmd.Flags().Set("max-bucket-size", "64"))
	require.NoError(t, cmd.Flags().Set("kv-backend", "bbolt"))

	cfg, metricsAddr, err := loadConfig(cmd)
	require.NoError(t, err)
	require.Equal(t, "/tmp/store", cfg.Root)
	require.Equal(t, uint64(64), cfg.MaxBucketSize)
	require.Equal(t, "bbolt", cfg.KVBackend)
	require.Equal(t, "127.0.0.1:9090", metricsAddr)
}

func TestLoadConfigFileThenFlagOverride(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "objstore.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
root: /var/lib/objstore
max_bucket_size: 128
kv_backend: bbolt
metrics_addr: 0.0.0.0:9191
`), 0644))

	cmd := newTestCmd()
	require.NoError(t, cmd.Flags().Set("config", cfgPath))
	require.NoError(t, cmd.Flags().Set("max-bucket-size", "512"))

	cfg, metricsAddr, err := loadConfig(cmd)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/objstore", cfg.Root)
	require.Equal(t, uint64(512), cfg.MaxBucketSize)
	require.Equal(t, "0.0.0.0:9191", metricsAddr)
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/objstore/pkg/ostore"
	"github.com/cuemby/objstore/pkg/store"
)

// fileConfig mirrors store.Config for unattended/daemon use, loaded from
// the --config YAML file and then overridden by any flag the caller set
// explicitly.
type fileConfig struct {
	Root          string `yaml:"root"`
	MaxBucketSize uint64 `yaml:"max_bucket_size"`
	KVBackend     string `yaml:"kv_backend"`
	FailEIO       bool   `yaml:"fail_eio"`
	MetricsAddr   string `yaml:"metrics_addr"`
}

// loadConfig resolves a store.Config and a metrics listen address from
// the command's flags, merged over an optional --config YAML file. Flags
// take precedence over the file; the file takes precedence over the
// store's built-in defaults.
func loadConfig(cmd *cobra.Command) (store.Config, string, error) {
	fc := fileConfig{KVBackend: ostore.DefaultConfig().KVBackend, MetricsAddr: "127.0.0.1:9090"}

	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return store.Config{}, "", fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return store.Config{}, "", fmt.Errorf("parse config file: %w", err)
		}
	}

	if root, _ := cmd.Flags().GetString("root"); root != "" {
		fc.Root = root
	}
	if bucket, _ := cmd.Flags().GetUint64("max-bucket-size"); bucket != 0 {
		fc.MaxBucketSize = bucket
	}
	if backend, _ := cmd.Flags().GetString("kv-backend"); backend != "" {
		fc.KVBackend = backend
	}
	if failEIO, _ := cmd.Flags().GetBool("fail-eio"); failEIO {
		fc.FailEIO = failEIO
	}
	if f := cmd.Flags().Lookup("metrics-addr"); f != nil && f.Value.String() != "" {
		fc.MetricsAddr = f.Value.String()
	}

	if fc.Root == "" {
		return store.Config{}, "", fmt.Errorf("--root (or config file's root:) is required")
	}

	cfg := store.Config{
		Root: fc.Root,
		Config: ostore.Config{
			MaxBucketSize: fc.MaxBucketSize,
			KVBackend:     fc.KVBackend,
			FailEIO:       fc.FailEIO,
		},
	}
	return cfg, fc.MetricsAddr, nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/objstore/pkg/store"
)

var mkfsCmd = &cobra.Command{
	Use:   "mkfs",
	Short: "Format a new store at --root",
	Long: `Format a new store: create the root directory, write the fsid
file, lay out the fragments tree, and persist the superblock record.
Run once before the first mount.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := store.Mkfs(cfg); err != nil {
			return fmt.Errorf("mkfs: %w", err)
		}
		fmt.Printf("formatted store at %s\n", cfg.Root)
		return nil
	},
}

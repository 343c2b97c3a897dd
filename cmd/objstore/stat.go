package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/objstore/pkg/store"
)

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Print store-wide statistics (statfs-style)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		s, err := store.Mount(cfg)
		if err != nil {
			return fmt.Errorf("mount: %w", err)
		}
		defer s.Umount()

		stats, err := s.Stat()
		if err != nil {
			return fmt.Errorf("stat: %w", err)
		}
		fmt.Printf("collections:     %d\n", stats.Collections)
		fmt.Printf("onodes:          %d\n", stats.Onodes)
		fmt.Printf("fragments:       %d\n", stats.Fragments)
		fmt.Printf("fragment bytes:  %d\n", stats.FragmentBytes)
		fmt.Printf("wal pending:     %d\n", stats.WALPending)
		return nil
	},
}

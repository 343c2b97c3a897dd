package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/objstore/pkg/store"
)

var scanCmd = &cobra.Command{
	Use:   "scan COLLECTION",
	Short: "List the objects in a collection",
	Long: `Mount the store, list every object id in COLLECTION, and unmount.
An fsck-style consistency walk for the whole store is future work; this
covers the collection_list/collection_empty operations.`,
	Args: cobra.ExactArgs(1),
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

		cid := args[0]
		oids, err := s.CollectionList(cid)
		if err != nil {
			return fmt.Errorf("scan %s: %w", cid, err)
		}
		if len(oids) == 0 {
			fmt.Printf("collection %s is empty\n", cid)
			return nil
		}
		for _, o := range oids {
			size, _, err := s.StatObject(cid, o)
			if err != nil {
				fmt.Printf("%s  (stat failed: %v)\n", o, err)
				continue
			}
			fmt.Printf("%s  %d bytes\n", o, size)
		}
		return nil
	},
}

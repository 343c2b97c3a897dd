package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/objstore/pkg/store"
)

var healthzCmd = &cobra.Command{
	Use:   "healthz",
	Short: "Run every liveness checker once and exit non-zero if any fail",
	Long: `Mount the store, run the fsid-lock, kv, and fragment-root checkers
once each, print the result, and exit 1 if any is unhealthy. Intended
for a container exec-based liveness probe, as an alternative to polling
serve's HTTP /healthz endpoint.`,
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

		ctx := context.Background()
		healthy := true
		for _, c := range s.Checkers() {
			result := c.Check(ctx)
			status := "ok"
			if !result.Healthy {
				status = "FAIL: " + result.Message
				healthy = false
			}
			fmt.Printf("%-12s %s\n", c.Type(), status)
		}
		if !healthy {
			os.Exit(1)
		}
		return nil
	},
}

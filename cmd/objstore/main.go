package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/objstore/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "objstore",
	Short: "objstore - a BlueStore-style object storage engine",
	Long: `objstore stores objects as onode metadata in an embedded key-value
store plus fragment files on the local filesystem, with a
write-ahead log for crash-consistent in-place overwrites.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("objstore version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().String("root", "", "path to the store's root directory")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "output logs in JSON format")
	rootCmd.PersistentFlags().Uint64("max-bucket-size", 0, "fragments per fset bucket directory before rotation (0 uses the store default)")
	rootCmd.PersistentFlags().String("kv-backend", "", "kv engine backend (bbolt)")
	rootCmd.PersistentFlags().Bool("fail-eio", false, "fail_eio option (carried in the store config; Stat does not consult it)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(mkfsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(healthzCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

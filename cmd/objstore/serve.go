package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/objstore/pkg/health"
	"github.com/cuemby/objstore/pkg/log"
	"github.com/cuemby/objstore/pkg/metrics"
	"github.com/cuemby/objstore/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Mount the store and serve metrics and health endpoints until interrupted",
	Long: `Mount the store at --root, start the commit pipeline's background
goroutine (which also applies WAL entries), expose Prometheus metrics and a /healthz endpoint, and block
until interrupted. On SIGINT/SIGTERM it flushes every sequencer and
unmounts cleanly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, metricsAddr, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		s, err := store.Mount(cfg)
		if err != nil {
			return fmt.Errorf("mount: %w", err)
		}

		collector := metrics.NewCollector(s)
		collector.Start()

		runner := health.NewRunner(s.HealthChecker(), health.DefaultConfig())
		ctx, cancel := context.WithCancel(context.Background())
		runner.Start(ctx)

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			status := runner.Status()
			if !status.Healthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			fmt.Fprintf(w, "healthy=%t last_check=%s\n", status.Healthy, status.LastCheck)
		})

		srv := &http.Server{Addr: metricsAddr, Handler: mux}
		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()
		log.WithComponent("serve").Info().Str("root", cfg.Root).Str("metrics_addr", metricsAddr).Msg("store mounted")
		fmt.Printf("mounted %s, fsid %s\n", cfg.Root, s.FSID())
		fmt.Printf("metrics:  http://%s/metrics\n", metricsAddr)
		fmt.Printf("healthz:  http://%s/healthz\n", metricsAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("shutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
		}

		cancel()
		runner.Stop()
		collector.Stop()
		_ = srv.Shutdown(context.Background())

		if err := s.Umount(); err != nil {
			return fmt.Errorf("umount: %w", err)
		}
		fmt.Println("unmounted cleanly")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", "", "address to serve /metrics and /healthz on (overrides config file)")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sbm367/syft/internal/logging"
	"github.com/sbm367/syft/pkg/peer"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var peerCmd = &cobra.Command{
	Use:   "peer",
	Short: "Start a peer that mirrors connected clients",
	Long: `Starts the peer server. Clients connect to /ws; their tensors are mirrored
and exposed at /tensors, reported results at /results, and commands posted to
/commands are relayed to every connected client.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Peer.Addr, _ = cmd.Flags().GetString("addr")
		}
		if cmd.Flags().Changed("metrics") {
			cfg.Metrics.Enabled, _ = cmd.Flags().GetBool("metrics")
		}

		logger := logging.New(cfg.Verbose, os.Stderr)
		opts := []peer.Option{peer.WithLogger(logger)}
		if cfg.Metrics.Enabled {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			opts = append(opts, peer.WithMetrics(reg))
		}

		srv, err := peer.New(opts...)
		if err != nil {
			return err
		}

		httpSrv := &http.Server{
			Addr:              cfg.Peer.Addr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			fmt.Fprintf(cmd.OutOrStdout(), "Starting Syft peer on %s\n", httpSrv.Addr)
			serverErrors <- httpSrv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("peer server error: %w", err)

		case sig := <-shutdown:
			fmt.Fprintf(cmd.OutOrStdout(), "\nStart shutdown... Signal: %v\n", sig)

			// Hijacked WebSocket connections are not tracked by Shutdown.
			srv.Close()

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := httpSrv.Shutdown(ctx); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Graceful shutdown did not complete in %v: %v\n", shutdownTimeout, err)
				if err := httpSrv.Close(); err != nil {
					return fmt.Errorf("error killing server: %w", err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Syft peer stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(peerCmd)
	peerCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
	peerCmd.Flags().Bool("metrics", false, "Expose Prometheus metrics at /metrics")
}

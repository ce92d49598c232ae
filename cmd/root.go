// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/vizor/internal/config"
	"firestige.xyz/vizor/internal/log"
	"firestige.xyz/vizor/internal/metrics"
)

var (
	// Global flags
	configFile string

	// Transport overrides shared by send, receive and loopback
	localPort     int
	remoteAddress string
	remotePort    int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vizor",
	Short: "vizor - raw video frame streaming over UDP",
	Long: `vizor streams raw video frames from a producer to a remote consumer over UDP.

Each frame is compressed by a codec engine, split into checksummed fragments
that fit one datagram, and reassembled on the receiving side. Lost fragments
are not retransmitted: a frame that misses its reassembly deadline is dropped.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults only when empty)")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(receiveCmd)
	rootCmd.AddCommand(loopbackCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(validateCmd)
}

func addTransportFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&localPort, "local-port", 0, "local UDP port (overrides transport.local_port)")
	cmd.Flags().StringVar(&remoteAddress, "remote-address", "", "peer address (overrides transport.remote_address)")
	cmd.Flags().IntVar(&remotePort, "remote-port", 0, "peer UDP port (overrides transport.remote_port)")
}

// loadConfig loads the global config, applies changed transport flags and
// initialises logging.
func loadConfig(cmd *cobra.Command) (*config.GlobalConfig, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("local-port") {
		cfg.Transport.LocalPort = localPort
	}
	if flags.Changed("remote-address") {
		cfg.Transport.RemoteAddress = remoteAddress
	}
	if flags.Changed("remote-port") {
		cfg.Transport.RemotePort = remotePort
	}
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if err := log.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to init logging: %w", err)
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// startMetrics starts the metrics server when enabled. The returned
// function stops it.
func startMetrics(ctx context.Context, cfg config.MetricsConfig) (func(), error) {
	if !cfg.Enabled {
		return func() {}, nil
	}
	srv := metrics.NewServer(cfg.Listen, cfg.Path)
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	return func() {
		if err := srv.Stop(context.Background()); err != nil {
			slog.Warn("metrics server stop failed", "error", err)
		}
	}, nil
}

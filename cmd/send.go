package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"firestige.xyz/vizor/internal/config"
	"firestige.xyz/vizor/internal/stream"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Capture, encode and send frames to the peer",
	Long: `Run the send side of a stream until SIGINT or SIGTERM.

Frames are captured from the configured source at source.fps, encoded with
codec.name and sent as fragments to transport.remote_address:remote_port.

Examples:
  vizor send -c vizor.yml
  vizor send --remote-address 10.0.0.2 --remote-port 5004`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		return runSend(ctx, cfg)
	},
}

func init() {
	addTransportFlags(sendCmd)
}

func runSend(ctx context.Context, cfg *config.GlobalConfig) error {
	stopMetrics, err := startMetrics(ctx, cfg.Metrics)
	if err != nil {
		return err
	}
	defer stopMetrics()

	sender, err := stream.NewSender(cfg)
	if err != nil {
		return err
	}
	return sender.Run(ctx)
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"firestige.xyz/vizor/internal/config"
	"firestige.xyz/vizor/internal/core"
	"firestige.xyz/vizor/internal/stream"
)

var loopbackCmd = &cobra.Command{
	Use:   "loopback",
	Short: "Run a sender and a receiver against each other on localhost",
	Long: `Run both sides of a stream in one process over the loopback interface.

The receiver binds an ephemeral port on 127.0.0.1 and the sender streams to
it. Useful for checking a codec and fragment size before deploying.

Examples:
  vizor loopback --duration 5s
  vizor loopback -c vizor.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		if loopbackDuration > 0 {
			ctx, cancel = context.WithTimeout(ctx, loopbackDuration)
			defer cancel()
		}
		return runLoopback(ctx, cfg, os.Stdout)
	},
}

var loopbackDuration time.Duration

func init() {
	loopbackCmd.Flags().DurationVarP(&loopbackDuration, "duration", "d", 0, "stop after this long (0 runs until interrupted)")
}

func runLoopback(ctx context.Context, cfg *config.GlobalConfig, out io.Writer) error {
	stopMetrics, err := startMetrics(ctx, cfg.Metrics)
	if err != nil {
		return err
	}
	defer stopMetrics()

	local := *cfg
	local.Transport.LocalPort = 0
	local.Transport.RemoteAddress = "127.0.0.1"
	local.Transport.RemotePort = 0

	var pictures int
	receiver, err := stream.NewReceiver(&local, func(core.Planes) { pictures++ })
	if err != nil {
		return err
	}

	local.Transport.RemotePort = receiver.LocalAddr().(*net.UDPAddr).Port
	sender, err := stream.NewSender(&local)
	if err != nil {
		receiver.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return receiver.Run(gctx) })
	g.Go(func() error { return sender.Run(gctx) })
	if err := g.Wait(); err != nil {
		return err
	}

	ss, rs := sender.Stats(), receiver.Stats()
	fmt.Fprintf(out, "captured:   %d\n", ss.Captured)
	fmt.Fprintf(out, "sent:       %d frames, %d fragments\n", ss.Session.Frames, ss.Session.Fragments)
	fmt.Fprintf(out, "received:   %d datagrams\n", rs.Datagrams)
	fmt.Fprintf(out, "completed:  %d frames, %d expired\n", rs.Session.Reassembly.Completed, rs.Session.Reassembly.Expired)
	fmt.Fprintf(out, "pictures:   %d\n", pictures)
	return nil
}

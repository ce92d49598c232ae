package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"firestige.xyz/vizor/internal/config"
	"firestige.xyz/vizor/internal/core"
	"firestige.xyz/vizor/internal/session"
	"firestige.xyz/vizor/internal/stream"
)

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Receive, reassemble and decode frames from the peer",
	Long: `Run the receive side of a stream until SIGINT or SIGTERM.

Fragments from transport.remote_address are reassembled and decoded.
Receiver statistics are logged once per second. With --output every decoded
picture is appended to a raw NV12 file (Y plane then interleaved UV plane).

Examples:
  vizor receive --local-port 5004 --remote-address 10.0.0.1
  vizor receive -c vizor.yml --output frames.nv12`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		return runReceive(ctx, cfg, outputPath)
	},
}

var outputPath string

func init() {
	addTransportFlags(receiveCmd)
	receiveCmd.Flags().StringVarP(&outputPath, "output", "o", "", "append decoded NV12 pictures to this file")
}

func runReceive(ctx context.Context, cfg *config.GlobalConfig, output string) error {
	stopMetrics, err := startMetrics(ctx, cfg.Metrics)
	if err != nil {
		return err
	}
	defer stopMetrics()

	var handle session.HandleFunc
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w := bufio.NewWriter(f)
		defer w.Flush()
		handle = func(p core.Planes) {
			if err := writePlanes(w, p); err != nil {
				slog.Warn("write picture failed", "frame_id", p.FrameID, "error", err)
			}
		}
	}

	receiver, err := stream.NewReceiver(cfg, handle)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return receiver.Run(gctx) })
	g.Go(func() error {
		logReceiverStats(gctx, receiver, time.Second)
		return nil
	})
	return g.Wait()
}

func logReceiverStats(ctx context.Context, r *stream.Receiver, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := r.Stats()
			slog.Info("receiver stats",
				"session", r.SessionID(),
				"datagrams", s.Datagrams,
				"completed", s.Session.Reassembly.Completed,
				"expired", s.Session.Reassembly.Expired,
				"pictures", s.Session.Pictures,
				"groups", s.Session.Reassembly.Groups)
		}
	}
}

// writePlanes writes the visible rows of both planes, dropping stride padding.
func writePlanes(w io.Writer, p core.Planes) error {
	for row := 0; row < p.Height; row++ {
		off := row * p.StrideY
		if _, err := w.Write(p.Y[off : off+p.Width]); err != nil {
			return err
		}
	}
	for row := 0; row < p.Height/2; row++ {
		off := row * p.StrideUV
		if _, err := w.Write(p.UV[off : off+p.Width]); err != nil {
			return err
		}
	}
	return nil
}

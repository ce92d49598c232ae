package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/vizor/internal/config"
	"firestige.xyz/vizor/internal/inspect"
	"firestige.xyz/vizor/internal/reassembly"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.pcap>",
	Short: "Replay a pcap capture through the reassembler",
	Long: `Read a pcap capture of a vizor stream and report fragments, completed
frames, expired frames and anomalies as a receiver would have seen them.
The reassembly deadline and group limit come from the stream config.

Examples:
  vizor inspect capture.pcap --port 5004`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runInspect(args[0], inspectPort, cfg, os.Stdout)
	},
}

var inspectPort uint16

func init() {
	inspectCmd.Flags().Uint16VarP(&inspectPort, "port", "p", 0, "UDP port of the stream (0 matches all UDP)")
}

func runInspect(path string, port uint16, cfg *config.GlobalConfig, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	report, err := inspect.Inspect(f, inspect.Options{
		Port: port,
		Reassembly: reassembly.Config{
			Deadline:  cfg.Stream.Deadline(),
			MaxGroups: cfg.Stream.MaxGroups,
		},
	})
	if err != nil {
		return err
	}

	re := report.Reassembly
	fmt.Fprintf(out, "packets:      %d (%d udp, %d ip fragments)\n", report.Packets, report.UDP, report.IPFragments)
	fmt.Fprintf(out, "duration:     %s\n", report.Duration())
	fmt.Fprintf(out, "fragments:    %d (%d malformed)\n", report.Fragments, report.Malformed)
	fmt.Fprintf(out, "frames:       %d complete, %d bytes\n", report.Frames, report.FrameBytes)
	fmt.Fprintf(out, "expired:      %d (%d open at end)\n", re.Expired, report.Incomplete)
	fmt.Fprintf(out, "duplicates:   %d\n", re.Duplicates)
	fmt.Fprintf(out, "checksum:     %d\n", re.ChecksumFailures)
	fmt.Fprintf(out, "inconsistent: %d\n", re.InconsistentCounts)
	fmt.Fprintf(out, "stale:        %d\n", re.Stale)
	return nil
}

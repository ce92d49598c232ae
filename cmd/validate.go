package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/vizor/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and print the effective values",
	Long: `Load the configuration (file, VIZOR_* environment and defaults),
validate it and print the effective configuration as YAML.

Examples:
  vizor validate -c vizor.yml
  VIZOR_STREAM_DATA_LIMIT=1200 vizor validate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile, os.Stdout)
	},
}

func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}
	data, err := config.Dump(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "VALID")
	_, err = out.Write(data)
	return err
}

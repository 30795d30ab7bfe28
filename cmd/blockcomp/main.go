package main

import (
	"fmt"
	"os"

	"github.com/iamNilotpal/blockcomp/config"
	"github.com/iamNilotpal/blockcomp/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const version = "0.1.0"

var (
	configPath string
	logLevel   string
	jsonOutput bool
	force      bool
	split      bool
	rootCmd    *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:           "blockcomp",
		Short:         "Compress files into self-describing block streams",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	compressCmd := &cobra.Command{
		Use:   "compress <input> <output>",
		Short: "Split a file into blocks and compress them into a block stream",
		Args:  cobra.ExactArgs(2),
		RunE:  runCompress,
	}
	compressCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing output file")
	compressCmd.Flags().BoolVar(&split, "split", false, "Roll numbered parts at target_file_size")

	decompressCmd := &cobra.Command{
		Use:   "decompress <input>... <output>",
		Short: "Restore the original file from one or more block streams",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runDecompress,
	}
	decompressCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing output file")

	inspectCmd := &cobra.Command{
		Use:   "inspect <input>",
		Short: "Describe the header and blocks of a block stream",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
	inspectCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of text")

	optionsCmd := &cobra.Command{
		Use:   "options <string>",
		Short: "Parse compression options in either form and print the canonical form",
		Args:  cobra.ExactArgs(1),
		RunE:  runOptions,
	}
	optionsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print JSON instead of text")

	typesCmd := &cobra.Command{
		Use:   "types",
		Short: "List the compression types this build can read and write",
		Args:  cobra.NoArgs,
		RunE:  runTypes,
	}

	rootCmd.AddCommand(compressCmd, decompressCmd, inspectCmd, optionsCmd, typesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the config and builds the logger every command runs with.
func setup() (*config.Config, *zap.SugaredLogger, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(configPath); err != nil {
			return nil, nil, err
		}
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, logger.NewWithLevel("blockcomp", logger.ParseLevel(cfg.LogLevel)), nil
}

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pipedemux/internal/config"
	"pipedemux/internal/demux"
)

// Flags that are settings live in config and are read through viper.
var (
	workDir      string
	replayStream string
)

var rootCmd = &cobra.Command{
	Use:   "pipedemux [flags] [--] command [args...]",
	Short: "Run a command and show its stdout and stderr apart",
	Long: `pipedemux runs a command and reads its stdout and stderr as they arrive,
without threads, by waiting for whichever is readable. Every chunk is shown in
the colour of its stream (green stdout, red stderr), prefixed with the stream
name, or passed through untouched.

pipedemux exits with the exit status of the command. An interrupt or SIGTERM
is passed on to the command and its remaining output is still shown; a second
one kills it.

Settings are read from $PIPEDEMUX_CONFIG or ~/.config/pipedemux/config.toml,
then from PIPEDEMUX_* environment variables, then from flags.`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		signals := make(chan os.Signal, 2)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(signals)

		status, err := execute(cmd.Context(), cfg, workDir, args, ioStreams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}, signals)
		if err != nil {
			return err
		}
		if status.Code != 0 {
			return &exitCodeError{status: status}
		}
		return nil
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay [--stream NAME] FILE",
	Short: "Show a recorded output log",
	Long: `Show an output log written with --output-log through the selected mode,
or with --stream write the raw bytes of one stream.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open output log: %w", err)
		}
		defer func() { _ = f.Close() }()

		streams := ioStreams{Out: os.Stdout, Err: os.Stderr}
		out, err := newSink(cfg, streams)
		if err != nil {
			return err
		}
		return replay(f, replayStream, out, os.Stdout)
	},
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	setupLogging(os.Stderr, cfg.Verbose)
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().String("color", config.ColorAuto, "When to colour output: auto, always or never")
	rootCmd.PersistentFlags().String("mode", config.ModeColor, "How to show output: color, label or plain")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log every wait, read and stream removal to stderr")

	rootCmd.Flags().Bool("pty", false, "Run the command's stdout through a pseudo-terminal")
	rootCmd.Flags().String("output-log", "", "Also record all output to this file")
	rootCmd.Flags().Int("buffer-size", demux.DefaultBufferSize, "Maximum bytes per read")
	rootCmd.Flags().StringVarP(&workDir, "dir", "C", "", "Working directory for the command")
	// Everything after the command name belongs to the command.
	rootCmd.Flags().SetInterspersed(false)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	replayCmd.Flags().StringVar(&replayStream, "stream", "", "Write the raw bytes of this stream only")

	rootCmd.AddCommand(replayCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.status.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

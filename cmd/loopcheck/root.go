package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/speakeasy-api/loopguard/loopdetect"
	"github.com/spf13/cobra"
)

// errDetected makes the process exit with status 2 after a diagnostic was printed.
var errDetected = errors.New("infinite loop detected")

var (
	configPath string
	logLevel   string
	threshold  int
	timeout    time.Duration
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:           "loopcheck",
	Short:         "Find infinite loops in student programs",
	Long:          `loopcheck runs programs of a small JavaScript subset and explains loops and recursions that never end.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		decideColor(noColor)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errDetected) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, paint(CriticalStyle, "Error: ")+err.Error())
		os.Exit(1)
	}
}

// detectOptions assembles analysis options from the config file and flags.
// Flags win over the file.
func detectOptions(cmd *cobra.Command) (loopdetect.Options, error) {
	opts := loopdetect.DefaultOptions()
	if configPath != "" {
		var err error
		if opts, err = loopdetect.LoadOptions(configPath); err != nil {
			return opts, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("threshold") {
		opts.Threshold = threshold
	}
	if flags.Changed("timeout") {
		opts.Timeout = timeout
	}
	if flags.Changed("log-level") {
		opts.LogLevel = logLevel
	}
	opts.LogWriter = cmd.ErrOrStderr()
	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("invalid options: %w", err)
	}
	return opts, nil
}

func readSource(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML file with analysis options")
	pf.StringVar(&logLevel, "log-level", "warn", "Log level: error, warn, info, debug")
	pf.IntVar(&threshold, "threshold", 20, "Iterations before the first check")
	pf.DurationVar(&timeout, "timeout", 4*time.Second, "Analysis budget")
	pf.BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.RegisterFlagCompletionFunc("log-level", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"error", "warn", "info", "debug"}, cobra.ShellCompDirectiveNoFileComp
	})
}

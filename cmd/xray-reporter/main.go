package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zk/xray-reporter/internal/config"
	"github.com/zk/xray-reporter/internal/logger"
	"github.com/zk/xray-reporter/internal/orchestrator"
)

var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

// exitError carries the exit code a command wants the process to end with
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "xray-reporter",
		Short: "Turns WebdriverIO cucumber runs into Xray test execution imports",
		Long: `xray-reporter collects the suite and step events of a WebdriverIO run and
assembles one Xray import report per browser/capability signature.

Reports are written to the configured outputDir as WDIO.xray.json.<uuid>.json
and optionally uploaded to Xray and announced on Slack.

Configuration is read from xray-reporter.{yaml,json,toml}, a .env file and
XRAY_REPORTER_* environment variables.

Examples:
  xray-reporter run -- npx wdio run wdio.conf.js
  xray-reporter replay .xray-reporter/runs/<run-id>/ipc.jsonl`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	var configFile string
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default xray-reporter.{yaml,json,toml})")

	runCmd := &cobra.Command{
		Use:   "run [flags] -- <test command...>",
		Short: "Run a test command and report the events it emits",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return exitWith(runCore(args, configFile, cmd.OutOrStdout()))
		},
	}
	runCmd.Flags().SetInterspersed(false)

	replayCmd := &cobra.Command{
		Use:   "replay [flags] <events.jsonl>",
		Short: "Report a recorded event file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return exitWith(replayCore(args[0], configFile, cmd.OutOrStdout()))
		},
	}

	rootCmd.AddCommand(runCmd, replayCmd)
	return rootCmd
}

func exitWith(code int, err error) error {
	if code == 0 && err == nil {
		return nil
	}
	if code == 0 {
		code = 1
	}
	return &exitError{code: code, err: err}
}

// setup loads the configuration and opens the debug log
func setup(configFile string, command []string, out io.Writer) (*orchestrator.Orchestrator, func(), error) {
	settings, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return nil, nil, err
	}

	fileLogger, err := logger.NewFileLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create debug logger: %v\n", err)
		return nil, nil, err
	}
	closeLog := func() {
		if err := fileLogger.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close debug log: %v\n", err)
		}
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Command:  command,
		Settings: settings,
		Logger:   fileLogger,
		Out:      out,
	})
	if err != nil {
		closeLog()
		fmt.Fprintf(os.Stderr, "Failed to create orchestrator: %v\n", err)
		return nil, nil, err
	}
	return orch, closeLog, nil
}

// runCore contains the logic of the run command (testable)
func runCore(args []string, configFile string, out io.Writer) (int, error) {
	orch, closeLog, err := setup(configFile, args, out)
	if err != nil {
		return 1, err
	}
	defer closeLog()

	if err := orch.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Test execution failed: %v\n", err)
		return orch.GetExitCode(), err
	}
	return orch.GetExitCode(), nil
}

// replayCore contains the logic of the replay command (testable)
func replayCore(path, configFile string, out io.Writer) (int, error) {
	orch, closeLog, err := setup(configFile, nil, out)
	if err != nil {
		return 1, err
	}
	defer closeLog()

	if err := orch.Replay(path); err != nil {
		fmt.Fprintf(os.Stderr, "Replay failed: %v\n", err)
		return orch.GetExitCode(), err
	}
	return orch.GetExitCode(), nil
}

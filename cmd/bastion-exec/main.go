// bastion-exec — supervised subprocess execution engine.
//
// Runs a child command with full stream supervision: stdin forwarding,
// stdout/stderr capture and mirroring, helper-envelope redaction, byte
// budgets, and structured exit reporting (status, signal, coredump).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/SouthHost/the-bastion/internal/config"
	"github.com/SouthHost/the-bastion/internal/execute"
	"github.com/SouthHost/the-bastion/internal/helper"
	"github.com/SouthHost/the-bastion/internal/logging"
	"github.com/SouthHost/the-bastion/internal/result"
	"github.com/SouthHost/the-bastion/internal/taint"
)

var (
	version = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bastion-exec",
		Short: "Supervised subprocess execution engine",
		Long: `bastion-exec — run commands under stream supervision.

Launches a child command without shell interpretation, shuttles bytes
between the caller's standard streams and the child's, optionally
mirrors child output back to the terminal, enforces byte budgets, and
reports the child's exit (status, signal, coredump) together with the
captured output as a structured JSON result.`,
		Version: version,
	}

	var configPath string
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: search standard locations)")

	// --- run command ---
	var (
		runStdinStr     string
		runExpectsStdin bool
		runNoisyStdout  bool
		runNoisyStderr  bool
		runHelperMode   bool
		runBinary       bool
		runMustSucceed  bool
		runMaxStdout    uint64
		runSystem       bool
		runSimple       bool
	)

	runCmd := &cobra.Command{
		Use:   "run -- <command> [args...]",
		Short: "Run a command and print the structured result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Debug {
				os.Setenv(logging.DebugEnvVar, "1")
			}

			opts := execute.Options{
				Cmd:            args,
				StdinStr:       runStdinStr,
				ExpectsStdin:   runExpectsStdin,
				NoisyStdout:    runNoisyStdout,
				NoisyStderr:    runNoisyStderr,
				IsHelper:       runHelperMode,
				IsBinary:       runBinary,
				MustSucceed:    runMustSucceed,
				MaxStdoutBytes: runMaxStdout,
				System:         runSystem,
				TaintPolicy: taint.Policy{
					AllowNewlines: cfg.Taint.AllowNewlines,
					DenyShellMeta: cfg.Taint.DenyShellMeta,
				},
			}
			if opts.MaxStdoutBytes == 0 {
				opts.MaxStdoutBytes = cfg.MaxStdoutBytes
			}

			var res *result.Result
			if runSimple {
				res = execute.ExecuteSimple(opts)
			} else {
				res = execute.Execute(opts)
			}
			return printResult(res)
		},
	}

	runCmd.Flags().StringVar(&runStdinStr, "stdin-str", "", "Write this string to child stdin, then close it")
	runCmd.Flags().BoolVar(&runExpectsStdin, "expects-stdin", false, "Forward caller stdin to the child until EOF")
	runCmd.Flags().BoolVar(&runNoisyStdout, "noisy-stdout", false, "Mirror child stdout to the terminal")
	runCmd.Flags().BoolVar(&runNoisyStderr, "noisy-stderr", false, "Mirror child stderr to the terminal")
	runCmd.Flags().BoolVar(&runHelperMode, "helper", false, "Redact JSON_START/JSON_END envelopes from mirrored stdout")
	runCmd.Flags().BoolVar(&runBinary, "binary", false, "Binary mode: mirror both streams, capture nothing")
	runCmd.Flags().BoolVar(&runMustSucceed, "must-succeed", false, "Treat a non-zero exit as an error")
	runCmd.Flags().Uint64Var(&runMaxStdout, "max-stdout-bytes", 0, "Cap on captured stdout bytes (0 = unlimited)")
	runCmd.Flags().BoolVar(&runSystem, "system", false, "Run with inherited descriptors, no supervision")
	runCmd.Flags().BoolVar(&runSimple, "simple", false, "Merge stdout+stderr onto one pipe, bulk reads, no tee")

	// --- helper command ---
	var helperNoisy bool

	helperCmd := &cobra.Command{
		Use:   "helper -- <command> [args...]",
		Short: "Run a helper command and unwrap its envelope",
		Long: `Runs a helper command, extracts the last JSON_START/JSON_END envelope
from its captured stdout, and prints the unwrapped result. With
--noisy, the helper's human output is mirrored to the terminal with the
envelope redacted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := execute.Execute(execute.Options{
				Cmd:         args,
				IsHelper:    true,
				NoisyStdout: helperNoisy,
				NoisyStderr: helperNoisy,
			})
			if res.IsErr() {
				return printResult(res)
			}
			value, ok := res.Value.(*execute.ExecutionResult)
			if !ok {
				return fmt.Errorf("unexpected execution value type %T", res.Value)
			}
			return printResult(helper.Unwrap(helper.Extract(value.Stdout)))
		},
	}
	helperCmd.Flags().BoolVar(&helperNoisy, "noisy", false, "Mirror the helper's human output (envelope redacted)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(helperCmd)
	rootCmd.AddCommand(mcpCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// printResult writes the result record to stdout as JSON and maps error
// kinds to a non-zero process exit.
func printResult(res *result.Result) error {
	data, err := res.JSON()
	if err != nil {
		return err
	}
	fmt.Println(data)
	if res.IsErr() {
		os.Exit(1)
	}
	return nil
}

package execute

import (
	"fmt"
	"strings"

	"github.com/SouthHost/the-bastion/internal/logging"
	"github.com/SouthHost/the-bastion/internal/taint"
)

// readChunk is the buffer size for every child-pipe read. A single read
// may overshoot a byte cap by at most this much.
const readChunk = 65535

// Options configures one execution. The zero value (plus Cmd) runs the
// child with stdin left open and unwritten, captures stdout and stderr,
// and mirrors nothing.
type Options struct {
	// Cmd is the argument vector; Cmd[0] is the executable. No shell
	// interpretation is applied.
	Cmd []string

	// ExpectsStdin forwards caller stdin to the child until EOF on
	// either side. Ignored when StdinStr is set.
	ExpectsStdin bool

	// StdinStr is written to child stdin in one burst before stream
	// supervision starts; child stdin is then closed. Wins over
	// ExpectsStdin.
	StdinStr string

	// NoisyStdout and NoisyStderr mirror captured child output to the
	// caller's corresponding stream.
	NoisyStdout bool
	NoisyStderr bool

	// IsHelper redacts JSON_START/JSON_END envelopes from the mirrored
	// stdout stream. Capture is unaffected.
	IsHelper bool

	// IsBinary forces both noisy flags on and suppresses capture: the
	// caller gets byte counts and exit info only. Incompatible with
	// IsHelper.
	IsBinary bool

	// MustSucceed promotes a non-zero child exit from OK_NON_ZERO_EXIT
	// to ERR_NON_ZERO_EXIT.
	MustSucceed bool

	// MaxStdoutBytes force-closes every descriptor once the captured
	// stdout byte count reaches it. 0 means unlimited.
	MaxStdoutBytes uint64

	// System bypasses stream supervision entirely: the child runs with
	// inherited descriptors and is waited for synchronously.
	System bool

	// TaintPolicy screens the argument vector. The zero policy checks
	// control bytes and UTF-8 validity only.
	TaintPolicy taint.Policy
}

// validate rejects option combinations the engine refuses to run with.
func (o *Options) validate() error {
	if len(o.Cmd) == 0 {
		return fmt.Errorf("no command given")
	}
	if o.IsHelper && o.IsBinary {
		return fmt.Errorf("is_helper and is_binary are mutually exclusive")
	}
	return nil
}

// normalize applies the flag implications: IsBinary and the debug
// environment variable force noisy mirroring on.
func (o *Options) normalize() {
	if o.IsBinary || logging.DebugEnabled() {
		o.NoisyStdout = true
		o.NoisyStderr = true
	}
}

// ByteCounts records the bytes observed on each stream.
type ByteCounts struct {
	Stdin  uint64 `json:"stdin"`
	Stdout uint64 `json:"stdout"`
	Stderr uint64 `json:"stderr"`
}

// ExecutionResult is the value record attached to an execution's Result.
type ExecutionResult struct {
	// Sysret is the child's exit code after shifting off the signal
	// byte of the raw wait status.
	Sysret int `json:"sysret"`
	// SysretRaw is the raw wait status.
	SysretRaw int `json:"sysret_raw"`
	// Status is the numeric exit code, nil when killed by a signal.
	Status *int `json:"status,omitempty"`
	// Signal is the symbolic signal name, empty on normal exit.
	Signal string `json:"signal,omitempty"`
	// Coredump reports whether the child dumped core.
	Coredump bool `json:"coredump"`
	// Stdout and Stderr hold the captured output split on the line
	// terminator. Nil when capture is suppressed (IsBinary) or when the
	// simple executor ran.
	Stdout []string `json:"stdout,omitempty"`
	Stderr []string `json:"stderr,omitempty"`
	// Output is the merged stdout+stderr capture of the simple
	// executor.
	Output []byte `json:"output,omitempty"`
	// Bytesnb counts the bytes observed per stream.
	Bytesnb ByteCounts `json:"bytesnb"`
}

// splitLines partitions captured bytes on the line terminator. A single
// trailing terminator is absorbed so that joining the lines with the
// terminator (plus the optional trailing one) reproduces the capture
// byte-for-byte.
func splitLines(b []byte) []string {
	if len(b) == 0 {
		return []string{}
	}
	s := strings.TrimSuffix(string(b), "\n")
	return strings.Split(s, "\n")
}

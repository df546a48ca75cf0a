// Package execute is the subprocess execution engine. It launches a child
// command, shuttles bytes between the caller's standard streams and the
// child's, optionally mirrors child output back to the caller's terminal,
// enforces byte budgets, and returns a structured result describing the
// child's exit together with captured output.
package execute

import (
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SouthHost/the-bastion/internal/logging"
	"github.com/SouthHost/the-bastion/internal/result"
)

// Indirection over the warning sink so tests can capture taint
// diagnostics.
var warnSyslog = logging.WarnSyslog

// Execute runs a child under full stream supervision: three pipes, caller
// stdin forwarding, mirroring with envelope redaction, and byte caps.
// Engine-level failures are reported through the result's kind, never as
// a Go error; the caller always gets a Result.
func Execute(opts Options) *result.Result {
	opts.normalize()
	if err := opts.validate(); err != nil {
		return result.R(result.KindErrInvalidParameter, nil, err.Error())
	}
	warnTainted(&opts)
	logging.DebugDump("execute options", opts)

	if opts.System {
		return executeSystem(&opts)
	}
	return executeSupervised(&opts)
}

// warnTainted screens the argument vector. Tainted tokens are warned
// about but the spawn still proceeds; it is expected to fail on its own.
func warnTainted(opts *Options) {
	for _, err := range opts.TaintPolicy.CheckArgs(opts.Cmd) {
		warnSyslog("tainted command argument", zap.Error(err))
	}
}

// executeSystem is the fire-and-wait path: the child inherits the
// caller's descriptors and no capture or accounting is performed.
func executeSystem(opts *Options) *result.Result {
	cmd := exec.Command(opts.Cmd[0], opts.Cmd[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return result.R(result.KindErrExecFailed, nil, "unable to spawn command: "+err.Error())
	}
	waitErr := cmd.Wait()
	wi := decodeProcessState(cmd, waitErr)
	return buildResult(opts, wi, &ExecutionResult{})
}

// execution holds the per-call state shared between the stream
// supervisors of one supervised run.
type execution struct {
	opts *Options
	log  *zap.Logger
	rl   *rateLimitedLog

	mu     sync.Mutex
	stdout bytes.Buffer
	stderr bytes.Buffer
	counts ByteCounts

	// Mirror flags, owned by their stream's supervisor after start.
	noisyStdout bool
	noisyStderr bool

	filter envelopeFilter

	shutdownOnce sync.Once
	shutdown     func()
}

func executeSupervised(opts *Options) *result.Result {
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return result.R(result.KindErrExecFailed, nil, "pipe: "+err.Error())
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW)
		return result.R(result.KindErrExecFailed, nil, "pipe: "+err.Error())
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW)
		return result.R(result.KindErrExecFailed, nil, "pipe: "+err.Error())
	}

	cmd := exec.Command(opts.Cmd[0], opts.Cmd[1:]...)
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		closeAll(stdinR, stdinW, stdoutR, stdoutW, stderrR, stderrW)
		return result.R(result.KindErrExecFailed, nil, "unable to spawn command: "+err.Error())
	}

	// Child-side ends now belong to the child.
	closeAll(stdinR, stdoutW, stderrW)

	log := logging.L().With(
		zap.String("exec_id", uuid.NewString()[:8]),
		zap.String("cmd", opts.Cmd[0]))
	e := &execution{
		opts:        opts,
		log:         log,
		rl:          newRateLimitedLog(log),
		noisyStdout: opts.NoisyStdout,
		noisyStderr: opts.NoisyStderr,
	}
	e.shutdown = func() {
		e.shutdownOnce.Do(func() {
			closeAll(stdoutR, stderrR, stdinW)
			if opts.ExpectsStdin && opts.StdinStr == "" {
				os.Stdin.Close()
			}
		})
	}
	e.log.Debug("child started", zap.Int("pid", cmd.Process.Pid))

	forwardStdin := false
	switch {
	case opts.StdinStr != "":
		// One burst, then the child sees EOF on its stdin.
		if writeResilient(stdinW, []byte(opts.StdinStr)) == writeOK {
			e.counts.Stdin = uint64(len(opts.StdinStr))
		} else {
			e.rl.info("short write on child stdin")
		}
		stdinW.Close()
	case opts.ExpectsStdin:
		forwardStdin = true
	default:
		// Child stdin stays open but unwritten; the child may ignore it.
	}

	if forwardStdin {
		// Not part of the supervision group: caller stdin alone must
		// never keep the call alive.
		go e.forwardStdin(os.Stdin, stdinW)
	}

	g := new(errgroup.Group)
	g.Go(func() error {
		e.superviseStdout(stdoutR)
		return nil
	})
	g.Go(func() error {
		e.superviseStderr(stderrR)
		return nil
	})
	_ = g.Wait()

	closeAll(stdoutR, stderrR)
	if !forwardStdin && opts.StdinStr == "" {
		stdinW.Close()
	}

	waitErr := cmd.Wait()
	wi := decodeProcessState(cmd, waitErr)
	e.log.Debug("child reaped", zap.String("exit", wi.Msg))

	e.mu.Lock()
	value := &ExecutionResult{Bytesnb: e.counts}
	if !opts.IsBinary {
		value.Stdout = splitLines(e.stdout.Bytes())
		value.Stderr = splitLines(e.stderr.Bytes())
	}
	e.mu.Unlock()

	return buildResult(opts, wi, value)
}

// superviseStdout drains child stdout: accounting, capture, mirroring
// (through the envelope filter for helpers), and the byte cap.
func (e *execution) superviseStdout(r *os.File) {
	buf := make([]byte, readChunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			e.handleStdout(buf[:n])
		}
		if err != nil {
			if !streamEnded(err) {
				e.rl.info("read error on child stdout", zap.Error(err))
			}
			return
		}
	}
}

func (e *execution) handleStdout(p []byte) {
	e.mu.Lock()
	e.counts.Stdout += uint64(len(p))
	if !e.opts.IsBinary {
		e.stdout.Write(p)
	}
	capReached := e.opts.MaxStdoutBytes > 0 && e.counts.Stdout >= e.opts.MaxStdoutBytes
	e.mu.Unlock()

	if e.noisyStdout {
		out := p
		if e.opts.IsHelper {
			out = e.filter.Feed(p)
			out = append(out, e.filter.FlushPartial()...)
		}
		if len(out) > 0 {
			e.mirror(os.Stdout, out, "stdout", &e.noisyStdout)
		}
	}

	if capReached {
		e.rl.info("stdout byte cap reached, closing descriptors",
			zap.Uint64("cap", e.opts.MaxStdoutBytes))
		e.shutdown()
	}
}

func (e *execution) superviseStderr(r *os.File) {
	buf := make([]byte, readChunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			e.handleStderr(buf[:n])
		}
		if err != nil {
			if !streamEnded(err) {
				e.rl.info("read error on child stderr", zap.Error(err))
			}
			return
		}
	}
}

func (e *execution) handleStderr(p []byte) {
	e.mu.Lock()
	e.counts.Stderr += uint64(len(p))
	if !e.opts.IsBinary {
		e.stderr.Write(p)
	}
	e.mu.Unlock()

	if e.noisyStderr {
		e.mirror(os.Stderr, p, "stderr", &e.noisyStderr)
	}
}

// mirror writes p to the caller's stream through the resilient writer.
// A permanently failed target disables mirroring for that stream; capture
// continues unaffected.
func (e *execution) mirror(dst *os.File, p []byte, stream string, enabled *bool) {
	switch writeResilient(dst, p) {
	case writeTargetGone:
		*enabled = false
		e.rl.info("mirror descriptor closed, disabling mirroring", zap.String("stream", stream))
	case writeAborted:
		e.rl.info("mirror write aborted, will retry next cycle", zap.String("stream", stream))
	case writeOK:
	}
}

// forwardStdin shuttles caller stdin to child stdin until EOF on either
// side. EOF (or error) on caller stdin closes child stdin.
func (e *execution) forwardStdin(src, dst *os.File) {
	defer dst.Close()
	buf := make([]byte, readChunk)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			e.mu.Lock()
			e.counts.Stdin += uint64(n)
			e.mu.Unlock()
			if writeResilient(dst, buf[:n]) != writeOK {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// streamEnded reports whether a read error is a plain end-of-stream:
// EOF from the child closing its end, or our own force-close on cap.
func streamEnded(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EBADF)
}

// decodeProcessState extracts and decodes the raw wait status of a
// finished command.
func decodeProcessState(cmd *exec.Cmd, waitErr error) WaitInfo {
	raw := -1
	if ps := cmd.ProcessState; ps != nil {
		if ws, ok := ps.Sys().(syscall.WaitStatus); ok {
			raw = int(ws)
		}
	}
	errText := ""
	if raw == -1 && waitErr != nil {
		errText = waitErr.Error()
	}
	return DecodeWait(raw, errText)
}

// buildResult assembles the final Result from decoded exit info and the
// per-stream value record. Kind selection: exit 0 is OK, a non-zero exit
// is OK_NON_ZERO_EXIT unless MustSucceed promotes it, and a signalled
// child stays OK with the signal carried in the value.
func buildResult(opts *Options, wi WaitInfo, value *ExecutionResult) *result.Result {
	value.Sysret = wi.Sysret
	value.SysretRaw = wi.Raw
	value.Status = wi.Status
	value.Signal = wi.Signal
	value.Coredump = wi.Core

	kind := result.KindOK
	if wi.Status != nil && *wi.Status != 0 {
		kind = result.KindOKNonZeroExit
		if opts.MustSucceed {
			kind = result.KindErrNonZeroExit
		}
	}
	return result.R(kind, value, wi.Msg)
}

// closeAll closes every non-nil file, ignoring errors. Used on teardown
// and on early-return paths so no descriptor outlives the call.
func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}

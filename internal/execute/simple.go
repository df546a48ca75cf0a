package execute

import (
	"bytes"
	"os"
	"os/exec"

	"go.uber.org/zap"

	"github.com/SouthHost/the-bastion/internal/result"
)

// ExecuteSimple runs a child with stdout and stderr merged onto a single
// pipe and drains it into one buffer with bulk reads. No tee, no stdin
// forwarding, no caps: this path exists for callers that only want the
// merged output and the exit info, cheaply.
func ExecuteSimple(opts Options) *result.Result {
	opts.normalize()
	if err := opts.validate(); err != nil {
		return result.R(result.KindErrInvalidParameter, nil, err.Error())
	}
	warnTainted(&opts)

	outR, outW, err := os.Pipe()
	if err != nil {
		return result.R(result.KindErrExecFailed, nil, "pipe: "+err.Error())
	}

	cmd := exec.Command(opts.Cmd[0], opts.Cmd[1:]...)
	// Stdin nil means the child sees a closed/empty stdin immediately.
	cmd.Stdout = outW
	cmd.Stderr = outW

	if err := cmd.Start(); err != nil {
		closeAll(outR, outW)
		return result.R(result.KindErrExecFailed, nil, "unable to spawn command: "+err.Error())
	}
	outW.Close()

	var output bytes.Buffer
	buf := make([]byte, readChunk)
	for {
		n, err := outR.Read(buf)
		if n > 0 {
			output.Write(buf[:n])
		}
		if err != nil {
			if !streamEnded(err) {
				warnSyslog("read error on merged output pipe", zap.Error(err))
			}
			break
		}
	}
	outR.Close()

	waitErr := cmd.Wait()
	wi := decodeProcessState(cmd, waitErr)

	value := &ExecutionResult{
		Output:  output.Bytes(),
		Bytesnb: ByteCounts{Stdout: uint64(output.Len())},
	}
	return buildResult(&opts, wi, value)
}

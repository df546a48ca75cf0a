package execute

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Raw wait-status layout (conventional waitpid encoding): low 7 bits are
// the terminating signal, bit 7 is the core-dump flag, the upper byte is
// the exit code.
const (
	waitSignalMask = 0x7f
	waitCoreFlag   = 0x80
)

// signalNames maps signal numbers to their symbolic names (e.g. 9 ->
// "SIGKILL"). Built once at startup from the host's signal table.
var signalNames = buildSignalTable()

func buildSignalTable() map[int]string {
	names := make(map[int]string)
	for n := 1; n < 64; n++ {
		name := unix.SignalName(syscall.Signal(n))
		if name == "" {
			continue
		}
		names[n] = name
	}
	return names
}

// SignalName returns the symbolic name for a signal number, falling back
// to the decimal value for numbers the host does not name.
func SignalName(n int) string {
	if name, ok := signalNames[n]; ok {
		return name
	}
	return fmt.Sprintf("%d", n)
}

// WaitInfo is the decoded form of a raw wait status.
type WaitInfo struct {
	Raw    int    // raw wait status as returned by waitpid
	Sysret int    // exit code after shifting off the signal byte
	Status *int   // exit code; nil when the child was signalled
	Signal string // symbolic signal name; empty on normal exit
	Core   bool   // core-dump flag
	Msg    string // human description
}

// DecodeWait maps a raw wait status into a WaitInfo. A raw value of -1
// means the wait itself failed; errText carries the errno text for the
// message in that case.
func DecodeWait(raw int, errText string) WaitInfo {
	wi := WaitInfo{Raw: raw, Sysret: raw >> 8}

	if raw == -1 {
		wi.Sysret = 0
		wi.Msg = fmt.Sprintf("error: failed to execute (%s)", errText)
		return wi
	}

	if sig := raw & waitSignalMask; sig != 0 {
		wi.Signal = SignalName(sig)
		wi.Core = raw&waitCoreFlag != 0
		wi.Msg = fmt.Sprintf("signal %d (%s)", sig, wi.Signal)
		if wi.Core {
			wi.Msg += " and coredump"
		}
		return wi
	}

	status := raw >> 8
	wi.Status = &status
	wi.Msg = fmt.Sprintf("status %d", status)
	return wi
}

package execute

import (
	"errors"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// writeChunk bounds the size of each individual write issued by the
// resilient writer.
const writeChunk = 4096

// logBudget caps the diagnostics emitted per execute call, shared across
// all streams, so a pathological descriptor cannot flood the logs.
const logBudget = 5

// rateLimitedLog emits at most logBudget messages over its lifetime. The
// budget is per call and shared across streams.
type rateLimitedLog struct {
	log *zap.Logger

	mu        sync.Mutex
	remaining int
}

func newRateLimitedLog(log *zap.Logger) *rateLimitedLog {
	return &rateLimitedLog{log: log, remaining: logBudget}
}

func (l *rateLimitedLog) info(msg string, fields ...zap.Field) {
	l.mu.Lock()
	if l.remaining <= 0 {
		l.mu.Unlock()
		return
	}
	l.remaining--
	l.mu.Unlock()
	l.log.Info(msg, fields...)
}

// writeOutcome classifies a resilient-write failure.
type writeOutcome int

const (
	writeOK writeOutcome = iota
	// writeAborted: the target is still open but this cycle failed;
	// the next cycle may resume.
	writeAborted
	// writeTargetGone: the target descriptor is closed; the stream
	// must be permanently disabled.
	writeTargetGone
)

// writeResilient writes buf to f in bounded chunks until done or failure.
// EPIPE and EBADF mean the descriptor is gone for good (the receiving end
// closed, or the fd was closed under us); any other error aborts only the
// current cycle.
func writeResilient(f *os.File, buf []byte) writeOutcome {
	for len(buf) > 0 {
		n := len(buf)
		if n > writeChunk {
			n = writeChunk
		}
		written, err := f.Write(buf[:n])
		buf = buf[written:]
		if err == nil {
			continue
		}
		if targetGone(err) {
			return writeTargetGone
		}
		return writeAborted
	}
	return writeOK
}

// targetGone reports whether a write error indicates the descriptor is
// permanently unusable.
func targetGone(err error) bool {
	return errors.Is(err, unix.EPIPE) ||
		errors.Is(err, unix.EBADF) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}

// Package logging provides the engine's syslog-style sinks. Engine
// diagnostics go through the process-wide logger L(), either directly or
// via the InfoSyslog/WarnSyslog sinks; Debug output is gated on the
// BASTION_DEBUG environment variable.
package logging

import (
	"os"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DebugEnvVar enables debug logging and forces noisy mirroring in the
// executor when set to a non-empty value.
const DebugEnvVar = "BASTION_DEBUG"

var (
	logger   *zap.Logger
	initOnce sync.Once
)

// L returns the process-wide logger, building it on first use. Output goes
// to stderr so it never mixes with mirrored child stdout.
func L() *zap.Logger {
	initOnce.Do(func() {
		logger = newLogger(DebugEnabled())
	})
	return logger
}

func newLogger(debug bool) *zap.Logger {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		// zap's production config cannot fail to build with these
		// settings; fall back to a no-op logger rather than crash.
		return zap.NewNop()
	}
	return l
}

// SetLogger replaces the process-wide logger. Intended for tests.
func SetLogger(l *zap.Logger) {
	initOnce.Do(func() {})
	logger = l
}

// DebugEnabled reports whether BASTION_DEBUG is set.
func DebugEnabled() bool {
	return os.Getenv(DebugEnvVar) != ""
}

// InfoSyslog records an operational event.
func InfoSyslog(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

// WarnSyslog records a recoverable anomaly.
func WarnSyslog(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

// Debug records developer diagnostics. No-op unless BASTION_DEBUG is set.
func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

// DebugDump logs a full structural dump of v under the given label.
// No-op unless BASTION_DEBUG is set.
func DebugDump(label string, v interface{}) {
	if !DebugEnabled() {
		return
	}
	L().Debug(label, zap.String("dump", spew.Sdump(v)))
}

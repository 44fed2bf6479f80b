// Package observability provides logging for the gostratus CLI.
//
// Commands log through the package-level CLILogger. It starts as a no-op
// logger so library code and tests never trip over a nil logger, and is
// replaced during command startup once the logging profile is known.
package observability

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the shared logger for command output and diagnostics.
// It writes to stderr so structured records on stdout stay parseable.
var CLILogger = zap.NewNop()

// InitCLILogger replaces CLILogger with a real logger.
//
// level accepts the usual zap level names (debug, info, warn, error);
// anything unrecognized falls back to info. When jsonOutput is true the
// logger emits one JSON object per line, otherwise a plain console form
// suitable for humans.
func InitCLILogger(level string, jsonOutput bool) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	var encoder zapcore.Encoder
	if jsonOutput {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		// CLI output reads better without timestamps and caller noise.
		cfg.TimeKey = ""
		cfg.CallerKey = ""
		cfg.LevelKey = ""
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), lvl)
	CLILogger = zap.New(core)
}

// Sync flushes any buffered log entries. Called on command exit; errors
// from syncing stderr are not actionable and are ignored by callers.
func Sync() error {
	return CLILogger.Sync()
}

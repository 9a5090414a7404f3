// Package debug provides opt-in diagnostic logging for the hooks.
//
// Output is off unless KWSUB_DEBUG is set or Enable is called (the CLI does
// so for --verbose). Hooks run inside git, so everything goes to stderr and
// nothing is ever written to stdout.
package debug

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = newLogger(os.Getenv("KWSUB_DEBUG") != "")
)

func newLogger(enabled bool) *zap.SugaredLogger {
	if !enabled {
		return zap.NewNop().Sugar()
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encCfg.TimeKey = ""
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		zapcore.DebugLevel,
	)
	return zap.New(core).Sugar()
}

// Enable turns debug output on or off for the rest of the process.
func Enable(on bool) {
	mu.Lock()
	defer mu.Unlock()
	_ = logger.Sync()
	logger = newLogger(on)
}

// Enabled reports whether debug output is on.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return logger.Desugar().Core().Enabled(zapcore.DebugLevel)
}

// Logf logs a formatted debug message.
func Logf(format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	logger.Debugf(format, args...)
}

// Sync flushes buffered output.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = logger.Sync()
}

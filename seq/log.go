package seq

import "go.uber.org/zap"

// The package logger is silent by default. The debug flag additionally
// turns programming-invariant violations into panics; cursors capture the
// debug flag at construction time so tests can exercise the panic paths
// deterministically.
var (
	logger = zap.NewNop()
	debug  = false
)

// SetLogger installs the logger used for diagnostics. Passing nil restores
// the silent default.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// SetDebug toggles debug mode. In debug mode invariant violations panic
// instead of being dropped.
func SetDebug(on bool) {
	debug = on
}

func panicf(msg string, fields ...zap.Field) {
	logger.Error(msg, fields...)
	if debug {
		panic("seq: " + msg)
	}
}

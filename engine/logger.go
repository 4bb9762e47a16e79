package engine

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// Logger returns the engine package's logger. It is a no-op logger until
// SetLogger installs another.
func Logger() *zap.Logger {
	return logger.Load()
}

// SetLogger replaces the engine package's logger. It is safe to call at any
// time; components that already hold a derived logger keep it.
// A nil l restores the no-op logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

package audit

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/onnwee/portal/internal/archive"
)

// ErrCallerMisuse is returned when the logging functions are reached from a
// context that must never hold archive credentials, a browser (js/wasm)
// build, or through a Logger that has no archiver.
var ErrCallerMisuse = errors.New("audit: logging invoked outside the server process")

var defaultLogger atomic.Pointer[Logger]

// fallbackLogger serves the package-level functions until SetDefault is
// called. Its client has no store configuration, so every record goes to
// stdout.
var fallbackLogger = sync.OnceValue(func() *Logger {
	client, err := archive.NewClient(archive.Config{})
	if err != nil {
		return nil
	}
	return NewLogger(client)
})

// SetDefault installs l as the process-wide logger used by the package-level
// LogAccess and LogAudit functions. A nil l restores the fallback logger.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

// Default returns the logger installed by SetDefault or, when none is, a
// fallback-only logger built on first use.
func Default() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	return fallbackLogger()
}

func checkCaller(l *Logger) error {
	if browserRuntime || l == nil || l.archiver == nil {
		return ErrCallerMisuse
	}
	return nil
}

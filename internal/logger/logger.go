package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

const (
	// rollThresholdKB is the size at which the log file is rolled.
	rollThresholdKB = 10 * 1024
	maxRolls        = 3
)

var (
	logRotator *rotator.Rotator
	backend    = btclog.NewBackend(logWriter{})

	// MainLogger is the MAIN subsystem logger used by Info and Error.
	MainLogger = btclog.Disabled
)

// logWriter writes to standard error and, once Init has been called, the
// log rotator.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	if logRotator == nil {
		return os.Stderr.Write(p)
	}
	os.Stderr.Write(p)
	return logRotator.Write(p)
}

// Init creates the log directory and rotator for logFilePath and sets the
// level of the MAIN logger. Subsystem loggers created with Logger afterwards
// share the same output.
func Init(logFilePath string, level string) error {
	if logFilePath != "" {
		dir := filepath.Dir(logFilePath)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		r, err := rotator.New(logFilePath, rollThresholdKB, false, maxRolls)
		if err != nil {
			return fmt.Errorf("failed to create log rotator: %w", err)
		}
		logRotator = r
	}

	MainLogger = Logger("MAIN", level)
	return nil
}

// Logger returns a subsystem logger writing to the shared backend at the
// given level. Unknown levels fall back to info.
func Logger(subsystem string, level string) btclog.Logger {
	l := backend.Logger(subsystem)
	lvl, ok := btclog.LevelFromString(strings.ToLower(level))
	if !ok {
		lvl = btclog.LevelInfo
	}
	l.SetLevel(lvl)
	return l
}

// Cleanup closes the log rotator when the application is done using it
func Cleanup() {
	if logRotator != nil {
		logRotator.Close()
		logRotator = nil
	}
}

// Info logs an informational message
func Info(v ...interface{}) {
	MainLogger.Info(v...)
}

// Error logs an error message
func Error(v ...interface{}) {
	MainLogger.Error(v...)
}

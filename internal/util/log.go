package util

import (
	"fmt"
	"os"
	"strings"

	"github.com/pterm/pterm"
)

// LogLevelEnv overrides the log level when set (debug, info, warn, error).
const LogLevelEnv = "FRAMEWIRE_LOG_LEVEL"

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
	// stdout carries chat output.
	pterm.DefaultLogger.Writer = os.Stderr
}

// logf formats only when the level is enabled; stream debug lines sit on
// the frame path.
func logf(level pterm.LogLevel, format string, args []any) {
	l := &pterm.DefaultLogger
	if !l.CanPrint(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	switch level {
	case pterm.LogLevelDebug:
		l.Debug(msg)
	case pterm.LogLevelWarn:
		l.Warn(msg)
	case pterm.LogLevelError:
		l.Error(msg)
	default:
		l.Info(msg)
	}
}

func LogDebug(format string, args ...any)   { logf(pterm.LogLevelDebug, format, args) }
func LogInfo(format string, args ...any)    { logf(pterm.LogLevelInfo, format, args) }
func LogWarning(format string, args ...any) { logf(pterm.LogLevelWarn, format, args) }
func LogError(format string, args ...any)   { logf(pterm.LogLevelError, format, args) }

// LogSuccess logs at info level with a check mark.
func LogSuccess(format string, args ...any) {
	logf(pterm.LogLevelInfo, "✓ "+format, args)
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// ParseLevel maps a level name to a pterm level.
func ParseLevel(name string) (pterm.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return pterm.LogLevelDebug, nil
	case "info", "":
		return pterm.LogLevelInfo, nil
	case "warn", "warning":
		return pterm.LogLevelWarn, nil
	case "error":
		return pterm.LogLevelError, nil
	}
	return pterm.LogLevelInfo, fmt.Errorf("unknown log level %q", name)
}

// ConfigureFromEnv applies LogLevelEnv if it is set. An unknown value is
// reported and ignored.
func ConfigureFromEnv() {
	v, ok := os.LookupEnv(LogLevelEnv)
	if !ok {
		return
	}
	level, err := ParseLevel(v)
	if err != nil {
		LogWarning("%s: %v", LogLevelEnv, err)
		return
	}
	pterm.DefaultLogger.Level = level
}

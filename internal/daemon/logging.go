package daemon

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

func init() {
	// Default logging to discard until explicitly enabled via settings
	logrus.SetOutput(io.Discard)
}

// ParseLogLevel converts a settings log level (case insensitive) to a logrus
// level. enabled is false for "" and "none".
func ParseLogLevel(level string) (lvl logrus.Level, enabled bool, err error) {
	switch strings.ToLower(level) {
	case "", "none", "off":
		return logrus.PanicLevel, false, nil
	case "trace":
		return logrus.TraceLevel, true, nil
	case "debug":
		return logrus.DebugLevel, true, nil
	case "info":
		return logrus.InfoLevel, true, nil
	case "warn", "warning":
		return logrus.WarnLevel, true, nil
	default:
		return logrus.PanicLevel, false, fmt.Errorf("unknown log level %q", level)
	}
}

// SetupLogging points logrus at w with the given level. A disabled level
// discards all output.
func SetupLogging(level string, w io.Writer) error {
	lvl, enabled, err := ParseLogLevel(level)
	if err != nil {
		return err
	}
	if !enabled {
		logrus.SetOutput(io.Discard)
		return nil
	}
	logrus.SetOutput(w)
	logrus.SetLevel(lvl)
	return nil
}

// openLogFile opens the daemon log file for appending, truncating it first if
// it exceeds maxSize.
func openLogFile(maxSize int64) (*os.File, error) {
	if err := truncateLogFile(LogPath(), maxSize); err != nil {
		// Non-fatal, just log to stderr
		fmt.Fprintf(os.Stderr, "Warning: failed to truncate log file: %v\n", err)
	}
	return os.OpenFile(LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
}

// truncateLogFile keeps roughly the last half of the log file once it grows
// past maxSize, cutting at a line boundary.
func truncateLogFile(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil // File doesn't exist, nothing to truncate
	}
	if err != nil {
		return err
	}

	if info.Size() <= maxSize {
		return nil
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		return err
	}

	startIdx := len(data) - len(data)/2
	for startIdx < len(data) && data[startIdx-1] != '\n' {
		startIdx++
	}

	return os.WriteFile(logPath, data[startIdx:], 0600)
}

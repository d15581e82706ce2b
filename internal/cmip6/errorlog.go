package cmip6

import (
	"fmt"
	"os"
	"strings"
)

// ErrorLog is an append-only text sink with one line per failed triple.
// The file is opened per append and never held across iterations.
type ErrorLog struct {
	path string
}

// NewErrorLog returns an error log writing to path.
func NewErrorLog(path string) *ErrorLog {
	return &ErrorLog{path: path}
}

// Path returns the log file location.
func (l *ErrorLog) Path() string {
	return l.path
}

// Touch creates the log if absent so that an unusable log path is reported
// before the batch starts.
func (l *ErrorLog) Touch() error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open error log: %w", err)
	}
	return f.Close()
}

// Append writes line followed by a newline.
func (l *ErrorLog) Append(line string) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open error log: %w", err)
	}
	if _, err := f.WriteString(strings.TrimRight(line, "\n") + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("write error log: %w", err)
	}
	return f.Close()
}

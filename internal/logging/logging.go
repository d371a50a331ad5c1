// Package logging holds the process-wide structured logger.
//
// Never pass PINs, keys or record plaintext to the logger. Record ids and
// counts are fine.
package logging

import (
	"fmt"
	"io"
	"os"

	clog "github.com/charmbracelet/log"
)

// L is the package-level logger. It writes to stderr so command output on
// stdout stays clean for piping.
var L = clog.NewWithOptions(os.Stderr, clog.Options{
	Prefix: "pinvault",
	Level:  clog.WarnLevel,
})

// Setup sets the level by name ("debug", "info", "warn", "error") and
// optionally redirects output.
func Setup(level string, w io.Writer) error {
	lvl, err := clog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	L.SetLevel(lvl)
	if w != nil {
		L.SetOutput(w)
	}
	return nil
}

// Debugf logs a debug-level formatted message.
func Debugf(format string, v ...any) {
	L.Debug(fmt.Sprintf(format, v...))
}

// Infof logs an info-level formatted message.
func Infof(format string, v ...any) {
	L.Info(fmt.Sprintf(format, v...))
}

// Warnf logs a warning-level formatted message.
func Warnf(format string, v ...any) {
	L.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs an error-level formatted message.
func Errorf(format string, v ...any) {
	L.Error(fmt.Sprintf(format, v...))
}

// Package log provides colored stderr logging for the CLI and server.
package log

import (
	"fmt"
	"os"

	"github.com/jwalton/gchalk"
)

// Infof writes an informational message to stderr.
func Infof(message string, a ...interface{}) {
	os.Stderr.Write([]byte(fmt.Sprintf(message, a...) + "\n"))
}

// Warnf writes a warning message to stderr.
func Warnf(message string, a ...interface{}) {
	os.Stderr.Write([]byte(gchalk.Stderr.Yellow(fmt.Sprintf(message, a...)) + "\n"))
}

// Error writes an error message to stderr.
func Error(message interface{}) {
	Errorf("%v", message)
}

// Errorf writes a formatted error message to stderr.
func Errorf(message string, a ...interface{}) {
	os.Stderr.Write([]byte(gchalk.Stderr.BrightRed(fmt.Sprintf(message, a...)) + "\n"))
}

// Fatal writes an error message to stderr, then exits with a non-zero
// status code.
func Fatal(message interface{}) {
	Fatalf("%v", message)
}

// Fatalf writes a formatted error message to stderr, then exits with a
// non-zero status code.
func Fatalf(message string, a ...interface{}) {
	Errorf(message, a...)
	os.Exit(1)
}

// DieOnError writes an error message to stderr and exits with non-zero
// status if err is not nil.
func DieOnError(err error) {
	if err != nil {
		Fatalf("%v", err)
	}
}

// Package logger prints diagnostics to stderr so the question/answer
// transcript on stdout stays clean. Debug and Info lines need --verbose;
// warnings are always shown.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	mu      sync.Mutex
	verbose bool
	output  io.Writer = os.Stderr
)

// SetVerbose enables or disables Debug and Info output.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// SetOutput redirects all log lines. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

func logf(always bool, prefix, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if always || verbose {
		fmt.Fprintf(output, prefix+format+"\n", args...)
	}
}

func Debug(format string, args ...any) { logf(false, "[DEBUG] ", format, args...) }

func Info(format string, args ...any) { logf(false, "[INFO] ", format, args...) }

// Warn reports something the user should act on, e.g. an index built with a
// different embedder than the one configured.
func Warn(format string, args ...any) { logf(true, "[WARN] ", format, args...) }

// Step logs the start of a named phase and returns a func that logs its
// duration:
//
//	defer logger.Step("index build")()
func Step(name string) func() {
	start := time.Now()
	Info("%s...", name)
	return func() {
		Info("%s done in %s", name, time.Since(start).Round(time.Millisecond))
	}
}

package utils

import (
	"fmt"
	"log"
	"os"
	"time"
)

// ANSI color codes for the level tags.
const (
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
	colorReset  = "\033[0m"
)

// Logger provides leveled, printf-style logging throughout the application.
// Info, Warn and Debug write to stdout; Error writes to stderr.
type Logger struct {
	out    *log.Logger
	errOut *log.Logger
}

// NewLogger creates a new Logger writing to stdout/stderr.
func NewLogger() *Logger {
	return &Logger{
		out:    log.New(os.Stdout, "", 0),
		errOut: log.New(os.Stderr, "", 0),
	}
}

func (l *Logger) logf(dst *log.Logger, color, tag, format string, args ...any) {
	ts := time.Now().Format("2006-01-02 15:04:05")
	dst.Printf(fmt.Sprintf("[%s] %s%s%s %s\n", ts, color, tag, colorReset, format), args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.logf(l.out, colorGreen, "INFO ", format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.logf(l.out, colorYellow, "WARN ", format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.logf(l.errOut, colorRed, "ERROR", format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	l.logf(l.out, colorCyan, "DEBUG", format, args...)
}

// Package gwlog implements the gateway's two-destination level-gated
// logger: one threshold for the console, one for a log file, each filtering
// independently. This mirrors original_source/datarecorder/main.py, which
// attaches a console handler and a RotatingFileHandler to the same logger
// and gives each its own level (FILE_DEBUG_LEVEL, CONSOLE_DEBUG_LEVEL); Go
// gets the same two thresholds without a logging framework, since no
// example repo in the pack reaches for one.
package gwlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Level is a logging severity, ordered least to most severe.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

// ParseLevel parses a case-insensitive level name from the configuration
// surface's -log-level-file/-log-level-console flags.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "critical":
		return LevelCritical, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger gates Printf calls to a console destination and an optional file
// destination, each at its own Level. A message's severity is classified
// from its conventional "warning:"/"critical:" text prefix (this tree's
// existing call-site convention); a message with neither prefix is Info.
type Logger struct {
	console      *log.Logger
	consoleLevel Level

	file      *log.Logger // nil disables the file destination
	fileLevel Level
}

// New builds a Logger. fileDest may be nil, meaning no file destination is
// configured; the console destination is always present.
func New(prefix string, consoleDest io.Writer, consoleLevel Level, fileDest io.Writer, fileLevel Level, flags int) *Logger {
	l := &Logger{
		console:      log.New(consoleDest, prefix, flags),
		consoleLevel: consoleLevel,
	}
	if fileDest != nil {
		l.file = log.New(fileDest, prefix, flags)
		l.fileLevel = fileLevel
	}
	return l
}

// Printf writes to every destination whose threshold the message's
// classified severity clears.
func (l *Logger) Printf(format string, args ...any) {
	lvl := classify(format)
	if lvl >= l.consoleLevel {
		l.console.Printf(format, args...)
	}
	if l.file != nil && lvl >= l.fileLevel {
		l.file.Printf(format, args...)
	}
}

// Fatalf logs at critical severity to every destination, then exits the
// process with status 1, mirroring *log.Logger.Fatalf.
func (l *Logger) Fatalf(format string, args ...any) {
	l.console.Printf("critical: "+format, args...)
	if l.file != nil {
		l.file.Printf("critical: "+format, args...)
	}
	os.Exit(1)
}

// Named derives a Logger whose prefix is name + ": " in place of this
// Logger's own prefix, sharing this Logger's destinations and thresholds. Used to give each long-lived
// component (ingest, dispatch, display) its own tagged log lines.
func (l *Logger) Named(name string) *Logger {
	nl := &Logger{consoleLevel: l.consoleLevel, fileLevel: l.fileLevel}
	nl.console = log.New(l.console.Writer(), name+": ", l.console.Flags())
	if l.file != nil {
		nl.file = log.New(l.file.Writer(), name+": ", l.file.Flags())
	}
	return nl
}

func classify(format string) Level {
	switch {
	case strings.HasPrefix(format, "critical:"):
		return LevelCritical
	case strings.HasPrefix(format, "warning:"):
		return LevelWarning
	default:
		return LevelInfo
	}
}

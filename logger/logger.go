package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is the minimum severity a Logger writes.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel maps a LOG_LEVEL value to a Level, falling back to INFO.
func ParseLevel(level string) Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DebugLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

type Logger struct {
	mu    sync.RWMutex
	out   *log.Logger
	err   *log.Logger
	level Level
}

var std = New(os.Stdout, os.Stderr, ParseLevel(os.Getenv("LOG_LEVEL")))

// New creates a logger writing INFO and below to out and ERROR to errOut.
func New(out, errOut io.Writer, level Level) *Logger {
	return &Logger{
		out:   log.New(out, "", 0),
		err:   log.New(errOut, "", 0),
		level: level,
	}
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *Logger) Level() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

func (l *Logger) write(level Level, format string, args ...any) {
	if level < l.Level() {
		return
	}

	line := fmt.Sprintf("[%s] %s: %s",
		time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		level.String(),
		fmt.Sprintf(format, args...))

	if level == ErrorLevel {
		l.err.Println(line)
		return
	}
	l.out.Println(line)
}

func (l *Logger) Debug(format string, args ...any) { l.write(DebugLevel, format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.write(InfoLevel, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.write(WarnLevel, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.write(ErrorLevel, format, args...) }

// Package-level helpers write to the default logger.

func Debug(format string, args ...any) { std.Debug(format, args...) }
func Info(format string, args ...any)  { std.Info(format, args...) }
func Warn(format string, args ...any)  { std.Warn(format, args...) }
func Error(format string, args ...any) { std.Error(format, args...) }

// SetLevel changes the default logger's level.
func SetLevel(level Level) {
	std.SetLevel(level)
}

// CurrentLevel returns the default logger's level.
func CurrentLevel() Level {
	return std.Level()
}

// SetOutput redirects the default logger, mostly for tests.
func SetOutput(out, errOut io.Writer) {
	std.mu.Lock()
	std.out = log.New(out, "", 0)
	std.err = log.New(errOut, "", 0)
	std.mu.Unlock()
}

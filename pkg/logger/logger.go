// Package logger is the process-wide leveled logger. Output is discarded
// until Init or SetOutput is called.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Level is the minimum severity written.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	globalLogger *log.Logger
	logFile      *os.File
	minLevel     = LevelDebug
	mu           sync.Mutex
)

// Init sends log output to the file at logPath, appending.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	closeFile()

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	logFile = f
	globalLogger = log.New(f, "", log.Ltime|log.Lmicroseconds)

	return nil
}

// SetOutput sends log output to w. A nil w disables logging.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	closeFile()
	if w == nil {
		globalLogger = nil
		return
	}
	globalLogger = log.New(w, "", log.Ltime|log.Lmicroseconds)
}

// SetLevel drops messages below l.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

// Close closes the log file and disables logging.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	closeFile()
	globalLogger = nil
}

func closeFile() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

func logf(l Level, prefix, format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger != nil && l >= minLevel {
		globalLogger.Printf(prefix+format, v...)
	}
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	logf(LevelDebug, "[DEBUG] ", format, v...)
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	logf(LevelInfo, "[INFO] ", format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	logf(LevelWarn, "[WARN] ", format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	logf(LevelError, "[ERROR] ", format, v...)
}

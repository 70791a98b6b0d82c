// Package logger provides leveled logging for the bomb panel.
// Gameplay events logged through Event are mirrored into the round's event
// log so the render layer can show them.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Recorder receives every Event call. The round's events.Log satisfies it.
type Recorder interface {
	Record(eventType, actorID, details string)
}

// Logger provides leveled logging with an optional event recorder.
type Logger struct {
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	recorder    Recorder
}

// NewLogger creates a logger writing info and warnings to stdout and errors
// to stderr.
func NewLogger() *Logger {
	return &Logger{
		infoLogger:  log.New(os.Stdout, "[PANEL-INFO] ", log.Ldate|log.Ltime|log.Lshortfile),
		warnLogger:  log.New(os.Stdout, "[PANEL-WARN] ", log.Ldate|log.Ltime|log.Lshortfile),
		errorLogger: log.New(os.Stderr, "[PANEL-ERROR] ", log.Ldate|log.Ltime|log.Lshortfile),
	}
}

// New creates a logger that writes every level to w. The terminal belongs to
// the renderer, so the CLI points this at a file.
func New(w io.Writer) *Logger {
	return &Logger{
		infoLogger:  log.New(w, "[PANEL-INFO] ", log.Ldate|log.Ltime),
		warnLogger:  log.New(w, "[PANEL-WARN] ", log.Ldate|log.Ltime),
		errorLogger: log.New(w, "[PANEL-ERROR] ", log.Ldate|log.Ltime),
	}
}

// Discard returns a logger that drops text output. Events still reach a
// recorder attached with WithRecorder.
func Discard() *Logger {
	return New(io.Discard)
}

// WithRecorder returns a copy of the logger that also records events.
func (l *Logger) WithRecorder(r Recorder) *Logger {
	cp := *l
	cp.recorder = r
	return &cp
}

// Info logs informational messages.
func (l *Logger) Info(msg string) {
	l.infoLogger.Println(msg)
}

// Warn logs warning messages.
func (l *Logger) Warn(msg string) {
	l.warnLogger.Println(msg)
}

// Error logs error messages.
func (l *Logger) Error(msg string) {
	l.errorLogger.Println(msg)
}

// Event logs a gameplay event and mirrors it to the recorder.
func (l *Logger) Event(eventType string, actorID string, details string) {
	l.infoLogger.Printf("[EVENT:%s] Actor:%s | %s", eventType, actorID, details)
	if l.recorder != nil {
		l.recorder.Record(eventType, actorID, details)
	}
}

// Eventf is Event with a format string.
func (l *Logger) Eventf(eventType string, actorID string, format string, args ...any) {
	l.Event(eventType, actorID, fmt.Sprintf(format, args...))
}

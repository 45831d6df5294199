// Package logging builds the component loggers used across taskfeed.
//
// Every component logs through a *log.Logger with a "[component] " prefix.
// Output goes to stderr unless a log file is configured, in which case it
// is rotated by lumberjack.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/taskfeed/taskfeed/internal/config"
)

// Sink is a shared log destination.
type Sink struct {
	w      io.Writer
	closer io.Closer
}

// Open returns the sink described by cfg.
func Open(cfg config.LogConfig) *Sink {
	if cfg.File == "" {
		return &Sink{w: os.Stderr}
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return &Sink{w: rotator, closer: rotator}
}

// Discard returns a sink that drops everything.
func Discard() *Sink {
	return &Sink{w: io.Discard}
}

// Logger returns a logger for component writing to the sink.
func (s *Sink) Logger(component string) *log.Logger {
	return log.New(s.w, "["+component+"] ", log.LstdFlags)
}

// Writer returns the sink's destination.
func (s *Sink) Writer() io.Writer {
	return s.w
}

// Close flushes and closes a file sink.
func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

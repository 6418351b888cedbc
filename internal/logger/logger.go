// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// DropConvert - 拖放视频转音频工具

package logger

import (
	"io"
	"log"
	"os"
)

// Logger provides a simple logging interface
type Logger interface {
	Info(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

type defaultLogger struct {
	prefix string
	debug  bool
	out    *log.Logger
}

// Option configures the default logger.
type Option func(*defaultLogger)

// WithDebug enables Debug output.
func WithDebug(enable bool) Option {
	return func(l *defaultLogger) { l.debug = enable }
}

// WithOutput redirects log output.
func WithOutput(w io.Writer) Option {
	return func(l *defaultLogger) { l.out = log.New(w, "", log.LstdFlags) }
}

// New returns a Logger that writes through the log package with the given
// prefix. Debug lines are dropped unless WithDebug(true) is passed.
func New(prefix string, opts ...Option) Logger {
	l := &defaultLogger{
		prefix: prefix,
		out:    log.New(os.Stderr, "", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.prefix != "" {
		l.prefix += ": "
	}
	return l
}

func (l *defaultLogger) Info(format string, args ...interface{}) {
	l.out.Printf("[INFO] "+l.prefix+format, args...)
}

func (l *defaultLogger) Error(format string, args ...interface{}) {
	l.out.Printf("[ERROR] "+l.prefix+format, args...)
}

func (l *defaultLogger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.out.Printf("[DEBUG] "+l.prefix+format, args...)
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Info(format string, args ...interface{})  {}
func (nopLogger) Error(format string, args ...interface{}) {}
func (nopLogger) Debug(format string, args ...interface{}) {}

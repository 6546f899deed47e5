// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

// Package log provides the leveled logger used internally by wharfq.
package log

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// Level controls which messages a Logger emits.
type Level int32

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// Base is the logging backend wharfq delegates to once its level gate
// passes. A user-supplied Logger (see the top-level package) already
// satisfies this.
type Base interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Fatal(args ...interface{})
}

// Logger wraps a Base with level gating. It is safe for concurrent use.
type Logger struct {
	mu    sync.Mutex
	base  Base
	level Level
}

// NewLogger wraps base, defaulting to a stderr-backed logger if base is nil.
func NewLogger(base Base) *Logger {
	if base == nil {
		base = newDefaultBase()
	}
	return &Logger{base: base, level: InfoLevel}
}

// SetLevel sets the minimum level that will be emitted.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level
}

func (l *Logger) Debug(args ...interface{}) {
	if l.enabled(DebugLevel) {
		l.base.Debug(args...)
	}
}
func (l *Logger) Info(args ...interface{}) {
	if l.enabled(InfoLevel) {
		l.base.Info(args...)
	}
}
func (l *Logger) Warn(args ...interface{}) {
	if l.enabled(WarnLevel) {
		l.base.Warn(args...)
	}
}
func (l *Logger) Error(args ...interface{}) {
	if l.enabled(ErrorLevel) {
		l.base.Error(args...)
	}
}
func (l *Logger) Fatal(args ...interface{}) {
	if l.enabled(FatalLevel) {
		l.base.Fatal(args...)
	}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.Debug(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...interface{})  { l.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.Warn(fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.Error(fmt.Sprintf(format, args...)) }

// defaultBase is the stderr-backed Base used when no Logger is configured.
type defaultBase struct {
	std *log.Logger
}

func newDefaultBase() *defaultBase {
	return &defaultBase{std: log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lmicroseconds)}
}

func (b *defaultBase) Debug(args ...interface{}) { b.println("DEBUG:", args...) }
func (b *defaultBase) Info(args ...interface{})  { b.println("INFO:", args...) }
func (b *defaultBase) Warn(args ...interface{})  { b.println("WARN:", args...) }
func (b *defaultBase) Error(args ...interface{}) { b.println("ERROR:", args...) }
func (b *defaultBase) Fatal(args ...interface{}) {
	b.println("FATAL:", args...)
	os.Exit(1)
}

func (b *defaultBase) println(prefix string, args ...interface{}) {
	b.std.Println(append([]interface{}{prefix}, args...)...)
}

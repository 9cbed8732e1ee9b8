// Copyright © 2024 loonghao
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import (
	"reflect"

	"github.com/JeffreyRichter/enum/enum"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var ELogLevel = LogLevel(0)

type LogLevel uint8

func (LogLevel) None() LogLevel    { return LogLevel(0) }
func (LogLevel) Error() LogLevel   { return LogLevel(1) }
func (LogLevel) Warning() LogLevel { return LogLevel(2) }
func (LogLevel) Info() LogLevel    { return LogLevel(3) }
func (LogLevel) Debug() LogLevel   { return LogLevel(4) }

func (l LogLevel) String() string {
	return enum.StringInt(l, reflect.TypeOf(l))
}

func (l *LogLevel) Parse(s string) error {
	val, err := enum.ParseInt(reflect.TypeOf(l), s, true, true)
	if err == nil {
		*l = val.(LogLevel)
	}
	return err
}

type ILogger interface {
	ShouldLog(level LogLevel) bool
	Log(level LogLevel, msg string)
	Panic(err error)
}

type ILoggerCloser interface {
	ILogger
	CloseLog()
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// zapLogger adapts a zap core to the ILogger surface the engines consume.
// Engines hold an ILogger, never the zap singleton.
type zapLogger struct {
	minimumLevelToLog LogLevel
	inner             *zap.Logger
}

func NewZapLogger(minimumLevelToLog LogLevel, inner *zap.Logger) ILoggerCloser {
	return &zapLogger{minimumLevelToLog: minimumLevelToLog, inner: inner}
}

// NewStderrLogger builds a production zap logger writing to stderr.
func NewStderrLogger(minimumLevelToLog LogLevel) ILoggerCloser {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel) // filtering happens in ShouldLog
	inner, err := cfg.Build()
	if err != nil {
		inner = zap.NewNop()
	}
	return NewZapLogger(minimumLevelToLog, inner)
}

// NewNopLogger is for tests and for callers that opt out of logging.
func NewNopLogger() ILoggerCloser {
	return NewZapLogger(ELogLevel.None(), zap.NewNop())
}

func (l *zapLogger) ShouldLog(level LogLevel) bool {
	if level == ELogLevel.None() {
		return false
	}
	return level <= l.minimumLevelToLog
}

func (l *zapLogger) Log(level LogLevel, msg string) {
	if !l.ShouldLog(level) {
		return
	}
	switch level {
	case ELogLevel.Error():
		l.inner.Error(msg)
	case ELogLevel.Warning():
		l.inner.Warn(msg)
	case ELogLevel.Debug():
		l.inner.Debug(msg)
	default:
		l.inner.Info(msg)
	}
}

func (l *zapLogger) Panic(err error) {
	l.inner.Panic(err.Error())
}

func (l *zapLogger) CloseLog() {
	_ = l.inner.Sync()
}

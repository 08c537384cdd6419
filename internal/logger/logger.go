package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	// Sync flushes any buffered log entries. Call at program exit.
	Sync() error
	// Close flushes and releases the log file, if any. A later entry reopens it.
	Close() error
}

// zapLogger wraps a *zap.SugaredLogger and implements Logger.
type zapLogger struct {
	sugar *zap.SugaredLogger
	file  *lumberjack.Logger
}

// Ensure zapLogger satisfies Logger.
var _ Logger = (*zapLogger)(nil)

// Debug logs at DebugLevel. keysAndValues are alternating key/value pairs.
func (l *zapLogger) Debug(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info logs at InfoLevel.
func (l *zapLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs at WarnLevel.
func (l *zapLogger) Warn(msg string, keysAndValues ...any) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs at ErrorLevel.
func (l *zapLogger) Error(msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l *zapLogger) Sync() error {
	return l.sugar.Sync()
}

func (l *zapLogger) Close() error {
	_ = l.sugar.Sync()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Option configures the logger built by New.
type Option func(*options)

type options struct {
	filePath   string
	maxBackups int
	maxSizeMB  int
	level      zapcore.Level
	console    zapcore.WriteSyncer
}

// WithFile additionally writes log entries to path, rotating the file once it
// reaches maxSizeMB and keeping at most maxBackups old files.
func WithFile(path string, maxSizeMB, maxBackups int) Option {
	return func(o *options) {
		o.filePath = path
		o.maxSizeMB = maxSizeMB
		o.maxBackups = maxBackups
	}
}

// WithLevel sets the minimum enabled level.
func WithLevel(level zapcore.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithConsole overrides the console sink (stderr by default).
func WithConsole(w zapcore.WriteSyncer) Option {
	return func(o *options) {
		if w != nil {
			o.console = w
		}
	}
}

// New builds a Logger writing human-readable entries to the console and,
// if configured, to a size-rotated log file.
func New(opts ...Option) Logger {
	o := &options{
		level:     zapcore.InfoLevel,
		maxSizeMB: 10,
		console:   zapcore.Lock(os.Stderr),
	}
	for _, opt := range opts {
		opt(o)
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), o.console, o.level),
	}
	var rotating *lumberjack.Logger
	if o.filePath != "" {
		rotating = &lumberjack.Logger{
			Filename:   o.filePath,
			MaxSize:    o.maxSizeMB,
			MaxBackups: o.maxBackups,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(rotating), o.level))
	}

	zapLog := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	return &zapLogger{sugar: zapLog.Sugar(), file: rotating}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

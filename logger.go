package minibatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Level log level
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

// ParseLevel parses debug, info, warn or error. Unknown names yield Info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug
	case "warn", "warning":
		return Warn
	case "error":
		return Error
	}
	return Info
}

// Logger is used by the engine and the extensions for all output.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...interface{})
	Info(ctx context.Context, msg string, args ...interface{})
	Warn(ctx context.Context, msg string, args ...interface{})
	Error(ctx context.Context, msg string, args ...interface{})
}

type logCtxKey struct{}

// WithLogAttrs returns a context whose log lines carry attrs in addition to
// those already attached to ctx.
func WithLogAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	prev, _ := ctx.Value(logCtxKey{}).([]slog.Attr)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, logCtxKey{}, merged)
}

func withJobExecution(ctx context.Context, execution *JobExecution) context.Context {
	return WithLogAttrs(ctx,
		slog.String("job", execution.JobName),
		slog.Int64("execution", execution.JobExecutionId),
		slog.Int64("run", execution.RunId),
		slog.String("trace", execution.TraceId),
	)
}

func withStepExecution(ctx context.Context, execution *StepExecution) context.Context {
	return WithLogAttrs(ctx, slog.String("step", execution.StepName))
}

type slogLogger struct {
	logger *slog.Logger
}

// NewLogger create a Logger writing text lines to writer
func NewLogger(writer io.Writer, level Level) Logger {
	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level.slogLevel()})
	return &slogLogger{logger: slog.New(handler)}
}

// NewSlogLogger adapts an existing *slog.Logger
func NewSlogLogger(logger *slog.Logger) Logger {
	return &slogLogger{logger: logger}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case Debug:
		return slog.LevelDebug
	case Warn:
		return slog.LevelWarn
	case Error:
		return slog.LevelError
	}
	return slog.LevelInfo
}

func (l *slogLogger) log(ctx context.Context, level slog.Level, msg string, args []interface{}) {
	if !l.logger.Enabled(ctx, level) {
		return
	}
	text := msg
	if len(args) > 0 {
		text = fmt.Sprintf(msg, args...)
	}
	attrs, _ := ctx.Value(logCtxKey{}).([]slog.Attr)
	l.logger.LogAttrs(ctx, level, text, attrs...)
}

func (l *slogLogger) Debug(ctx context.Context, msg string, args ...interface{}) {
	l.log(ctx, slog.LevelDebug, msg, args)
}

func (l *slogLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	l.log(ctx, slog.LevelInfo, msg, args)
}

func (l *slogLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	l.log(ctx, slog.LevelWarn, msg, args)
}

func (l *slogLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	l.log(ctx, slog.LevelError, msg, args)
}

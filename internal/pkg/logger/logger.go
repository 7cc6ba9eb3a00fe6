// Package logger wraps log/slog with the attributes a render node attaches
// to its lines: service, component, queue, job, stage and request.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Attribute keys shared by every process.
const (
	KeyService   = "service"
	KeyComponent = "component"
	KeyQueue     = "queue"
	KeyJobID     = "job_id"
	KeyStage     = "stage"
	KeyRequestID = "request_id"
)

type ctxKey int

const (
	requestIDCtx ctxKey = iota
	jobIDCtx
	stageCtx
)

type Logger struct {
	*slog.Logger
}

type Config struct {
	Level       string    // debug, info, warn, error
	Format      string    // json or text
	Output      io.Writer // default os.Stdout
	AddSource   bool
	ServiceName string
}

// DefaultConfig reads LOG_LEVEL, LOG_FORMAT, LOG_SOURCE and SERVICE_NAME.
func DefaultConfig() Config {
	return Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Format:      getEnv("LOG_FORMAT", "json"),
		Output:      os.Stdout,
		AddSource:   getEnv("LOG_SOURCE", "false") == "true",
		ServiceName: getEnv("SERVICE_NAME", "rendernode"),
	}
}

func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		AddSource:   cfg.AddSource,
		ReplaceAttr: utcTime,
	}

	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if cfg.Format == "text" {
		h = slog.NewTextHandler(out, opts)
	}
	if cfg.ServiceName != "" {
		h = h.WithAttrs([]slog.Attr{slog.String(KeyService, cfg.ServiceName)})
	}
	return &Logger{Logger: slog.New(h)}
}

// utcTime renders record timestamps as RFC 3339 in UTC, matching the job
// timestamps on the wire.
func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
	}
	return a
}

func NewDefault() *Logger {
	return New(DefaultConfig())
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func (l *Logger) WithComponent(component string) *Logger { return l.with(KeyComponent, component) }
func (l *Logger) WithQueue(name string) *Logger          { return l.with(KeyQueue, name) }
func (l *Logger) WithJobID(id string) *Logger            { return l.with(KeyJobID, id) }
func (l *Logger) WithStage(stage string) *Logger         { return l.with(KeyStage, stage) }
func (l *Logger) WithRequestID(id string) *Logger        { return l.with(KeyRequestID, id) }

// WithError attaches err as "error". A nil err returns l unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.with(args...)
}

// FromContext returns l enriched with the request, job and stage carried
// by ctx.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	out := l
	if v, ok := ctx.Value(requestIDCtx).(string); ok && v != "" {
		out = out.WithRequestID(v)
	}
	if v, ok := ctx.Value(jobIDCtx).(string); ok && v != "" {
		out = out.WithJobID(v)
	}
	if v, ok := ctx.Value(stageCtx).(string); ok && v != "" {
		out = out.WithStage(v)
	}
	return out
}

// LogFatal logs at error level and exits with status 1.
func (l *Logger) LogFatal(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.Error(msg, args...)
	os.Exit(1)
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDCtx, id)
}

// RequestIDFromContext returns the request ID set by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDCtx).(string)
	return v
}

func ContextWithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDCtx, id)
}

func ContextWithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageCtx, stage)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

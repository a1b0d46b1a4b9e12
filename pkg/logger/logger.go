// Package logger builds the service's JSON slog logger and carries
// request-scoped fields (correlation id, caller identity, logger) through
// context.Context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Redacted replaces the value of any attribute whose key names a secret.
const Redacted = "[REDACTED]"

var secretKeys = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"token":         true,
	"password":      true,
	"old_password":  true,
	"new_password":  true,
	"secret":        true,
	"authorization": true,
}

type ctxKey int

const (
	fieldsKey ctxKey = iota
	loggerKey
)

// fields are the request-scoped values attached to every log line.
type fields struct {
	correlationID string
	email         string
	role          string
}

// New returns a JSON logger on stdout.
func New(serviceName, level string) *slog.Logger {
	return NewWithWriter(serviceName, level, os.Stdout)
}

// NewWithWriter returns a JSON logger on w. Unknown levels fall back to
// info; debug also records the source location.
func NewWithWriter(serviceName, level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   lvl <= slog.LevelDebug,
		ReplaceAttr: redact,
	})
	return slog.New(h).With(slog.String("service", serviceName))
}

// ParseLevel accepts debug, info, warn and error in any case.
func ParseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, Redacted)
	}
	return a
}

func fieldsFrom(ctx context.Context) fields {
	f, _ := ctx.Value(fieldsKey).(fields)
	return f
}

// WithCorrelationID stores the request's correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	f := fieldsFrom(ctx)
	f.correlationID = id
	return context.WithValue(ctx, fieldsKey, f)
}

func CorrelationIDFromContext(ctx context.Context) string {
	return fieldsFrom(ctx).correlationID
}

// WithIdentity stores the authenticated caller.
func WithIdentity(ctx context.Context, email, role string) context.Context {
	f := fieldsFrom(ctx)
	f.email, f.role = email, role
	return context.WithValue(ctx, fieldsKey, f)
}

func UserEmailFromContext(ctx context.Context) string { return fieldsFrom(ctx).email }

func RoleFromContext(ctx context.Context) string { return fieldsFrom(ctx).role }

// NewContext stores l as the request-scoped logger.
func NewContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the logger stored by NewContext, or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithContext adds the request fields and the active trace and span ids
// found in ctx to l.
func WithContext(ctx context.Context, l *slog.Logger) *slog.Logger {
	f := fieldsFrom(ctx)
	var attrs []any
	if f.correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", f.correlationID))
	}
	if f.email != "" {
		attrs = append(attrs, slog.String("user_email", f.email))
	}
	if f.role != "" {
		attrs = append(attrs, slog.String("role", f.role))
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var out map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &out))
	return out
}

func spanContext(t *testing.T) context.Context {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestNewWithWriter_ServiceAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("qualitylab", "warn", &buf)

	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.Warn("kept")
	out := lastLine(t, &buf)
	assert.Equal(t, "qualitylab", out["service"])
	assert.Equal(t, "kept", out["msg"])
	assert.NotContains(t, out, "source")
}

func TestNewWithWriter_DebugAddsSource(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter("qualitylab", "debug", &buf).Debug("here")

	assert.Contains(t, lastLine(t, &buf), "source")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestSecretsAreRedacted(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("qualitylab", "info", &buf)

	l.Info("login",
		slog.String("email", "ana@lab.test"),
		slog.String("refresh_token", "8f1c..."),
		slog.String("Password", "hunter22"),
	)

	out := lastLine(t, &buf)
	assert.Equal(t, "ana@lab.test", out["email"])
	assert.Equal(t, Redacted, out["refresh_token"])
	assert.Equal(t, Redacted, out["Password"])
	assert.NotContains(t, buf.String(), "hunter22")
}

func TestWithContext_AllFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("qualitylab", "info", &buf)

	ctx := WithCorrelationID(spanContext(t), "corr-1")
	ctx = WithIdentity(ctx, "root@lab.test", "administrator")
	WithContext(ctx, l).Info("all fields")

	out := lastLine(t, &buf)
	assert.Equal(t, "corr-1", out["correlation_id"])
	assert.Equal(t, "root@lab.test", out["user_email"])
	assert.Equal(t, "administrator", out["role"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", out["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", out["span_id"])
}

func TestWithContext_Empty(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("qualitylab", "info", &buf)

	assert.Same(t, l, WithContext(context.Background(), l))

	l.Info("bare")
	out := lastLine(t, &buf)
	for _, key := range []string{"correlation_id", "user_email", "role", "trace_id", "span_id"} {
		assert.NotContains(t, out, key)
	}
}

func TestRequestFields_DoNotLeakBetweenContexts(t *testing.T) {
	base := WithCorrelationID(context.Background(), "corr-1")
	withUser := WithIdentity(base, "ana@lab.test", "user")

	assert.Equal(t, "corr-1", CorrelationIDFromContext(withUser))
	assert.Equal(t, "ana@lab.test", UserEmailFromContext(withUser))
	assert.Equal(t, "user", RoleFromContext(withUser))
	assert.Empty(t, UserEmailFromContext(base))

	renamed := WithCorrelationID(withUser, "corr-2")
	assert.Equal(t, "corr-1", CorrelationIDFromContext(withUser))
	assert.Equal(t, "corr-2", CorrelationIDFromContext(renamed))
	assert.Equal(t, "ana@lab.test", UserEmailFromContext(renamed))
}

func TestFromContext(t *testing.T) {
	l := NewWithWriter("qualitylab", "info", &bytes.Buffer{})

	assert.Same(t, l, FromContext(NewContext(context.Background(), l)))
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

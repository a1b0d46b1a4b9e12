package database

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/labqa/qualitylab/pkg/database"

type slowQueryLog struct {
	threshold time.Duration
	logger    *slog.Logger
}

var slowQueries atomic.Pointer[slowQueryLog]

// SetSlowQueryLogging warns about every store operation that takes at least
// threshold. A zero threshold or nil logger turns it off.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	if threshold <= 0 || logger == nil {
		slowQueries.Store(nil)
		return
	}
	slowQueries.Store(&slowQueryLog{threshold: threshold, logger: logger})
}

func (s *slowQueryLog) observe(ctx context.Context, attrs []attribute.KeyValue, elapsed time.Duration, err error) {
	if s == nil || elapsed < s.threshold {
		return
	}
	args := make([]any, 0, len(attrs)+2)
	for _, a := range attrs {
		args = append(args, slog.String(string(a.Key), a.Value.Emit()))
	}
	args = append(args, slog.Duration("duration", elapsed))
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	s.logger.WarnContext(ctx, "slow query detected", args...)
}

// TraceQuery opens a client span around one PostgreSQL statement. The
// returned func ends it and must receive the statement's error:
//
//	ctx, end := database.TraceQuery(ctx, "FindRefreshCredential", q)
//	defer func() { end(err) }()
func TraceQuery(ctx context.Context, operation, statement string) (context.Context, func(error)) {
	return traceStoreCall(ctx, "postgresql", operation, statement)
}

// TraceRedis does the same for a Redis command.
func TraceRedis(ctx context.Context, operation, command string) (context.Context, func(error)) {
	return traceStoreCall(ctx, "redis", operation, command)
}

func traceStoreCall(ctx context.Context, system, operation, statement string) (context.Context, func(error)) {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", system),
		attribute.String("db.operation", operation),
		attribute.String("db.statement", statement),
	}
	began := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		slowQueries.Load().observe(ctx, attrs, time.Since(began), err)
	}
}

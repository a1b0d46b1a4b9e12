package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/labqa/qualitylab/pkg/logger"
)

// CorrelationHeader carries the request id in both directions.
const CorrelationHeader = "X-Correlation-ID"

type accessInfoKeyType struct{}

var accessInfoKey accessInfoKeyType

// accessInfo is filled in by inner stages so the access log line written by
// RequestLogging can name the caller.
type accessInfo struct {
	email   string
	rotated bool
}

func accessInfoFrom(ctx context.Context) *accessInfo {
	info, _ := ctx.Value(accessInfoKey).(*accessInfo)
	return info
}

// RequestLogging assigns a correlation id, stores a request-scoped logger in
// the context (see logger.FromContext) and writes one access log line per
// request. Mount it after Tracing so the scoped logger carries trace ids.
func RequestLogging(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			correlationID := r.Header.Get(CorrelationHeader)
			if correlationID == "" {
				correlationID = uuid.New().String()
			}
			w.Header().Set(CorrelationHeader, correlationID)

			info := &accessInfo{}
			ctx := logger.WithCorrelationID(r.Context(), correlationID)
			ctx = context.WithValue(ctx, accessInfoKey, info)
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(ctx))

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", rec.bytes),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("user_agent", r.UserAgent()),
			}
			if info.email != "" {
				attrs = append(attrs, slog.String("user_email", info.email))
			}
			if info.rotated {
				attrs = append(attrs, slog.Bool("token_rotated", true))
			}

			logger.WithContext(ctx, base).InfoContext(ctx, "http request", attrs...)
		})
	}
}

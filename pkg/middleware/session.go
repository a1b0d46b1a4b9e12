package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/labqa/qualitylab/pkg/httputil"
	"github.com/labqa/qualitylab/pkg/logger"
)

// Header names carrying session credentials in both directions.
const (
	AccessTokenHeader  = "access_token"
	RefreshTokenHeader = "refresh_token"
)

type identityKeyType struct{}

var identityKey identityKeyType

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	Email string
	Role  string
	// RotatedToken is set when the presented access token had expired and a
	// new one was minted for this request.
	RotatedToken string
}

// Authenticator resolves the presented credentials to an identity. Errors
// are written to the client with httputil.WriteError, so they should carry a
// status (apperrors.AppError).
type Authenticator func(ctx context.Context, accessToken, refreshToken string) (Identity, error)

// Session runs authenticate on every request. On failure it writes the error
// body and the handler is not called. On success the identity is stored in
// the context once, and a rotated token is returned in the access_token
// response header.
func Session(authenticate Authenticator, fallback *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := authenticate(r.Context(),
				r.Header.Get(AccessTokenHeader),
				r.Header.Get(RefreshTokenHeader),
			)
			if err != nil {
				httputil.WriteError(w, r, err, fallback)
				return
			}

			if id.RotatedToken != "" {
				w.Header().Set(AccessTokenHeader, id.RotatedToken)
			}
			if info := accessInfoFrom(r.Context()); info != nil {
				info.email = id.Email
				info.rotated = id.RotatedToken != ""
			}
			trace.SpanFromContext(r.Context()).SetAttributes(
				attribute.String("enduser.id", id.Email),
				attribute.String("enduser.role", id.Role),
			)

			ctx := context.WithValue(r.Context(), identityKey, id)
			ctx = logger.WithIdentity(ctx, id.Email, id.Role)
			ctx = logger.NewContext(ctx, logger.FromContext(r.Context()).With(
				slog.String("user_email", id.Email),
				slog.String("role", id.Role),
			))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the identity stored by Session.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// WithIdentity stores id in ctx. Handler tests use it to skip the gate.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

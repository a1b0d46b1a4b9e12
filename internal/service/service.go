// Package service holds the account, session and workflow use cases invoked
// by the HTTP handlers once the session gate admitted the caller.
package service

import (
	"context"
	"log/slog"

	"github.com/labqa/qualitylab/internal/domain"
	"github.com/labqa/qualitylab/internal/event"
)

// bcryptCost is the cost factor for password hashes.
const bcryptCost = 12

// minPasswordLength is the shortest password accepted at registration and on
// password change.
const minPasswordLength = 8

// Actor is the caller admitted by the session gate.
type Actor struct {
	Email string
	Role  domain.Role
}

// Events publishes session and identity events. Publishing is best effort:
// failures are logged and never fail the operation.
type Events interface {
	LoggedIn(ctx context.Context, email string, role domain.Role) error
	SessionsRevoked(ctx context.Context, data event.SessionsRevokedData) error
	IdentityChanged(ctx context.Context, data event.IdentityChangedData) error
}

func logPublishError(ctx context.Context, logger *slog.Logger, eventType string, err error) {
	if err == nil {
		return
	}
	logger.ErrorContext(ctx, "failed to publish event",
		slog.String("type", eventType),
		slog.String("error", err.Error()),
	)
}

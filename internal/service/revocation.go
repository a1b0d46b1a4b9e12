package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/labqa/qualitylab/internal/auth"
	"github.com/labqa/qualitylab/internal/event"
	"github.com/labqa/qualitylab/internal/policy"
	"github.com/labqa/qualitylab/internal/repository"
	apperrors "github.com/labqa/qualitylab/pkg/errors"
)

// RevocationService deletes refresh credentials. Access tokens already
// issued stay valid until they expire.
type RevocationService struct {
	creds  repository.CredentialStore
	events Events
	logger *slog.Logger
}

func NewRevocationService(creds repository.CredentialStore, events Events, logger *slog.Logger) *RevocationService {
	return &RevocationService{creds: creds, events: events, logger: logger}
}

// LogoutSelf deletes every credential of owner. Having none is not an error.
func (s *RevocationService) LogoutSelf(ctx context.Context, owner string) (int64, error) {
	n, err := s.creds.DeleteByOwner(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("revoke own credentials: %w", err)
	}
	s.revoked(ctx, event.SessionsRevokedData{Scope: event.ScopeSelf, Actor: owner, Target: owner, Revoked: n})
	return n, nil
}

// LogoutOther deletes every credential of target on behalf of actor, who
// must be target or an administrator.
func (s *RevocationService) LogoutOther(ctx context.Context, actor Actor, target string) (int64, error) {
	if target == "" {
		return 0, apperrors.InvalidInput("target email is required")
	}
	if !policy.SelfOrAdmin(actor.Email, actor.Role, target) {
		return 0, auth.Denied("administrator role required to log out another user")
	}

	n, err := s.creds.DeleteByOwner(ctx, target)
	if err != nil {
		return 0, fmt.Errorf("revoke credentials of %s: %w", target, err)
	}
	s.revoked(ctx, event.SessionsRevokedData{Scope: event.ScopeOther, Actor: actor.Email, Target: target, Revoked: n})
	return n, nil
}

// LogoutAll deletes every credential in the store. Administrators only.
func (s *RevocationService) LogoutAll(ctx context.Context, actor Actor) (int64, error) {
	if !policy.AdminOnly(actor.Role) {
		return 0, auth.Denied("administrator role required to log out all users")
	}

	n, err := s.creds.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("revoke all credentials: %w", err)
	}
	s.revoked(ctx, event.SessionsRevokedData{Scope: event.ScopeAll, Actor: actor.Email, Revoked: n})
	return n, nil
}

// LogoutSession deletes the single presented credential. An unknown token
// revokes nothing; a token of another owner is refused.
func (s *RevocationService) LogoutSession(ctx context.Context, owner, token string) (int64, error) {
	if token == "" {
		return 0, auth.MissingRefreshCredential()
	}

	cred, err := s.creds.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("find credential: %w", err)
	}
	if cred.Owner != owner {
		return 0, auth.Denied("refresh credential belongs to another user")
	}

	n, err := s.creds.Delete(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("revoke credential: %w", err)
	}
	s.revoked(ctx, event.SessionsRevokedData{Scope: event.ScopeSession, Actor: owner, Target: owner, Revoked: n})
	return n, nil
}

func (s *RevocationService) revoked(ctx context.Context, data event.SessionsRevokedData) {
	s.logger.InfoContext(ctx, "sessions revoked",
		slog.String("scope", data.Scope),
		slog.String("actor", data.Actor),
		slog.String("target", data.Target),
		slog.Int64("revoked", data.Revoked),
	)
	logPublishError(ctx, s.logger, event.TypeSessionsRevoked, s.events.SessionsRevoked(ctx, data))
}

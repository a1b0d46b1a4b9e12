package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/labqa/qualitylab/internal/domain"
	"github.com/labqa/qualitylab/pkg/breaker"
	apperrors "github.com/labqa/qualitylab/pkg/errors"
)

// DefaultStoreTimeout bounds a single credential store call.
const DefaultStoreTimeout = 2 * time.Second

// GuardedCredentialStore runs every call of the wrapped store under a
// per-call timeout and a circuit breaker. Store failures, timeouts and
// breaker rejections all surface as apperrors.StoreUnavailable; a lookup
// miss passes through untouched and does not count against the breaker.
type GuardedCredentialStore struct {
	next    CredentialStore
	cb      *breaker.Breaker
	timeout time.Duration
	logger  *slog.Logger
}

var _ CredentialStore = (*GuardedCredentialStore)(nil)

// NewGuardedCredentialStore wraps next. A non-positive timeout falls back to
// DefaultStoreTimeout.
func NewGuardedCredentialStore(next CredentialStore, cfg breaker.Config, timeout time.Duration, logger *slog.Logger) *GuardedCredentialStore {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	cb := breaker.New(cfg, logger, breaker.WithIsSuccessful(func(err error) bool {
		return err == nil || errors.Is(err, apperrors.ErrNotFound)
	}))
	return &GuardedCredentialStore{next: next, cb: cb, timeout: timeout, logger: logger}
}

// Breaker exposes the underlying breaker for readiness reporting.
func (g *GuardedCredentialStore) Breaker() *breaker.Breaker {
	return g.cb
}

func guard[T any](ctx context.Context, g *GuardedCredentialStore, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	v, err := breaker.Execute(ctx, g.cb, func(ctx context.Context) (T, error) {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return fn(ctx)
	})
	if err == nil || errors.Is(err, apperrors.ErrNotFound) {
		return v, err
	}

	var zero T
	if breaker.IsRejection(err) {
		g.logger.WarnContext(ctx, "credential store call rejected by breaker",
			slog.String("op", op),
			slog.String("breaker", g.cb.Name()),
		)
	} else {
		g.logger.ErrorContext(ctx, "credential store call failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
	}
	return zero, apperrors.StoreUnavailable(fmt.Errorf("credential store %s: %w", op, err))
}

func (g *GuardedCredentialStore) Create(ctx context.Context, cred *domain.RefreshCredential) error {
	_, err := guard(ctx, g, "create", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.next.Create(ctx, cred)
	})
	return err
}

func (g *GuardedCredentialStore) FindByToken(ctx context.Context, token string) (*domain.RefreshCredential, error) {
	return guard(ctx, g, "find", func(ctx context.Context) (*domain.RefreshCredential, error) {
		return g.next.FindByToken(ctx, token)
	})
}

func (g *GuardedCredentialStore) Delete(ctx context.Context, token string) (int64, error) {
	return guard(ctx, g, "delete", func(ctx context.Context) (int64, error) {
		return g.next.Delete(ctx, token)
	})
}

func (g *GuardedCredentialStore) DeleteByOwner(ctx context.Context, owner string) (int64, error) {
	return guard(ctx, g, "delete_by_owner", func(ctx context.Context) (int64, error) {
		return g.next.DeleteByOwner(ctx, owner)
	})
}

func (g *GuardedCredentialStore) DeleteByOwnerIssuedBefore(ctx context.Context, owner string, cutoff time.Time) (int64, error) {
	return guard(ctx, g, "delete_by_owner_before", func(ctx context.Context) (int64, error) {
		return g.next.DeleteByOwnerIssuedBefore(ctx, owner, cutoff)
	})
}

func (g *GuardedCredentialStore) DeleteAll(ctx context.Context) (int64, error) {
	return guard(ctx, g, "delete_all", func(ctx context.Context) (int64, error) {
		return g.next.DeleteAll(ctx)
	})
}

func (g *GuardedCredentialStore) DeleteExpiredByOwner(ctx context.Context, owner string, now time.Time) (int64, error) {
	return guard(ctx, g, "delete_expired_by_owner", func(ctx context.Context) (int64, error) {
		return g.next.DeleteExpiredByOwner(ctx, owner, now)
	})
}

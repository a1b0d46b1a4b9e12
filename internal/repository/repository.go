package repository

import (
	"context"
	"time"

	"github.com/labqa/qualitylab/internal/domain"
	"github.com/labqa/qualitylab/pkg/pagination"
)

// CredentialStore persists refresh credentials. Lookups of an unknown token
// return apperrors.ErrNotFound. Deletes are idempotent and report how many
// credentials they removed.
type CredentialStore interface {
	Create(ctx context.Context, cred *domain.RefreshCredential) error

	// FindByToken reads a credential without consuming it.
	FindByToken(ctx context.Context, token string) (*domain.RefreshCredential, error)

	Delete(ctx context.Context, token string) (int64, error)
	DeleteByOwner(ctx context.Context, owner string) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)

	// DeleteByOwnerIssuedBefore removes the owner's credentials created
	// strictly before cutoff and keeps newer ones.
	DeleteByOwnerIssuedBefore(ctx context.Context, owner string, cutoff time.Time) (int64, error)

	// DeleteExpiredByOwner prunes the owner's credentials that expired at or
	// before now.
	DeleteExpiredByOwner(ctx context.Context, owner string, now time.Time) (int64, error)
}

// UserRepository persists lab accounts keyed by email.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	Delete(ctx context.Context, email string) error
}

// TestRepository reads quality tests and records their state changes.
type TestRepository interface {
	List(ctx context.Context, filter domain.TestFilter, page pagination.Params) ([]domain.Test, int, error)
	GetByID(ctx context.Context, id int64) (*domain.Test, error)
	UpdateState(ctx context.Context, change domain.StateChange) error
}

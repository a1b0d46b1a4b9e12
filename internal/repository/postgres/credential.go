package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/labqa/qualitylab/internal/domain"
	"github.com/labqa/qualitylab/pkg/database"
	apperrors "github.com/labqa/qualitylab/pkg/errors"
)

// CredentialStore implements repository.CredentialStore on the
// refresh_tokens table. Every statement is atomic on its own, so a delete
// racing a rotation either happens before or after the rotation's read.
type CredentialStore struct {
	db database.DBTX
}

func NewCredentialStore(db database.DBTX) *CredentialStore {
	return &CredentialStore{db: db}
}

func (s *CredentialStore) Create(ctx context.Context, c *domain.RefreshCredential) (err error) {
	const q = `
		INSERT INTO refresh_tokens (token, user_email, expires_at, created_at)
		VALUES ($1, $2, $3, $4)`

	ctx, end := database.TraceQuery(ctx, "CreateRefreshCredential", q)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, q, c.Token, c.Owner, c.ExpiresAt, c.CreatedAt); err != nil {
		return fmt.Errorf("insert refresh credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) FindByToken(ctx context.Context, token string) (_ *domain.RefreshCredential, err error) {
	const q = `
		SELECT token, user_email, expires_at, created_at
		FROM refresh_tokens
		WHERE token = $1`

	ctx, end := database.TraceQuery(ctx, "FindRefreshCredential", q)
	defer func() { end(err) }()

	var c domain.RefreshCredential
	err = s.db.QueryRow(ctx, q, token).Scan(&c.Token, &c.Owner, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("select refresh credential: %w", err)
	}
	return &c, nil
}

func (s *CredentialStore) Delete(ctx context.Context, token string) (int64, error) {
	return s.exec(ctx, "DeleteRefreshCredential", `DELETE FROM refresh_tokens WHERE token = $1`, token)
}

func (s *CredentialStore) DeleteByOwner(ctx context.Context, owner string) (int64, error) {
	return s.exec(ctx, "DeleteOwnerRefreshCredentials", `DELETE FROM refresh_tokens WHERE user_email = $1`, owner)
}

func (s *CredentialStore) DeleteByOwnerIssuedBefore(ctx context.Context, owner string, cutoff time.Time) (int64, error) {
	return s.exec(ctx, "DeleteOwnerRefreshCredentialsBefore",
		`DELETE FROM refresh_tokens WHERE user_email = $1 AND created_at < $2`, owner, cutoff)
}

func (s *CredentialStore) DeleteAll(ctx context.Context) (int64, error) {
	return s.exec(ctx, "DeleteAllRefreshCredentials", `DELETE FROM refresh_tokens`)
}

func (s *CredentialStore) DeleteExpiredByOwner(ctx context.Context, owner string, now time.Time) (int64, error) {
	return s.exec(ctx, "PruneRefreshCredentials",
		`DELETE FROM refresh_tokens WHERE user_email = $1 AND expires_at <= $2`, owner, now)
}

func (s *CredentialStore) exec(ctx context.Context, op, q string, args ...any) (_ int64, err error) {
	ctx, end := database.TraceQuery(ctx, op, q)
	defer func() { end(err) }()

	tag, err := s.db.Exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}

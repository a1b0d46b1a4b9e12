package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labqa/qualitylab/internal/domain"
	apperrors "github.com/labqa/qualitylab/pkg/errors"
)

func sampleUser() *domain.User {
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	return &domain.User{
		Email:        "ana@lab.test",
		PasswordHash: "$2a$12$hash",
		Role:         domain.RoleUser,
		Name:         "Ana",
		Sex:          "f",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func userRow(u *domain.User) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"email", "password_hash", "role", "name", "birth_date", "sex",
		"eye_correction", "eye_check_date", "avatar_url", "created_at", "updated_at",
	}).AddRow(
		u.Email, u.PasswordHash, string(u.Role), u.Name, u.BirthDate, u.Sex,
		u.EyeCorrection, u.EyeCheckDate, u.AvatarURL, u.CreatedAt, u.UpdatedAt,
	)
}

func TestUserRepository_Create(t *testing.T) {
	mock := newMock(t)
	u := sampleUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(u.Email, u.PasswordHash, "user", u.Name, u.BirthDate, u.Sex,
			u.EyeCorrection, u.EyeCheckDate, u.AvatarURL, u.CreatedAt, u.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewUserRepository(mock).Create(context.Background(), u))
}

func TestUserRepository_Create_Duplicate(t *testing.T) {
	mock := newMock(t)
	u := sampleUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(u.Email, u.PasswordHash, "user", u.Name, u.BirthDate, u.Sex,
			u.EyeCorrection, u.EyeCheckDate, u.AvatarURL, u.CreatedAt, u.UpdatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key"})

	err := NewUserRepository(mock).Create(context.Background(), u)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}

func TestUserRepository_GetByEmail(t *testing.T) {
	mock := newMock(t)
	u := sampleUser()

	mock.ExpectQuery("SELECT .+ FROM users WHERE email =").
		WithArgs(u.Email).
		WillReturnRows(userRow(u))

	got, err := NewUserRepository(mock).GetByEmail(context.Background(), u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, domain.RoleUser, got.Role)
	assert.Nil(t, got.BirthDate)
}

func TestUserRepository_GetByEmail_NotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM users").WithArgs("ghost@lab.test").WillReturnError(pgx.ErrNoRows)

	_, err := NewUserRepository(mock).GetByEmail(context.Background(), "ghost@lab.test")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserRepository_Update(t *testing.T) {
	mock := newMock(t)
	u := sampleUser()

	mock.ExpectExec("UPDATE users").
		WithArgs(u.PasswordHash, "user", u.Name, u.BirthDate, u.Sex,
			u.EyeCorrection, u.EyeCheckDate, u.AvatarURL, pgxmock.AnyArg(), u.Email).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	before := u.UpdatedAt
	require.NoError(t, NewUserRepository(mock).Update(context.Background(), u))
	assert.True(t, u.UpdatedAt.After(before))
}

func TestUserRepository_Update_NotFound(t *testing.T) {
	mock := newMock(t)
	u := sampleUser()

	mock.ExpectExec("UPDATE users").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), u.Email).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := NewUserRepository(mock).Update(context.Background(), u)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUserRepository_Delete(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec("DELETE FROM users WHERE email =").WithArgs("ana@lab.test").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM users WHERE email =").WithArgs("ghost@lab.test").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM users WHERE email =").WithArgs("err@lab.test").
		WillReturnError(errors.New("boom"))

	repo := NewUserRepository(mock)
	require.NoError(t, repo.Delete(context.Background(), "ana@lab.test"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "ghost@lab.test"), apperrors.ErrNotFound)
	assert.ErrorContains(t, repo.Delete(context.Background(), "err@lab.test"), "boom")
}

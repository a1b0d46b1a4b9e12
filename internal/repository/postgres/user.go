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

const userColumns = `email, password_hash, role, name, birth_date, sex, eye_correction, eye_check_date, avatar_url, created_at, updated_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	const q = `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	ctx, end := database.TraceQuery(ctx, "CreateUser", q)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, q,
		u.Email,
		u.PasswordHash,
		string(u.Role),
		u.Name,
		u.BirthDate,
		u.Sex,
		u.EyeCorrection,
		u.EyeCheckDate,
		u.AvatarURL,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (_ *domain.User, err error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	ctx, end := database.TraceQuery(ctx, "GetUserByEmail", q)
	defer func() { end(err) }()

	var (
		u    domain.User
		role string
	)
	err = r.db.QueryRow(ctx, q, email).Scan(
		&u.Email,
		&u.PasswordHash,
		&role,
		&u.Name,
		&u.BirthDate,
		&u.Sex,
		&u.EyeCorrection,
		&u.EyeCheckDate,
		&u.AvatarURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user", email)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Role = domain.Role(role)
	return &u, nil
}

func (r *UserRepository) Update(ctx context.Context, u *domain.User) (err error) {
	const q = `
		UPDATE users
		SET password_hash = $1, role = $2, name = $3, birth_date = $4, sex = $5,
		    eye_correction = $6, eye_check_date = $7, avatar_url = $8, updated_at = $9
		WHERE email = $10`

	ctx, end := database.TraceQuery(ctx, "UpdateUser", q)
	defer func() { end(err) }()

	u.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, q,
		u.PasswordHash,
		string(u.Role),
		u.Name,
		u.BirthDate,
		u.Sex,
		u.EyeCorrection,
		u.EyeCheckDate,
		u.AvatarURL,
		u.UpdatedAt,
		u.Email,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("user", u.Email)
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, email string) (err error) {
	const q = `DELETE FROM users WHERE email = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteUser", q)
	defer func() { end(err) }()

	tag, err := r.db.Exec(ctx, q, email)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("user", email)
	}
	return nil
}

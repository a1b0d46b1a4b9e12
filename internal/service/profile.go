package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/labqa/qualitylab/internal/auth"
	"github.com/labqa/qualitylab/internal/domain"
	"github.com/labqa/qualitylab/internal/event"
	"github.com/labqa/qualitylab/internal/policy"
	"github.com/labqa/qualitylab/internal/repository"
	apperrors "github.com/labqa/qualitylab/pkg/errors"
)

// ProfileService reads, modifies and removes accounts.
type ProfileService struct {
	users      repository.UserRepository
	revocation *RevocationService
	events     Events
	hashCost   int
	logger     *slog.Logger
}

func NewProfileService(users repository.UserRepository, revocation *RevocationService, events Events, logger *slog.Logger, opts ...ProfileOption) *ProfileService {
	s := &ProfileService{
		users:      users,
		revocation: revocation,
		events:     events,
		hashCost:   bcryptCost,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type ProfileOption func(*ProfileService)

func WithProfileHashCost(cost int) ProfileOption {
	return func(s *ProfileService) { s.hashCost = cost }
}

// UpdateProfileInput carries the optional fields of a profile change. Role
// and Name are administrator-only. NewPassword requires OldPassword.
type UpdateProfileInput struct {
	Role          *string
	Name          *string
	BirthDate     *time.Time
	Sex           *string
	EyeCorrection *bool
	EyeCheckDate  *time.Time
	AvatarURL     *string
	OldPassword   *string
	NewPassword   *string
}

func (s *ProfileService) Get(ctx context.Context, actor Actor, email string) (*domain.User, error) {
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if !policy.SelfOrAdmin(actor.Email, actor.Role, email) {
		return nil, auth.Denied("administrator role required to read another profile")
	}
	return s.users.GetByEmail(ctx, email)
}

// Update applies in to the profile of email. A password or role change
// revokes every refresh credential of the account, so the old role cannot be
// rotated into new access tokens.
func (s *ProfileService) Update(ctx context.Context, actor Actor, email string, in UpdateProfileInput) (*domain.User, error) {
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if !policy.SelfOrAdmin(actor.Email, actor.Role, email) {
		return nil, auth.Denied("administrator role required to modify another profile")
	}
	if (in.Role != nil || in.Name != nil) && !policy.AdminOnly(actor.Role) {
		return nil, auth.Denied("administrator role required to change role or name")
	}

	var upd domain.ProfileUpdate
	if in.Role != nil {
		role, err := domain.ParseRole(*in.Role)
		if err != nil {
			return nil, apperrors.InvalidInput(err.Error())
		}
		upd.Role = &role
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	passwordChanged := false
	if in.NewPassword != nil {
		if in.OldPassword == nil {
			return nil, apperrors.InvalidInput("old password is required to change the password")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(*in.OldPassword)); err != nil {
			return nil, apperrors.Unauthorized("old password does not match")
		}
		if err := validatePassword(*in.NewPassword); err != nil {
			return nil, err
		}
		hash, err := hashPassword(*in.NewPassword, s.hashCost)
		if err != nil {
			return nil, err
		}
		upd.PasswordHash = &hash
		passwordChanged = true
	}

	roleChanged := upd.Role != nil && *upd.Role != user.Role

	upd.Name = in.Name
	upd.BirthDate = in.BirthDate
	upd.Sex = in.Sex
	upd.EyeCorrection = in.EyeCorrection
	upd.EyeCheckDate = in.EyeCheckDate
	upd.AvatarURL = in.AvatarURL
	upd.Apply(user)

	// Revocation goes first: if it fails nothing is written, and a retry
	// still sees the change pending.
	if passwordChanged {
		if _, err := s.revocation.LogoutSelf(ctx, email); err != nil {
			return nil, fmt.Errorf("revoke sessions before password change: %w", err)
		}
	}
	if roleChanged {
		if _, err := s.revocation.LogoutOther(ctx, actor, email); err != nil {
			return nil, fmt.Errorf("revoke sessions before role change: %w", err)
		}
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if roleChanged {
		s.identityChanged(ctx, event.IdentityChangedData{
			Email: email, Reason: event.ReasonRoleChanged, Role: string(user.Role),
		})
	}

	s.logger.InfoContext(ctx, "profile updated",
		slog.String("email", email),
		slog.String("actor", actor.Email),
		slog.Bool("password_changed", passwordChanged),
		slog.Bool("role_changed", roleChanged),
	)
	return user, nil
}

// Remove revokes the credentials of email, then deletes the account. An
// unknown account is still swept, so a retry after a partial failure leaves
// no credentials behind.
func (s *ProfileService) Remove(ctx context.Context, actor Actor, email string) error {
	if email == "" {
		return apperrors.InvalidInput("email is required")
	}
	if !policy.SelfOrAdmin(actor.Email, actor.Role, email) {
		return auth.Denied("administrator role required to remove another user")
	}

	if _, err := s.revocation.LogoutOther(ctx, actor, email); err != nil {
		return fmt.Errorf("revoke sessions of removed user: %w", err)
	}
	if err := s.users.Delete(ctx, email); err != nil {
		return err
	}
	s.identityChanged(ctx, event.IdentityChangedData{Email: email, Reason: event.ReasonRemoved})

	s.logger.InfoContext(ctx, "user removed",
		slog.String("email", email),
		slog.String("actor", actor.Email),
	)
	return nil
}

func (s *ProfileService) identityChanged(ctx context.Context, data event.IdentityChangedData) {
	logPublishError(ctx, s.logger, event.TypeIdentityChanged, s.events.IdentityChanged(ctx, data))
}

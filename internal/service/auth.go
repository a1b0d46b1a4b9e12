package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/labqa/qualitylab/internal/auth"
	"github.com/labqa/qualitylab/internal/domain"
	"github.com/labqa/qualitylab/internal/event"
	"github.com/labqa/qualitylab/internal/repository"
	apperrors "github.com/labqa/qualitylab/pkg/errors"
)

// AuthService registers accounts and logs them in.
type AuthService struct {
	users    repository.UserRepository
	creds    repository.CredentialStore
	issuer   *auth.Issuer
	events   Events
	hashCost int
	now      func() time.Time
	logger   *slog.Logger
}

// AuthOption customises an AuthService.
type AuthOption func(*AuthService)

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) AuthOption {
	return func(s *AuthService) { s.hashCost = cost }
}

// WithAuthClock replaces time.Now for pruning expired credentials.
func WithAuthClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

func NewAuthService(
	users repository.UserRepository,
	creds repository.CredentialStore,
	issuer *auth.Issuer,
	events Events,
	logger *slog.Logger,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		users:    users,
		creds:    creds,
		issuer:   issuer,
		events:   events,
		hashCost: bcryptCost,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterInput holds the parameters for creating an account.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// LoginInput holds the parameters for a login.
type LoginInput struct {
	Email    string
	Password string
}

// Register creates an account with the default role. It does not log the
// new account in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	if in.Email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperrors.InvalidInput("name is required")
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := hashPassword(in.Password, s.hashCost)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &domain.User{
		Email:        in.Email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Name:         in.Name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered", slog.String("email", user.Email))
	return user, nil
}

// Login verifies the password and issues a token pair. Unknown emails and
// wrong passwords produce the same error.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*domain.User, *domain.TokenPair, error) {
	if in.Email == "" || in.Password == "" {
		return nil, nil, apperrors.InvalidInput("email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, auth.InvalidCredentials()
		}
		return nil, nil, fmt.Errorf("get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, nil, auth.InvalidCredentials()
	}

	// Pruning is housekeeping; a failure here must not block the login.
	if n, err := s.creds.DeleteExpiredByOwner(ctx, user.Email, s.now()); err != nil {
		s.logger.WarnContext(ctx, "failed to prune expired credentials",
			slog.String("email", user.Email),
			slog.String("error", err.Error()),
		)
	} else if n > 0 {
		s.logger.DebugContext(ctx, "pruned expired credentials",
			slog.String("email", user.Email),
			slog.Int64("count", n),
		)
	}

	pair, err := s.issuer.IssuePair(ctx, user.Email, user.Role)
	if err != nil {
		return nil, nil, fmt.Errorf("issue tokens: %w", err)
	}

	logPublishError(ctx, s.logger, event.TypeLoggedIn, s.events.LoggedIn(ctx, user.Email, user.Role))

	s.logger.InfoContext(ctx, "user logged in", slog.String("email", user.Email))
	return user, pair, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	return nil
}

func hashPassword(password string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

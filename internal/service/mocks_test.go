package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/labqa/qualitylab/internal/auth"
	"github.com/labqa/qualitylab/internal/domain"
	"github.com/labqa/qualitylab/internal/event"
	"github.com/labqa/qualitylab/pkg/pagination"
)

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) Update(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUserRepository) Delete(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

// --- Mock Credential Store ---

type mockCredentialStore struct {
	mock.Mock
}

func (m *mockCredentialStore) Create(ctx context.Context, cred *domain.RefreshCredential) error {
	return m.Called(ctx, cred).Error(0)
}

func (m *mockCredentialStore) FindByToken(ctx context.Context, token string) (*domain.RefreshCredential, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshCredential), args.Error(1)
}

func (m *mockCredentialStore) Delete(ctx context.Context, token string) (int64, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCredentialStore) DeleteByOwner(ctx context.Context, owner string) (int64, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCredentialStore) DeleteByOwnerIssuedBefore(ctx context.Context, owner string, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, owner, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCredentialStore) DeleteAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockCredentialStore) DeleteExpiredByOwner(ctx context.Context, owner string, now time.Time) (int64, error) {
	args := m.Called(ctx, owner, now)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock Test Repository ---

type mockTestRepository struct {
	mock.Mock
}

func (m *mockTestRepository) List(ctx context.Context, f domain.TestFilter, page pagination.Params) ([]domain.Test, int, error) {
	args := m.Called(ctx, f, page)
	return args.Get(0).([]domain.Test), args.Int(1), args.Error(2)
}

func (m *mockTestRepository) GetByID(ctx context.Context, id int64) (*domain.Test, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Test), args.Error(1)
}

func (m *mockTestRepository) UpdateState(ctx context.Context, c domain.StateChange) error {
	return m.Called(ctx, c).Error(0)
}

// --- Recording Events ---

type recordingEvents struct {
	loggedIn []string
	revoked  []event.SessionsRevokedData
	changed  []event.IdentityChangedData
	err      error
}

func (r *recordingEvents) LoggedIn(_ context.Context, email string, _ domain.Role) error {
	r.loggedIn = append(r.loggedIn, email)
	return r.err
}

func (r *recordingEvents) SessionsRevoked(_ context.Context, data event.SessionsRevokedData) error {
	r.revoked = append(r.revoked, data)
	return r.err
}

func (r *recordingEvents) IdentityChanged(_ context.Context, data event.IdentityChangedData) error {
	r.changed = append(r.changed, data)
	return r.err
}

// --- Test Helpers ---

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestIssuer(t *testing.T, store auth.CredentialCreator) *auth.Issuer {
	t.Helper()
	codec, err := auth.NewCodec("service-test-secret-0123456789abcdef", "HS256",
		auth.WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	return auth.NewIssuer(codec, store, 0, 0)
}

// hashForTest creates a bcrypt hash with the minimum cost for fast tests.
func hashForTest(password string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}

func strPtr(s string) *string {
	return &s
}

var (
	admin = Actor{Email: "root@lab.test", Role: domain.RoleAdministrator}
	ana   = Actor{Email: "ana@lab.test", Role: domain.RoleUser}
)

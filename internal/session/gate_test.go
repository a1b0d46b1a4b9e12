package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labqa/qualitylab/internal/auth"
	"github.com/labqa/qualitylab/internal/domain"
	apperrors "github.com/labqa/qualitylab/pkg/errors"
)

const testSecret = "gate-test-secret-0123456789abcdef"

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// memStore is a credential store backed by a map.
type memStore struct {
	mu    sync.Mutex
	creds map[string]domain.RefreshCredential
	err   error
}

func newMemStore() *memStore {
	return &memStore{creds: map[string]domain.RefreshCredential{}}
}

func (s *memStore) Create(_ context.Context, c *domain.RefreshCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[c.Token] = *c
	return nil
}

func (s *memStore) FindByToken(_ context.Context, token string) (*domain.RefreshCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.creds[token]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &c, nil
}

func (s *memStore) delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, token)
}

type userStore struct {
	users map[string]domain.Role
	err   error
}

func (u *userStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if u.err != nil {
		return nil, u.err
	}
	role, ok := u.users[email]
	if !ok {
		return nil, apperrors.NotFound("user", email)
	}
	return &domain.User{Email: email, Role: role}, nil
}

type fixture struct {
	clk    *clock
	codec  *auth.Codec
	issuer *auth.Issuer
	store  *memStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{t: t0}
	codec, err := auth.NewCodec(testSecret, "HS256", auth.WithClock(clk.Now))
	require.NoError(t, err)
	store := newMemStore()
	return &fixture{
		clk:    clk,
		codec:  codec,
		issuer: auth.NewIssuer(codec, store, 0, 0),
		store:  store,
	}
}

func (f *fixture) gate(opts ...Option) *Gate {
	return New(f.codec, f.issuer, f.store, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func (f *fixture) login(t *testing.T, email string, role domain.Role) *domain.TokenPair {
	t.Helper()
	pair, err := f.issuer.IssuePair(context.Background(), email, role)
	require.NoError(t, err)
	return pair
}

func requireStatus(t *testing.T, err error, status int, sentinel error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, status, apperrors.HTTPStatus(err))
	if sentinel != nil {
		assert.ErrorIs(t, err, sentinel)
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeTrusting, m)

	m, err = ParseMode("strict")
	require.NoError(t, err)
	assert.Equal(t, ModeStrict, m)

	_, err = ParseMode("Strict")
	assert.Error(t, err)
}

func TestGate_MissingAccessToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate().Authenticate(context.Background(), "", "anything")
	requireStatus(t, err, http.StatusUnauthorized, auth.ErrMissingCredential)
}

func TestGate_MalformedToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate().Authenticate(context.Background(), "not.a.jwt", "")
	requireStatus(t, err, http.StatusUnauthorized, auth.ErrMalformedToken)
}

func TestGate_BadSignature(t *testing.T) {
	f := newFixture(t)
	other, err := auth.NewCodec("some-other-secret-0123456789abcdef", "HS256", auth.WithClock(f.clk.Now))
	require.NoError(t, err)
	forged, err := other.Sign(auth.NewClaims("ana@lab.test", domain.RoleAdministrator, t0, time.Minute))
	require.NoError(t, err)

	_, err = f.gate().Authenticate(context.Background(), forged, "")
	requireStatus(t, err, http.StatusUnauthorized, auth.ErrBadSignature)
}

func TestGate_FreshToken(t *testing.T) {
	f := newFixture(t)
	pair := f.login(t, "ana@lab.test", domain.RoleUser)

	f.clk.Advance(15*time.Minute - time.Second)
	res, err := f.gate().Authenticate(context.Background(), pair.AccessToken, "")
	require.NoError(t, err)
	assert.Equal(t, "ana@lab.test", res.Email)
	assert.Equal(t, domain.RoleUser, res.Role)
	assert.Empty(t, res.RotatedToken)
}

func TestGate_ExpiredWithoutRefresh(t *testing.T) {
	f := newFixture(t)
	pair := f.login(t, "ana@lab.test", domain.RoleUser)

	f.clk.Advance(15 * time.Minute)
	_, err := f.gate().Authenticate(context.Background(), pair.AccessToken, "")
	requireStatus(t, err, http.StatusBadRequest, auth.ErrMissingCredential)
}

func TestGate_RotationIsNonConsumingUntilRefreshExpiry(t *testing.T) {
	f := newFixture(t)
	g := f.gate()
	pair := f.login(t, "ana@lab.test", domain.RoleAdministrator)

	f.clk.Advance(16 * time.Minute)
	first, err := g.Authenticate(context.Background(), pair.AccessToken, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, first.RotatedToken)
	assert.Equal(t, domain.RoleAdministrator, first.Role)
	assert.True(t, f.clk.Now().Add(auth.DefaultAccessTTL).Equal(first.RotatedExpiresAt))

	claims, err := f.codec.Verify(first.RotatedToken)
	require.NoError(t, err)
	assert.Equal(t, "ana@lab.test", claims.Subject)
	assert.Equal(t, string(domain.RoleAdministrator), claims.Role)

	// The same refresh credential keeps working with the original token.
	f.clk.t = t0.Add(7*24*time.Hour - time.Second)
	again, err := g.Authenticate(context.Background(), pair.AccessToken, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, again.RotatedToken)

	f.clk.t = t0.Add(7 * 24 * time.Hour)
	_, err = g.Authenticate(context.Background(), pair.AccessToken, pair.RefreshToken)
	requireStatus(t, err, http.StatusUnauthorized, auth.ErrExpiredOrUnknownRefreshCredential)
}

func TestGate_RevokedCredentialStopsRotation(t *testing.T) {
	f := newFixture(t)
	g := f.gate()
	pair := f.login(t, "ana@lab.test", domain.RoleUser)

	f.clk.Advance(time.Hour)
	_, err := g.Authenticate(context.Background(), pair.AccessToken, pair.RefreshToken)
	require.NoError(t, err)

	f.store.delete(pair.RefreshToken)
	_, err = g.Authenticate(context.Background(), pair.AccessToken, pair.RefreshToken)
	requireStatus(t, err, http.StatusUnauthorized, auth.ErrExpiredOrUnknownRefreshCredential)
}

func TestGate_RevocationDoesNotInvalidateFreshToken(t *testing.T) {
	f := newFixture(t)
	pair := f.login(t, "ana@lab.test", domain.RoleUser)
	f.store.delete(pair.RefreshToken)

	res, err := f.gate().Authenticate(context.Background(), pair.AccessToken, "")
	require.NoError(t, err)
	assert.Equal(t, "ana@lab.test", res.Email)
}

func TestGate_RefreshOfAnotherSubject(t *testing.T) {
	f := newFixture(t)
	ana := f.login(t, "ana@lab.test", domain.RoleUser)
	bob := f.login(t, "bob@lab.test", domain.RoleAdministrator)

	f.clk.Advance(time.Hour)
	_, err := f.gate().Authenticate(context.Background(), ana.AccessToken, bob.RefreshToken)
	requireStatus(t, err, http.StatusUnauthorized, auth.ErrExpiredOrUnknownRefreshCredential)
}

func TestGate_ExpiredTokenWithoutRoleDoesNotRotate(t *testing.T) {
	f := newFixture(t)
	pair := f.login(t, "ana@lab.test", domain.RoleUser)
	roleless, err := f.codec.Sign(auth.NewClaims("ana@lab.test", "", t0, time.Minute))
	require.NoError(t, err)

	f.clk.Advance(time.Hour)
	_, err = f.gate().Authenticate(context.Background(), roleless, pair.RefreshToken)
	requireStatus(t, err, http.StatusUnauthorized, auth.ErrMalformedToken)
}

func TestGate_UnknownRoleClaimRejected(t *testing.T) {
	f := newFixture(t)
	token, err := f.codec.Sign(auth.NewClaims("ana@lab.test", "Administrator", t0, time.Minute))
	require.NoError(t, err)

	_, err = f.gate().Authenticate(context.Background(), token, "")
	requireStatus(t, err, http.StatusUnauthorized, auth.ErrMalformedToken)
}

func TestGate_StoreFailureIsUnavailable(t *testing.T) {
	f := newFixture(t)
	pair := f.login(t, "ana@lab.test", domain.RoleUser)
	f.store.err = errors.New("connection reset")

	f.clk.Advance(time.Hour)
	_, err := f.gate().Authenticate(context.Background(), pair.AccessToken, pair.RefreshToken)
	requireStatus(t, err, http.StatusServiceUnavailable, apperrors.ErrServiceUnavail)
}

func TestGate_StrictMode(t *testing.T) {
	f := newFixture(t)
	users := &userStore{users: map[string]domain.Role{"ana@lab.test": domain.RoleUser}}
	g := f.gate(WithStrictMode(users))
	assert.Equal(t, ModeStrict, g.Mode())

	// Token still claims administrator after a demotion.
	pair := f.login(t, "ana@lab.test", domain.RoleAdministrator)

	res, err := g.Authenticate(context.Background(), pair.AccessToken, "")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, res.Role)

	f.clk.Advance(time.Hour)
	res, err = g.Authenticate(context.Background(), pair.AccessToken, pair.RefreshToken)
	require.NoError(t, err)
	claims, err := f.codec.Verify(res.RotatedToken)
	require.NoError(t, err)
	assert.Equal(t, string(domain.RoleUser), claims.Role)

	delete(users.users, "ana@lab.test")
	_, err = g.Authenticate(context.Background(), pair.AccessToken, pair.RefreshToken)
	requireStatus(t, err, http.StatusUnauthorized, apperrors.ErrUnauthorized)

	users.err = errors.New("pool exhausted")
	_, err = g.Authenticate(context.Background(), pair.AccessToken, pair.RefreshToken)
	requireStatus(t, err, http.StatusServiceUnavailable, apperrors.ErrServiceUnavail)
}

func TestGate_Authenticator(t *testing.T) {
	f := newFixture(t)
	pair := f.login(t, "ana@lab.test", domain.RoleUser)
	authenticate := f.gate().Authenticator()

	id, err := authenticate(context.Background(), pair.AccessToken, "")
	require.NoError(t, err)
	assert.Equal(t, "ana@lab.test", id.Email)
	assert.Equal(t, "user", id.Role)
	assert.Empty(t, id.RotatedToken)

	f.clk.Advance(time.Hour)
	id, err = authenticate(context.Background(), pair.AccessToken, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, id.RotatedToken)

	_, err = authenticate(context.Background(), "", "")
	assert.Error(t, err)
}

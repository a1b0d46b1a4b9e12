package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/labqa/qualitylab/internal/domain"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour

	// RefreshTokenBytes of entropy, hex encoded to twice as many characters.
	RefreshTokenBytes = 64
)

// CredentialCreator persists new refresh credentials.
type CredentialCreator interface {
	Create(ctx context.Context, cred *domain.RefreshCredential) error
}

// Issuer mints access tokens and refresh credentials.
type Issuer struct {
	codec      *Codec
	store      CredentialCreator
	accessTTL  time.Duration
	refreshTTL time.Duration
	random     io.Reader
}

// IssuerOption customises an Issuer.
type IssuerOption func(*Issuer)

// WithRandom replaces crypto/rand as the refresh credential entropy source.
func WithRandom(r io.Reader) IssuerOption {
	return func(i *Issuer) { i.random = r }
}

// NewIssuer uses the package defaults for zero TTLs.
func NewIssuer(codec *Codec, store CredentialCreator, accessTTL, refreshTTL time.Duration, opts ...IssuerOption) *Issuer {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	i := &Issuer{
		codec:      codec,
		store:      store,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		random:     rand.Reader,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Issuer) IssueAccessToken(subject string, role domain.Role) (domain.AccessToken, error) {
	claims := NewClaims(subject, role, i.codec.Now(), i.accessTTL)
	signed, err := i.codec.Sign(claims)
	if err != nil {
		return domain.AccessToken{}, err
	}
	return domain.AccessToken{Value: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// IssueRefreshCredential stores a new random credential for owner. Owners
// may hold any number of credentials at once.
func (i *Issuer) IssueRefreshCredential(ctx context.Context, owner string) (*domain.RefreshCredential, error) {
	buf := make([]byte, RefreshTokenBytes)
	if _, err := io.ReadFull(i.random, buf); err != nil {
		return nil, fmt.Errorf("generate refresh credential: %w", err)
	}

	now := i.codec.Now().UTC()
	cred := &domain.RefreshCredential{
		Token:     hex.EncodeToString(buf),
		Owner:     owner,
		ExpiresAt: now.Add(i.refreshTTL),
		CreatedAt: now,
	}
	if err := i.store.Create(ctx, cred); err != nil {
		return nil, fmt.Errorf("store refresh credential: %w", err)
	}
	return cred, nil
}

// IssuePair issues both halves of a login.
func (i *Issuer) IssuePair(ctx context.Context, subject string, role domain.Role) (*domain.TokenPair, error) {
	access, err := i.IssueAccessToken(subject, role)
	if err != nil {
		return nil, err
	}
	cred, err := i.IssueRefreshCredential(ctx, subject)
	if err != nil {
		return nil, err
	}
	return &domain.TokenPair{
		AccessToken:           access.Value,
		AccessTokenExpiresAt:  access.ExpiresAt,
		RefreshToken:          cred.Token,
		RefreshTokenExpiresAt: cred.ExpiresAt,
	}, nil
}

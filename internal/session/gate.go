// Package session decides whether a request's credentials admit it, rotating
// an expired access token when a valid refresh credential comes with it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/labqa/qualitylab/internal/auth"
	"github.com/labqa/qualitylab/internal/domain"
	apperrors "github.com/labqa/qualitylab/pkg/errors"
	"github.com/labqa/qualitylab/pkg/middleware"
	"github.com/labqa/qualitylab/pkg/tracing"
)

// Mode selects how much the gate trusts the role claim of a valid token.
type Mode string

const (
	// ModeTrusting accepts the identity encoded in the token.
	ModeTrusting Mode = "trusting"
	// ModeStrict re-reads the identity from the user store on every request
	// and uses the stored role.
	ModeStrict Mode = "strict"
)

// ParseMode accepts "trusting", "strict" or "" (trusting).
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeTrusting:
		return ModeTrusting, nil
	case ModeStrict:
		return ModeStrict, nil
	default:
		return "", fmt.Errorf("unknown gate mode %q", s)
	}
}

// Gate outcomes, also used as metric label values.
const (
	OutcomeFresh           = "fresh"
	OutcomeRotated         = "rotated"
	OutcomeMissing         = "missing_access_token"
	OutcomeMalformed       = "malformed"
	OutcomeBadSignature    = "bad_signature"
	OutcomeMissingRefresh  = "missing_refresh_credential"
	OutcomeUnknownRefresh  = "unknown_refresh_credential"
	OutcomeUnknownIdentity = "unknown_identity"
	OutcomeUnavailable     = "store_unavailable"
	OutcomeInternal        = "internal"
)

var outcomesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "session_gate_outcomes_total",
		Help: "Session gate decisions by outcome.",
	},
	[]string{"outcome"},
)

// CredentialFinder reads refresh credentials without consuming them.
type CredentialFinder interface {
	FindByToken(ctx context.Context, token string) (*domain.RefreshCredential, error)
}

// IdentityLookup resolves an account in strict mode.
type IdentityLookup interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Result is the admitted identity. RotatedToken is empty unless a new access
// token was minted for this request.
type Result struct {
	Email            string
	Role             domain.Role
	RotatedToken     string
	RotatedExpiresAt time.Time
}

// Gate validates access tokens and performs rotation. It holds no mutable
// state and is safe for concurrent use.
type Gate struct {
	codec  *auth.Codec
	issuer *auth.Issuer
	creds  CredentialFinder
	users  IdentityLookup
	mode   Mode
	tracer trace.Tracer
	logger *slog.Logger
}

// Option customises a Gate.
type Option func(*Gate)

// WithStrictMode makes the gate re-read every identity through users.
func WithStrictMode(users IdentityLookup) Option {
	return func(g *Gate) {
		g.mode = ModeStrict
		g.users = users
	}
}

// New builds a trusting gate unless WithStrictMode is given.
func New(codec *auth.Codec, issuer *auth.Issuer, creds CredentialFinder, logger *slog.Logger, opts ...Option) *Gate {
	g := &Gate{
		codec:  codec,
		issuer: issuer,
		creds:  creds,
		mode:   ModeTrusting,
		tracer: tracing.Tracer("qualitylab/session"),
		logger: logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Mode reports the configured mode.
func (g *Gate) Mode() Mode {
	return g.mode
}

// Authenticate admits or rejects a request. Errors are AppErrors wrapping the
// auth sentinels, or apperrors.StoreUnavailable when a backing store failed.
func (g *Gate) Authenticate(ctx context.Context, accessToken, refreshToken string) (*Result, error) {
	ctx, span := g.tracer.Start(ctx, "session.Authenticate",
		trace.WithAttributes(attribute.String("session.mode", string(g.mode))))
	defer span.End()

	res, outcome, err := g.authenticate(ctx, accessToken, refreshToken)
	outcomesTotal.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.String("session.outcome", outcome))
	if err != nil {
		span.SetStatus(codes.Error, outcome)
		return nil, err
	}
	return res, nil
}

func (g *Gate) authenticate(ctx context.Context, accessToken, refreshToken string) (*Result, string, error) {
	if accessToken == "" {
		return nil, OutcomeMissing, auth.MissingAccessToken()
	}

	claims, err := g.codec.Verify(accessToken)
	switch {
	case err == nil:
		return g.fresh(ctx, claims)
	case errors.Is(err, auth.ErrExpiredAccessToken):
		return g.rotate(ctx, claims, refreshToken)
	case errors.Is(err, auth.ErrBadSignature):
		return nil, OutcomeBadSignature, auth.BadSignature()
	default:
		return nil, OutcomeMalformed, auth.MalformedToken()
	}
}

func (g *Gate) fresh(ctx context.Context, claims *auth.Claims) (*Result, string, error) {
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return nil, OutcomeMalformed, auth.MalformedToken()
	}
	if g.mode == ModeStrict {
		var outcome string
		if role, outcome, err = g.lookup(ctx, claims.Subject); err != nil {
			return nil, outcome, err
		}
	}
	return &Result{Email: claims.Subject, Role: role}, OutcomeFresh, nil
}

func (g *Gate) rotate(ctx context.Context, claims *auth.Claims, refreshToken string) (*Result, string, error) {
	// An empty or unknown role claim never rotates.
	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return nil, OutcomeMalformed, auth.MalformedToken()
	}
	if refreshToken == "" {
		return nil, OutcomeMissingRefresh, auth.MissingRefreshCredential()
	}

	cred, err := g.creds.FindByToken(ctx, refreshToken)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrNotFound):
		return nil, OutcomeUnknownRefresh, auth.UnknownRefreshCredential()
	default:
		return nil, OutcomeUnavailable, storeUnavailable(err)
	}

	now := g.codec.Now()
	if cred.ExpiredAt(now) {
		return nil, OutcomeUnknownRefresh, auth.UnknownRefreshCredential()
	}
	if cred.Owner != claims.Subject {
		g.logger.WarnContext(ctx, "refresh credential presented for another subject",
			slog.String("subject", claims.Subject),
		)
		return nil, OutcomeUnknownRefresh, auth.UnknownRefreshCredential()
	}

	if g.mode == ModeStrict {
		var outcome string
		if role, outcome, err = g.lookup(ctx, claims.Subject); err != nil {
			return nil, outcome, err
		}
	}

	minted, err := g.issuer.IssueAccessToken(claims.Subject, role)
	if err != nil {
		return nil, OutcomeInternal, apperrors.Internal(fmt.Errorf("mint rotated access token: %w", err))
	}

	g.logger.DebugContext(ctx, "access token rotated",
		slog.String("subject", claims.Subject),
		slog.Time("expires_at", minted.ExpiresAt),
	)
	return &Result{
		Email:            claims.Subject,
		Role:             role,
		RotatedToken:     minted.Value,
		RotatedExpiresAt: minted.ExpiresAt,
	}, OutcomeRotated, nil
}

// lookup returns the stored role for email.
func (g *Gate) lookup(ctx context.Context, email string) (domain.Role, string, error) {
	user, err := g.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return user.Role, "", nil
	case errors.Is(err, apperrors.ErrNotFound):
		return "", OutcomeUnknownIdentity, apperrors.Unauthorized("unknown identity")
	default:
		return "", OutcomeUnavailable, storeUnavailable(err)
	}
}

func storeUnavailable(err error) error {
	if errors.Is(err, apperrors.ErrServiceUnavail) {
		return err
	}
	return apperrors.StoreUnavailable(err)
}

// Authenticator adapts the gate to the HTTP session middleware.
func (g *Gate) Authenticator() middleware.Authenticator {
	return func(ctx context.Context, accessToken, refreshToken string) (middleware.Identity, error) {
		res, err := g.Authenticate(ctx, accessToken, refreshToken)
		if err != nil {
			return middleware.Identity{}, err
		}
		return middleware.Identity{
			Email:        res.Email,
			Role:         string(res.Role),
			RotatedToken: res.RotatedToken,
		}, nil
	}
}

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/labqa/qualitylab/internal/domain"
)

// Claims is the payload of an access token. The subject is the account email.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewClaims builds claims valid from issuedAt for at least ttl. The token
// encodes whole seconds, so iat rounds down and exp rounds up.
func NewClaims(subject string, role domain.Role, issuedAt time.Time, ttl time.Duration) *Claims {
	issuedAt = issuedAt.UTC()
	return &Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt.Truncate(time.Second)),
			ExpiresAt: jwt.NewNumericDate(ceilSecond(issuedAt.Add(ttl))),
		},
	}
}

func ceilSecond(t time.Time) time.Time {
	if down := t.Truncate(time.Second); down.Before(t) {
		return down.Add(time.Second)
	}
	return t
}

// Codec signs and verifies access tokens with a fixed HMAC secret and
// algorithm chosen at construction.
type Codec struct {
	secret []byte
	method jwt.SigningMethod
	issuer string
	now    func() time.Time
}

// CodecOption customises a Codec.
type CodecOption func(*Codec)

// WithClock replaces time.Now for expiry checks and issuance.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

// WithIssuer stamps and requires the iss claim.
func WithIssuer(iss string) CodecOption {
	return func(c *Codec) { c.issuer = iss }
}

// NewCodec fails on an empty secret or a non-HMAC algorithm.
func NewCodec(secret, algorithm string, opts ...CodecOption) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token codec: empty signing secret")
	}

	var method jwt.SigningMethod
	switch algorithm {
	case "HS256", "":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("token codec: unsupported algorithm %q", algorithm)
	}

	c := &Codec{secret: []byte(secret), method: method, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Now returns the codec's current time.
func (c *Codec) Now() time.Time {
	return c.now()
}

// Algorithm returns the JWS alg header value.
func (c *Codec) Algorithm() string {
	return c.method.Alg()
}

func (c *Codec) Sign(claims *Claims) (string, error) {
	if c.issuer != "" && claims.Issuer == "" {
		claims.Issuer = c.issuer
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify checks signature first and expiry second. For an expired token it
// returns the decoded claims together with ErrExpiredAccessToken.
func (c *Codec) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrBadSignature
	case errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenInvalidIssuer):
		if claims.Subject == "" {
			return nil, ErrMalformedToken
		}
		return claims, ErrExpiredAccessToken
	default:
		return nil, ErrMalformedToken
	}

	if claims.Subject == "" {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

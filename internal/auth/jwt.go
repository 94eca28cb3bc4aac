package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload carried by tokens issued and accepted by JWT.
type Claims struct {
	Subject   string `json:"sub"`
	ExpiresAt uint64 `json:"exp"`
	IssuedAt  uint64 `json:"iat"`
}

// NewClaims creates claims for subject issued at now and expiring after ttl.
// A negative ttl yields claims that are already expired.
func NewClaims(subject string, now time.Time, ttl time.Duration) Claims {
	if ttl < 0 {
		ttl = 0
	}
	iat := uint64(now.Unix())
	return Claims{
		Subject:   subject,
		IssuedAt:  iat,
		ExpiresAt: iat + uint64(ttl/time.Second),
	}
}

// Expired reports whether the claims are no longer valid at now.
func (c Claims) Expired(now time.Time) bool {
	return uint64(now.Unix()) >= c.ExpiresAt
}

func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) {
	if c.ExpiresAt == 0 {
		return nil, nil
	}
	return jwt.NewNumericDate(time.Unix(int64(c.ExpiresAt), 0)), nil
}

func (c Claims) GetIssuedAt() (*jwt.NumericDate, error) {
	if c.IssuedAt == 0 {
		return nil, nil
	}
	return jwt.NewNumericDate(time.Unix(int64(c.IssuedAt), 0)), nil
}

func (c Claims) GetNotBefore() (*jwt.NumericDate, error) { return nil, nil }
func (c Claims) GetIssuer() (string, error)              { return "", nil }
func (c Claims) GetSubject() (string, error)             { return c.Subject, nil }
func (c Claims) GetAudience() (jwt.ClaimStrings, error)  { return nil, nil }

// JWT validates HS256 signed tokens with a shared secret.
type JWT struct {
	secret []byte
	now    func() time.Time
	leeway time.Duration
}

// JWTOption configures a JWT validator.
type JWTOption func(*JWT)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) JWTOption {
	return func(j *JWT) { j.now = now }
}

// WithLeeway tolerates clock skew when checking expiry.
func WithLeeway(d time.Duration) JWTOption {
	return func(j *JWT) { j.leeway = d }
}

// NewJWT creates an HS256 validator. The secret must not be empty.
func NewJWT(secret []byte, opts ...JWTOption) (*JWT, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret cannot be empty")
	}
	j := &JWT{
		secret: secret,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Encode signs claims into a compact token.
func (j *JWT) Encode(claims Claims) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Issue signs fresh claims for subject valid for ttl.
func (j *JWT) Issue(subject string, ttl time.Duration) (string, error) {
	return j.Encode(NewClaims(subject, j.now(), ttl))
}

// Decode verifies the signature and expiry of token and returns its claims.
// Expired tokens fail with KindExpired; every other failure is KindMalformed.
func (j *JWT) Decode(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return j.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
		jwt.WithLeeway(j.leeway),
	)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, &Error{Kind: KindExpired, Err: err}
	default:
		return nil, Malformed(err.Error(), err)
	}
}

// Validate implements Validator.
func (j *JWT) Validate(_ context.Context, token string) error {
	_, err := j.Decode(token)
	return err
}

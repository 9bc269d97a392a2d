package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"live-quiz-engine/internal/domain"
)

// Claims is the token body the engine accepts. UserID falls back to the
// registered subject when absent.
type Claims struct {
	UserID string      `json:"user_id,omitempty"`
	Name   string      `json:"name,omitempty"`
	Role   domain.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWT validates and issues HS256 tokens with a shared secret.
type JWT struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

type Option func(*JWT)

// WithIssuer requires (and stamps) the iss claim.
func WithIssuer(issuer string) Option { return func(j *JWT) { j.issuer = issuer } }

// WithLeeway tolerates clock skew on exp/nbf checks.
func WithLeeway(d time.Duration) Option { return func(j *JWT) { j.leeway = d } }

// WithTimeFunc overrides the clock used for validation and issuing.
func WithTimeFunc(now func() time.Time) Option { return func(j *JWT) { j.now = now } }

func NewJWT(secret string, opts ...Option) (*JWT, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	j := &JWT{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// ValidateCredential implements app.IdentityProvider.
func (j *JWT) ValidateCredential(_ context.Context, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing credential", domain.ErrUnauthorized)
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.leeway),
		jwt.WithTimeFunc(j.now),
	}
	if j.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return j.secret, nil
	}, parserOpts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.Identity{}, fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return domain.Identity{}, fmt.Errorf("%w: malformed token", domain.ErrUnauthorized)
	case err != nil:
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return domain.Identity{}, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}
	role := claims.Role
	switch role {
	case "":
		role = domain.RoleParticipant
	case domain.RoleParticipant, domain.RoleHost, domain.RoleAdmin:
	default:
		return domain.Identity{}, fmt.Errorf("%w: unknown role %q", domain.ErrUnauthorized, role)
	}
	return domain.Identity{UserID: userID, Name: claims.Name, Role: role}, nil
}

// Issue signs a token for identity that expires after ttl.
func (j *JWT) Issue(identity domain.Identity, ttl time.Duration) (string, error) {
	now := j.now()
	claims := Claims{
		UserID: identity.UserID,
		Name:   identity.Name,
		Role:   identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

package auth

import (
	"context"
	"fmt"
	"time"

	"raine/internal/errors"
	"raine/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the verified caller of a callable operation.
type Identity struct {
	UserID string
	Email  string
}

// Verifier turns a bearer credential into a caller identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// Claims carried by caller tokens. The subject is the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

// NewJWTVerifier creates a verifier from the auth configuration
func NewJWTVerifier(cfg models.AuthConfig) *JWTVerifier {
	return &JWTVerifier{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   30 * time.Second,
	}
}

// Verify parses and validates a token. Every failure is UNAUTHENTICATED.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	if len(v.secret) == 0 {
		return nil, errors.NewUnauthenticatedError("token verification not configured")
	}
	if token == "" {
		return nil, errors.NewUnauthenticatedError("missing token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnauthenticated, "invalid token").
			WithUserMessage("User must be authenticated")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.NewUnauthenticatedError("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, errors.NewUnauthenticatedError("token has no subject")
	}

	return &Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// Sign issues a token for userID. Used by operator tooling and tests.
func (v *JWTVerifier) Sign(userID, email string, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", fmt.Errorf("jwt secret not configured")
	}
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

type identityKey struct{}

// WithIdentity stores the verified caller in ctx
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	ctx = errors.ContextWithUserID(ctx, id.UserID)
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the verified caller, if any
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}

// RequireUserID returns the caller's user id or an UNAUTHENTICATED error
func RequireUserID(ctx context.Context) (string, error) {
	id, ok := FromContext(ctx)
	if !ok || id.UserID == "" {
		return "", errors.NewUnauthenticatedError("no caller identity")
	}
	return id.UserID, nil
}

// Package auth verifies bearer tokens that carry the caller's external
// user id and role. Tokens are issued by the platform's user service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"liveclass/pkg/types"
)

var (
	ErrMissingAuthHeader = errors.New("missing or malformed Authorization header")
	ErrInvalidToken      = errors.New("invalid token")
	ErrInvalidClaims     = errors.New("invalid token claims")
)

// Claims is the token body: sub is the external user id.
type Claims struct {
	Role types.Role `json:"role"`
	jwt.RegisteredClaims
}

// Caller is an authenticated principal
type Caller struct {
	UserID string
	Role   types.Role
}

// Verifier checks HS256 tokens against a shared secret
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a raw token string
func (v *Verifier) Verify(tokenStr string) (Caller, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Caller{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !types.IsValidUserID(claims.Subject) || !claims.Role.IsValid() {
		return Caller{}, ErrInvalidClaims
	}
	return Caller{UserID: claims.Subject, Role: claims.Role}, nil
}

// FromRequest extracts and verifies the Authorization bearer token
func (v *Verifier) FromRequest(r *http.Request) (Caller, error) {
	authz := r.Header.Get("Authorization")
	if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
		return Caller{}, ErrMissingAuthHeader
	}
	return v.Verify(strings.TrimPrefix(authz, "Bearer "))
}

// Issue signs a token for userID. Used by tooling and tests; production
// tokens come from the user service.
func (v *Verifier) Issue(userID string, role types.Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

type callerKey struct{}

// WithCaller stores c in ctx
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller stored by WithCaller
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// Package gateway implements the API Gateway core: bearer-token auth,
// role-based authorization, a proxy dispatcher, and a parallel inference
// fan-out router (spec §4.13–§4.15).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zero-bot/codecoder/internal/apperr"
	"github.com/zero-bot/codecoder/internal/gatewaydb"
)

// AuthUser is attached to the request context by the Verify middleware
// (spec §4.14).
type AuthUser struct {
	UserID string
	Roles  []string
	Expiry time.Time
}

type contextKey string

const authUserContextKey contextKey = "gateway.auth_user"

// WithAuthUser returns a context carrying u, used by tests and by the
// Verify middleware.
func WithAuthUser(ctx context.Context, u *AuthUser) context.Context {
	return context.WithValue(ctx, authUserContextKey, u)
}

// AuthUserFromContext extracts the AuthUser a prior Verify call attached.
func AuthUserFromContext(ctx context.Context) (*AuthUser, bool) {
	u, ok := ctx.Value(authUserContextKey).(*AuthUser)
	return u, ok
}

var (
	ErrMissingToken = apperr.New("gateway.auth", apperr.KindAuthorization, "MISSING_TOKEN", "missing bearer token", apperr.ErrUnauthorized)
	ErrInvalidToken = apperr.New("gateway.auth", apperr.KindAuthorization, "INVALID_TOKEN", "invalid or expired token", apperr.ErrUnauthorized)
)

type tokenClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Authenticator signs and verifies HMAC-signed bearer tokens binding
// {user_id, roles, expiry} (spec §4.14).
type Authenticator struct {
	secret []byte
	ttl    time.Duration
}

// NewAuthenticator builds an Authenticator. ttl is how long an issued
// token remains valid before Refresh is required.
func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	return &Authenticator{secret: []byte(secret), ttl: ttl}
}

// Issue signs a new token for u, binding userID, roles, and an expiry
// ttl from now.
func (a *Authenticator) Issue(userID string, roles []string) (string, time.Time, error) {
	expiry := time.Now().Add(a.ttl)
	claims := tokenClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiry, nil
}

// Verify parses and validates tokenString, returning the AuthUser it
// binds.
func (a *Authenticator) Verify(tokenString string) (*AuthUser, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	expiry := time.Time{}
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}

	return &AuthUser{
		UserID: claims.Subject,
		Roles:  claims.Roles,
		Expiry: expiry,
	}, nil
}

// Refresh re-validates refreshToken, re-checks the persisted user's
// enabled flag via store, and issues a new token (spec §4.14).
func (a *Authenticator) Refresh(ctx context.Context, store *gatewaydb.Store, refreshToken string) (string, time.Time, error) {
	authUser, err := a.Verify(refreshToken)
	if err != nil {
		return "", time.Time{}, err
	}

	user, err := store.GetUser(ctx, authUser.UserID)
	if err != nil {
		if errors.Is(err, gatewaydb.ErrUserNotFound) {
			return "", time.Time{}, ErrInvalidToken
		}
		return "", time.Time{}, err
	}
	if !user.Enabled {
		return "", time.Time{}, gatewaydb.ErrUserDisabled
	}

	return a.Issue(user.ID, user.Roles)
}

// Package auth issues and verifies the session tokens presented at the
// WebSocket handshake.
//
// Two modes exist. Opaque sessions are random UUIDs stored server side and
// checked by the store. JWT sessions are HS256 tokens signed with the
// configured secret and checked without any store round trip.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Tyrowin/convohub/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the username next to the registered claims.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// JWT signs and verifies session tokens with a shared secret.
type JWT struct {
	secret   []byte
	validity time.Duration
	issuer   string
	now      func() time.Time
}

func NewJWT(secret []byte, validity time.Duration, issuer string) *JWT {
	return &JWT{secret: secret, validity: validity, issuer: issuer, now: time.Now}
}

// IssueToken returns a signed token for username.
func (j *JWT) IssueToken(_ context.Context, username string) (string, error) {
	now := j.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.validity)),
		},
		Username: username,
	})

	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifySessionToken returns the username of a valid token. Expired,
// tampered and malformed tokens yield an error wrapping common.ErrNotFound.
func (j *JWT) VerifySessionToken(ctx context.Context, tokenString string) (string, error) {
	username, _, err := j.VerifySessionExpiry(ctx, tokenString)
	return username, err
}

// VerifySessionExpiry is VerifySessionToken plus the token's exp claim.
func (j *JWT) VerifySessionExpiry(_ context.Context, tokenString string) (string, time.Time, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", time.Time{}, fmt.Errorf("%w: token expired", common.ErrNotFound)
		}
		return "", time.Time{}, fmt.Errorf("%w: %v", common.ErrNotFound, err)
	}
	if !token.Valid || claims.Username == "" || claims.ExpiresAt == nil {
		return "", time.Time{}, fmt.Errorf("%w: invalid token", common.ErrNotFound)
	}
	return claims.Username, claims.ExpiresAt.Time, nil
}

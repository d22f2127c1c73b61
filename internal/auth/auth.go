// Package auth issues and validates session access tokens. A token binds a
// user to one practice session; the websocket handler checks it before the
// connection may join the session's room.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrMissingAuthHeader = errors.New("authorization header missing")
)

// SessionTokenClaims are the claims carried by a session access token.
type SessionTokenClaims struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticator signs and verifies session tokens with an HMAC secret.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
}

func New(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl}
}

// Mint issues a token granting the user access to the session.
func (a *Authenticator) Mint(sessionID, userID, username string) (string, error) {
	now := time.Now()
	claims := &SessionTokenClaims{
		SessionID: sessionID,
		UserID:    userID,
		Username:  username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Validate parses and verifies a session token and returns its claims.
func (a *Authenticator) Validate(tokenString string) (*SessionTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return token.Claims.(*SessionTokenClaims), nil
}

// ExtractTokenFromHeader extracts the token from an Authorization header.
func ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}
	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return "", errors.New("invalid authorization header format")
	}
	return authHeader[7:], nil
}

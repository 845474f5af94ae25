package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const issuer = "tree-shop"

// Claims identifies the shop session a token was issued for
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// SessionTokens signs and validates shop session tokens
type SessionTokens struct {
	secretKey []byte
	expiry    time.Duration
}

func NewSessionTokens(secretKey string, expiry time.Duration) *SessionTokens {
	return &SessionTokens{
		secretKey: []byte(secretKey),
		expiry:    expiry,
	}
}

// Issue creates a token for sessionID
func (s *SessionTokens) Issue(sessionID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.expiry)

	claims := Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   sessionID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// Validate parses tokenString and returns its claims
func (s *SessionTokens) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secretKey, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Expiry returns the lifetime of issued tokens
func (s *SessionTokens) Expiry() time.Duration {
	return s.expiry
}

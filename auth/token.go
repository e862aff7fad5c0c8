package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the payload carried inside a session token.
type SessionClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// Sessions issues and resolves session tokens. It is the single
// authority the connection handshake consults; an Active connection is
// never re-checked against it.
type Sessions struct {
	secret []byte
	ttl    time.Duration
}

func NewSessions(secret string, ttl time.Duration) *Sessions {
	return &Sessions{secret: []byte(secret), ttl: ttl}
}

// Issue creates a signed token for a user, valid for the configured
// duration. HS256 (HMAC with SHA256).
func (s *Sessions) Issue(userID domain.UserID) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)

	claims := &SessionClaims{
		UserID: int64(userID),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "chat-relay",
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Resolve maps a token back to the user it was issued for. Any parse,
// signature, or expiry failure collapses into ErrUnauthenticated; the
// caller has no reason to distinguish them.
func (s *Sessions) Resolve(tokenString string) (domain.UserID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return 0, errors.ErrUnauthenticated
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return 0, errors.ErrUnauthenticated
	}
	return domain.UserID(claims.UserID), nil
}

package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	sessionAudience = "orbit-web"
	clockSkew       = 30 * time.Second
)

// Claims is the payload of the session cookie. Subject carries the numeric user ID.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// UserID parses the subject back into the numeric user ID.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// SessionManager signs and verifies session tokens with HS256.
type SessionManager struct {
	secret   []byte
	lifetime time.Duration
	issuer   string
	now      func() time.Time
}

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// NewSessionManager derives the signing key from the configured session secret.
func NewSessionManager(masterSecret string, lifetime time.Duration, issuer string) (*SessionManager, error) {
	key, err := DeriveKey([]byte(masterSecret), PurposeSession)
	if err != nil {
		return nil, err
	}
	return &SessionManager{
		secret:   key,
		lifetime: lifetime,
		issuer:   issuer,
		now:      time.Now,
	}, nil
}

func (m *SessionManager) Lifetime() time.Duration {
	return m.lifetime
}

// Issue returns a signed token for the user and the moment it expires.
func (m *SessionManager) Issue(userID int64, username string) (string, time.Time, error) {
	if userID <= 0 || username == "" {
		return "", time.Time{}, ErrInvalidToken
	}

	issued := m.now().Truncate(time.Second)
	expires := issued.Add(m.lifetime)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{sessionAudience},
			IssuedAt:  jwt.NewNumericDate(issued),
			NotBefore: jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, expires, nil
}

// Validate checks signature, issuer, audience and lifetime, allowing a little
// clock skew. Every failure collapses into ErrInvalidToken.
func (m *SessionManager) Validate(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(sessionAudience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}

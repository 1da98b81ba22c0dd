package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/countryauth/internal/domain/user"
	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is fixed; tokens are never refreshed.
const TokenTTL = 24 * time.Hour

var (
	ErrSigning      = errors.New("token signing failed")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is what a token proves: who the caller is and the role they had
// at issuance.
type Identity struct {
	ID   string    `json:"id"`
	Role user.Role `json:"role"`
}

type Claims struct {
	User Identity `json:"user"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	now    func() time.Time
}

func NewManager(secret string) *Manager {
	return &Manager{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// NewManagerWithClock is NewManager with an injected clock, for tests and
// tooling that need deterministic expiry.
func NewManagerWithClock(secret string, now func() time.Time) *Manager {
	m := NewManager(secret)
	if now != nil {
		m.now = now
	}
	return m
}

// Issue signs {user:{id,role}} with a 24h expiry.
func (m *Manager) Issue(userID string, role user.Role) (string, error) {
	if len(m.secret) == 0 {
		return "", fmt.Errorf("%w: signing secret is not configured", ErrSigning)
	}

	claims := Claims{
		User: Identity{ID: userID, Role: role},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(m.now().UTC().Add(TokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}

	return signed, nil
}

// Verify checks signature and expiry and returns the embedded identity.
// Every failure collapses to ErrInvalidToken.
func (m *Manager) Verify(tokenStr string) (Identity, error) {
	if len(m.secret) == 0 {
		return Identity{}, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// Enforce HMAC

		_, ok := t.Method.(*jwt.SigningMethodHMAC)

		if !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)

	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	if claims.User.ID == "" {
		return Identity{}, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	return claims.User, nil
}

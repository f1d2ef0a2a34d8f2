package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AdminTokenManager issues and verifies the HMAC-signed admin tokens that
// guard the admin endpoints.
type AdminTokenManager struct {
	secret   []byte
	issuer   string
	audience string
}

// NewAdminTokenManager creates a new admin token manager
func NewAdminTokenManager(secret, issuer, audience string) *AdminTokenManager {
	return &AdminTokenManager{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
	}
}

// Generate issues an admin token valid for the given number of days.
func (m *AdminTokenManager) Generate(expirationDays int) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"iss": m.issuer,
		"aud": m.audience,
		"sub": "ADMIN",
		"iat": now.Unix(),
		"exp": now.Add(time.Duration(expirationDays) * 24 * time.Hour).Unix(),
		"jti": uuid.New().String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}

	return signed, nil
}

// Verify checks an admin token's signature, issuer, audience and expiry.
func (m *AdminTokenManager) Verify(tokenString string) error {
	_, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("invalid admin token: %w", err)
	}

	return nil
}

package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of access-token claims used for display and expiry checks.
// They are decoded without signature verification and never drive authorization.
type Claims struct {
	Subject     string
	Email       string
	Role        string
	ExpiresAt   time.Time
	AppMetadata map[string]any
}

var ErrInvalidToken = errors.New("invalid token")

type accessClaims struct {
	Email       string         `json:"email"`
	Role        string         `json:"role"`
	AppMetadata map[string]any `json:"app_metadata"`
	jwt.RegisteredClaims
}

// ParseClaims decodes the payload of a JWT access token without verifying it.
func ParseClaims(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrInvalidToken
	}
	var decoded accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &decoded); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims := Claims{
		Subject:     decoded.Subject,
		Email:       decoded.Email,
		Role:        decoded.Role,
		AppMetadata: decoded.AppMetadata,
	}
	if decoded.ExpiresAt != nil {
		claims.ExpiresAt = decoded.ExpiresAt.Time
	}
	return claims, nil
}

// Expired reports whether the token carried an exp claim that is not after now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// HashToken returns a hex SHA-256 fingerprint suitable for logs and storage keys.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return fmt.Sprintf("%x", sum)
}

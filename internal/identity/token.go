package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims mirrors the access tokens issued by the external auth service.
// Tier is optional; a missing tier falls back to the configured default.
type AccessClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	Tier   string `json:"tier,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidator validates externally issued access tokens. It never mints
// tokens — issuance belongs to the auth service.
type TokenValidator struct {
	secret []byte
	issuer string
}

func NewTokenValidator(secret, issuer string) *TokenValidator {
	return &TokenValidator{secret: []byte(secret), issuer: issuer}
}

// Validate parses and verifies an access token, returning its claims.
func (v *TokenValidator) Validate(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("validating access token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid access token")
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("access token missing uid claim")
	}
	return claims, nil
}

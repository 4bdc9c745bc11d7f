package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/ledgerz-backend/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var jwtSigningMethod = jwt.SigningMethodHS256

// MintAccessToken issues a signed HS256 token for the payload, expiring
// after the configured number of minutes.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if err := validateJWTConfig(cfg); err != nil {
		return "", err
	}
	if !payload.Role.IsValid() {
		return "", fmt.Errorf("invalid actor role %q", payload.Role)
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Role:   payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer, expiry, and role, returning
// the typed claims.
func ParseAccessToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (any, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
	)
	if err != nil {
		return nil, err
	}
	if !claims.Role.IsValid() {
		return nil, fmt.Errorf("invalid actor role %q", claims.Role)
	}
	return claims, nil
}

func validateJWTConfig(cfg config.JWTConfig) error {
	if cfg.Secret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if cfg.Issuer == "" {
		return fmt.Errorf("jwt issuer is required")
	}
	if cfg.ExpirationMinutes <= 0 {
		return fmt.Errorf("jwt expiration minutes must be positive")
	}
	return nil
}

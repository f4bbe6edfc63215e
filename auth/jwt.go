package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hazyhaar/pinup/horosafe"
)

// Issuer is stamped on every session and required when validating.
const Issuer = "pinup"

// GenerateToken signs claims for expiry from now. The secret must be at
// least horosafe.MinSecretLen bytes.
func GenerateToken(secret []byte, claims *Claims, expiry time.Duration) (string, error) {
	if err := horosafe.ValidateSecret(secret); err != nil {
		return "", fmt.Errorf("auth: %w", err)
	}

	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(expiry))
	claims.Issuer = Issuer
	if claims.Subject == "" {
		claims.Subject = claims.ProjectID + "/" + claims.UserName
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken parses and validates a JWT string. The signing method is
// pinned to HS256 and the session must name a project, a user and a role.
func ValidateToken(secret []byte, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v (only HS256 allowed)", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithExpirationRequired(), jwt.WithIssuer(Issuer), jwt.WithLeeway(30*time.Second))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.ProjectID == "" || claims.UserName == "" {
		return nil, errors.New("invalid token: incomplete session")
	}
	if claims.UserType != "client" && claims.UserType != "admin" {
		return nil, fmt.Errorf("invalid token: unknown user type %q", claims.UserType)
	}
	return claims, nil
}

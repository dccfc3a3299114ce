// Package auth issues and validates the operator tokens that guard
// administrative endpoints such as model retraining.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
	ErrMissingSecret = errors.New("jwt secret is required")
)

// RoleTrainer may trigger model retraining.
const RoleTrainer = "trainer"

// JWTManager signs and validates HS256 operator tokens.
type JWTManager struct {
	secret   []byte
	tokenTTL time.Duration
	issuer   string
	now      func() time.Time
}

// JWTConfig configuration for JWT manager
type JWTConfig struct {
	Secret   string
	TokenTTL time.Duration
	Issuer   string
}

// Claims carried by operator tokens.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// HasRole reports whether the claims grant role. "admin" grants every role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role || r == "admin" {
			return true
		}
	}
	return false
}

// NewJWTManager creates a new JWT manager instance
func NewJWTManager(config JWTConfig) (*JWTManager, error) {
	if config.Secret == "" {
		return nil, ErrMissingSecret
	}
	if config.TokenTTL == 0 {
		config.TokenTTL = time.Hour
	}
	if config.Issuer == "" {
		config.Issuer = "shieldx-cti"
	}
	return &JWTManager{
		secret:   []byte(config.Secret),
		tokenTTL: config.TokenTTL,
		issuer:   config.Issuer,
		now:      time.Now,
	}, nil
}

// Issue returns a signed token for subject with the given roles.
func (jm *JWTManager) Issue(subject string, roles ...string) (string, error) {
	now := jm.now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    jm.issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(jm.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken validates a JWT token and returns claims
func (jm *JWTManager) ValidateToken(_ context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jm.secret, nil
	},
		jwt.WithIssuer(jm.issuer),
		jwt.WithTimeFunc(jm.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}

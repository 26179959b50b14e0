// Package auth mints and verifies the bearer tokens exchanged with the generation service.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonathan/quick-resume/internal/config"
)

// Issuer is set on every token minted by this service.
const Issuer = "quick-resume"

// Claims represents service token claims.
type Claims struct {
	Client string `json:"client"`
	jwt.RegisteredClaims
}

// GetClient returns the client name from the claims.
func (c *Claims) GetClient() string {
	return c.Client
}

// TokenService provides service token generation and validation.
type TokenService struct {
	config *config.ServiceAuth
	now    func() time.Time
}

// NewTokenService creates a token service with the given configuration.
func NewTokenService(cfg *config.ServiceAuth) *TokenService {
	return &TokenService{
		config: cfg,
		now:    time.Now,
	}
}

// GenerateToken mints a short-lived token identifying client.
func (s *TokenService) GenerateToken(client string) (string, error) {
	now := s.now()
	expiresAt := now.Add(time.Duration(s.config.TTLMinutes) * time.Minute)

	claims := &Claims{
		Client: client,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken validates a token and returns the claims.
func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token string is empty")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithIssuer(Issuer), jwt.WithTimeFunc(s.now))

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrSignatureInvalid), errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("invalid token signature: %w", err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("token expired: %w", err)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("malformed token: %w", err)
		}
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}

	return claims, nil
}

// Package auth provides authentication functionality for the transport
// layer.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"listenify.dev/syncengine/internal/utils"
)

// JWT errors
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
)

// JWTConfig contains configuration for the JWT verifier.
type JWTConfig struct {
	// Secret is the signing key tokens were issued with.
	Secret string `yaml:"secret" validate:"required"`
}

// jwtClaims extends the standard JWT claims with the caller identity.
type jwtClaims struct {
	BaseClaims
	jwt.RegisteredClaims
}

// JWTVerifier implements Verifier by validating HMAC-signed (HS256, HS384,
// HS512) JWTs.
type JWTVerifier struct {
	config    JWTConfig
	validator *jwt.Validator
	logger    *utils.Logger
}

// NewJWTVerifier creates a new JWT verifier.
func NewJWTVerifier(config JWTConfig, logger *utils.Logger) *JWTVerifier {
	return &JWTVerifier{
		config:    config,
		validator: jwt.NewValidator(jwt.WithLeeway(time.Second)),
		logger:    logger.Named("jwt_verifier"),
	}
}

// ValidateToken validates a JWT token and returns the caller's claims.
func (p *JWTVerifier) ValidateToken(tokenString string) (*Claims, error) {
	parsed := jwtClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &parsed, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(p.config.Secret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		p.logger.Error("failed to parse JWT token", err)
		return nil, ErrInvalidToken
	}

	if token == nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if err := p.validator.Validate(&parsed); err != nil {
		p.logger.Error("failed to validate JWT token", err)
		return nil, ErrInvalidClaims
	}

	return &Claims{BaseClaims: parsed.BaseClaims, StandardClaims: parsed.RegisteredClaims}, nil
}

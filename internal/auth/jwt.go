package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
)

const issuer = "storefront"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims are the JWT claims issued to storefront users. The subject is the
// user id.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager issues and validates HS256 session tokens.
type JWTManager struct {
	secretKey []byte
	ttl       time.Duration
	logger    *zap.Logger
}

func NewJWTManager(secretKey string, ttl time.Duration, logger *zap.Logger) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		logger:    logger,
	}
}

// GenerateToken issues a token for the given principal.
func (j *JWTManager) GenerateToken(principal domain.Principal) (string, error) {
	now := time.Now()
	role := principal.Role
	if role == "" {
		role = domain.RoleCustomer
	}

	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   principal.UserID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		j.logger.Error("failed to generate token", zap.Error(err))
		return "", err
	}
	return signed, nil
}

// ValidateToken parses and verifies a token.
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return j.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Resolve maps a bearer token to its principal. Every failure is reported
// as Unauthenticated.
func (j *JWTManager) Resolve(ctx context.Context, token string) (domain.Principal, error) {
	if token == "" {
		return domain.Principal{}, domain.ErrUnauthenticated
	}

	claims, err := j.ValidateToken(token)
	if err != nil {
		j.logger.Debug("rejected token", zap.Error(err))
		return domain.Principal{}, &domain.Error{Kind: domain.KindUnauthenticated, Message: "unauthenticated", Err: err}
	}

	return domain.Principal{UserID: claims.Subject, Role: claims.Role}, nil
}

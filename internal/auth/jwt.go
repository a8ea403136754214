package auth

import (
	"errors"
	"fmt"
	"time"

	"quiz-arena/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "quiz-arena"

// claims carries the player identity. The player id is the token subject.
type claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// JWTManager issues and verifies HS256 player tokens.
type JWTManager struct {
	secretKey []byte
	ttl       time.Duration
}

func NewJWTManager(secretKey string, ttl time.Duration) (*JWTManager, error) {
	if secretKey == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTManager{secretKey: []byte(secretKey), ttl: ttl}, nil
}

// Generate signs a token for identity valid from now for the configured TTL.
func (m *JWTManager) Generate(identity domain.Identity, now time.Time) (string, error) {
	if identity.PlayerID == "" {
		return "", fmt.Errorf("%w: player id is required", domain.ErrInvalidInput)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Name: identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.PlayerID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})
	return token.SignedString(m.secretKey)
}

// Verify checks the signature and expiry and returns the identity in the token.
func (m *JWTManager) Verify(tokenString string) (domain.Identity, error) {
	if tokenString == "" {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secretKey, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, fmt.Errorf("%w: token expired", domain.ErrUnauthenticated)
		}
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.Subject == "" {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	return domain.Identity{PlayerID: c.Subject, Name: c.Name}, nil
}

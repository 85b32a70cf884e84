package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Leganyst/dispatch-core/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID    string     `json:"user_id"`
	Role      model.Role `json:"role"`
	SessionID string     `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// JWTService signs and verifies HS256 access tokens.
type JWTService struct {
	Secret []byte
	TTL    time.Duration
	// Now is overridable in tests.
	Now func() time.Time
}

func NewJWTService(secret []byte, ttl time.Duration) *JWTService {
	return &JWTService{Secret: secret, TTL: ttl, Now: time.Now}
}

func (s *JWTService) GenerateAccessToken(userID string, role model.Role, sessionID string) (string, time.Time, error) {
	now := s.Now()
	exp := now.Add(s.TTL)
	claims := Claims{
		UserID:    userID,
		Role:      role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (s *JWTService) ValidateToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return s.Secret, nil
		},
		jwt.WithTimeFunc(s.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

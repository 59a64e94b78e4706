package jwtutil

import (
	"errors"
	"fmt"
	"storefront-service/pkg/config"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// UserClaims represents the JWT claims for an authenticated shopper or admin
type UserClaims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}

// JWTUtil signs and validates tokens with a shared HMAC key
type JWTUtil struct {
	secret     []byte
	expiration time.Duration
}

// NewJWTUtil creates a new JWT utility instance
func NewJWTUtil(cfg config.JWTConfig) *JWTUtil {
	return &JWTUtil{
		secret:     []byte(cfg.SigningKey),
		expiration: time.Duration(cfg.ExpirationHours) * time.Hour,
	}
}

// GenerateToken creates a JWT token with user information
func (j *JWTUtil) GenerateToken(userID uint, username string, isAdmin bool) (string, error) {
	now := time.Now()
	claims := UserClaims{
		UserID:   userID,
		Username: username,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userID),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.secret)
}

// ValidateToken validates and parses the JWT token
func (j *JWTUtil) ValidateToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*UserClaims); ok && token.Valid {
		if claims.UserID == 0 {
			return nil, errors.New("token has no user")
		}
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}

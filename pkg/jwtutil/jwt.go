package jwtutil

import (
	"crm-service/pkg/config"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	secret     = []byte("crm-secret-key")
	expiration = 24 * time.Hour
)

// Initialize configures the signing key and token lifetime from the
// application config. Must be called before issuing tokens.
func Initialize(cfg *config.JWTConfig) {
	if cfg.SigningKey != "" {
		secret = []byte(cfg.SigningKey)
	}
	if cfg.ExpirationHours > 0 {
		expiration = time.Duration(cfg.ExpirationHours) * time.Hour
	}
}

// UserClaims represents the JWT claims for user authentication
type UserClaims struct {
	Email     string `json:"email"`
	UserID    uint   `json:"user_id"`
	Role      string `json:"role,omitempty"`       // "organisor" or "agent"
	ProfileID *uint  `json:"profile_id,omitempty"` // tenant the user belongs to
	jwt.RegisteredClaims
}

// GenerateToken creates a JWT token with user, role and tenant information
func GenerateToken(email string, userID uint, role string, profileID *uint) (string, error) {
	claims := UserClaims{
		Email:     email,
		UserID:    userID,
		Role:      role,
		ProfileID: profileID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken validates and parses the JWT token
func ValidateToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*UserClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}

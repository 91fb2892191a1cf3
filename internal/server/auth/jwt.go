package auth

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/penter405/cubetimer-backend/internal/common"
)

// Claims carries the registered claims plus the email the identity
// provider attests to.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// JWTVerifier validates HS256 identity tokens and extracts the email
// claim. Expired or malformed tokens, and tokens without an email, all
// map to ErrInvalidToken.
type JWTVerifier struct {
	secretKey []byte
}

func NewJWTVerifier(secretKey []byte) *JWTVerifier {
	return &JWTVerifier{secretKey: secretKey}
}

func (v *JWTVerifier) Verify(ctx context.Context, tokenString string) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.Email == "" {
		return "", common.ErrInvalidToken
	}

	return strings.ToLower(claims.Email), nil
}

// GenerateToken issues a signed token carrying the email claim. Used by
// tests and local tooling; production tokens come from the external
// identity provider.
func GenerateToken(email string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		Email: email,
	})

	return token.SignedString(secretKey)
}

package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	PurposeAccess = "access"
	PurposeReset  = "reset"

	AccessTokenTTL = 7 * 24 * time.Hour
	ResetTokenTTL  = 10 * time.Minute
)

var ErrTokenPurpose = errors.New("token issued for a different purpose")

type Claims struct {
	UserID  string `json:"id"`
	Role    string `json:"role,omitempty"`
	Purpose string `json:"purpose"`
	jwt.StandardClaims
}

func GenerateJWT(userID, role, secret string, ttl time.Duration) (string, error) {
	return sign(Claims{UserID: userID, Role: role, Purpose: PurposeAccess}, secret, ttl)
}

// GenerateResetToken issues a short-lived token that can only reset a password.
func GenerateResetToken(userID, secret string) (string, error) {
	return sign(Claims{UserID: userID, Purpose: PurposeReset}, secret, ResetTokenTTL)
}

func sign(claims Claims, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = now.Unix()
	claims.ExpiresAt = now.Add(ttl).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateJWT(tokenString, secret string) (*Claims, error) {
	return parse(tokenString, secret, PurposeAccess)
}

func ValidateResetToken(tokenString, secret string) (*Claims, error) {
	return parse(tokenString, secret, PurposeReset)
}

func parse(tokenString, secret, purpose string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.Purpose != purpose {
		return nil, ErrTokenPurpose
	}
	return claims, nil
}

// IsExpired reports whether err came from an expired token.
func IsExpired(err error) bool {
	var ve *jwt.ValidationError
	return errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0
}

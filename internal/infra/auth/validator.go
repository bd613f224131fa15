package auth

import (
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims: полезная нагрузка токена, выпущенного внешним сервисом аутентификации.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// RS256Validator проверяет подпись токена открытым ключом.
type RS256Validator struct {
	publicKey *rsa.PublicKey
}

func NewRS256Validator(pubKey *rsa.PublicKey) *RS256Validator {
	return &RS256Validator{publicKey: pubKey}
}

// VerifyToken принимает значение заголовка Authorization (с префиксом Bearer или без).
func (v *RS256Validator) VerifyToken(tokenStr string) (*Claims, error) {
	tokenStr = strings.TrimSpace(strings.TrimPrefix(tokenStr, "Bearer "))

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.publicKey, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("invalid claims")
	}
	if claims.UserID == "" {
		// Старые токены кладут идентификатор только в sub
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("invalid claims: empty user id")
	}
	return claims, nil
}

// ParseRSAPublicKey превращает PEM в объект для проверки подписи
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("public key data is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}

package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// clockSkew — допуск на расхождение часов телефона и релея
const clockSkew = 30 * time.Second

// Claims — полезная нагрузка токена мобильного клиента.
type Claims struct {
	UserID string `json:"user_id"`
	Wallet string `json:"wallet,omitempty"` // адрес кошелька, если клиент его уже привязал
	jwt.RegisteredClaims
}

// ClientValidator проверяет RS256 токены мобильного клиента на маршрутах релея.
// Токен без exp не принимается: релей не хранит сессий и отозвать его не может.
type ClientValidator struct {
	publicKey *rsa.PublicKey
	parser    *jwt.Parser
}

// NewClientValidator: issuer пустой — поле iss не проверяется.
func NewClientValidator(pubKey *rsa.PublicKey, issuer string) *ClientValidator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &ClientValidator{publicKey: pubKey, parser: jwt.NewParser(opts...)}
}

// VerifyToken принимает значение заголовка Authorization целиком или голый токен.
func (v *ClientValidator) VerifyToken(header string) (*Claims, error) {
	tokenStr := strings.TrimSpace(header)
	if rest, ok := strings.CutPrefix(tokenStr, "Bearer "); ok {
		tokenStr = strings.TrimSpace(rest)
	}
	if tokenStr == "" {
		return nil, errors.New("empty bearer token")
	}

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("client token rejected: %w", err)
	}
	if claims.UserID == "" {
		return nil, errors.New("client token rejected: user_id is empty")
	}
	return claims, nil
}

// PublicKeyFromPEM разбирает ключ из auth.public_key_path или AUTH_PUBLIC_KEY_DATA
func PublicKeyFromPEM(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, errors.New("auth: public key is not configured")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("auth: parse public key: %w", err)
	}
	return key, nil
}

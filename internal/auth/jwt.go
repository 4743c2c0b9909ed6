// Package auth выдаёт и проверяет JWT для административных операций REST API.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuerName = "voxmesh"
	minSecret  = 32
)

var (
	// ErrInvalidToken токен повреждён, просрочен или подписан чужим ключом
	ErrInvalidToken = errors.New("недействительный токен")
	// ErrWeakSecret ключ короче 32 байт
	ErrWeakSecret = errors.New("секретный ключ должен быть не короче 32 байт")
)

// Claims represents JWT claims
type Claims struct {
	Operator string `json:"operator"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Issuer подписывает токены HS256 общим секретом
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer создаёт издателя; ttl <= 0 означает 24 часа
func NewIssuer(secret []byte, ttl time.Duration) (*Issuer, error) {
	if len(secret) < minSecret {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: secret, ttl: ttl, now: time.Now}, nil
}

// NewIssuerFromBase64 ключ в base64, как его хранят в конфиге и окружении
func NewIssuerFromBase64(secret string, ttl time.Duration) (*Issuer, error) {
	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("секрет не в base64: %w", err)
	}
	return NewIssuer(decoded, ttl)
}

// Generate creates a signed token for the operator
func (i *Issuer) Generate(operator string, admin bool) (string, error) {
	now := i.now()
	claims := &Claims{
		Operator: operator,
		IsAdmin:  admin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuerName,
			Subject:   operator,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Validate checks token validity and returns its claims
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	},
		jwt.WithIssuer(issuerName),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// GenerateSecureSecret generates a new secure secret key
func GenerateSecureSecret() (string, error) {
	b := make([]byte, minSecret)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

package auth

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Role string

const (
	RoleCustomer   Role = "customer"
	RoleRestaurant Role = "restaurant"
	RoleCourier    Role = "courier"
)

// Claims scope a token to a single order and view role.
type Claims struct {
	OrderID string `json:"order_id"`
	Role    Role   `json:"role"`
	jwt.RegisteredClaims
}

// Tokens mints and verifies per-order access tokens.
type Tokens struct {
	secret []byte
}

func NewTokens(secret string) *Tokens {

	if secret == "" {
		secret = os.Getenv("APP_JWT_SECRET")
	}
	if secret == "" {
		secret = "dev-secret-change-me"
	}

	return &Tokens{secret: []byte(secret)}
}

func (t *Tokens) Make(orderID string, role Role, ttl time.Duration) (string, error) {

	claims := Claims{
		OrderID: orderID,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t *Tokens) Parse(tok string) (*Claims, error) {

	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(tok, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	})

	if err != nil || !parsed.Valid {

		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func (t *Tokens) ParseFromRequest(r *http.Request) (*Claims, error) {

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(auth), "bearer") {

		return nil, errors.New("missing bearer token")

	}

	tok := strings.TrimSpace(auth[len("bearer "):])
	return t.Parse(tok)

}

package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by an operator token. Only admin tokens reach the admin routes.
type Claims struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email,omitempty"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

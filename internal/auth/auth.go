package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator checks bearer tokens issued by the host platform.
type Authenticator interface {
	ValidateAccessToken(token string) (*jwt.Token, error)
}

// Claims is what the HTTP layer reads out of a validated access token.
type Claims struct {
	UserID int64
	Role   string
}

// ClaimsFrom extracts the subject and role of a validated token.
func ClaimsFrom(token *jwt.Token) (Claims, error) {
	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("unexpected claims type")
	}

	sub, ok := mc["sub"].(float64)
	if !ok || sub <= 0 {
		return Claims{}, fmt.Errorf("invalid subject claim %v", mc["sub"])
	}

	role, _ := mc["role"].(string)
	return Claims{UserID: int64(sub), Role: role}, nil
}

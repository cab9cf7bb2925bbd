package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims name the actor behind a request. Tokens are issued elsewhere;
// this service only verifies them.
type Claims struct {
	UserID         string   `json:"uid"`
	OrganizationID string   `json:"oid"`
	Role           string   `json:"role"`
	Permissions    []string `json:"perms,omitempty"`
	jwt.RegisteredClaims
}

// UserContext is the verified principal attached to a request context.
type UserContext struct {
	UserID         string
	OrganizationID string
	Role           string
	Permissions    []string
}

func (u UserContext) Can(permission string) bool {
	return Allowed(u.Role, u.Permissions, permission)
}

func GenerateToken(secret string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" || claims.OrganizationID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (c Claims) User() UserContext {
	return UserContext{UserID: c.UserID, OrganizationID: c.OrganizationID, Role: c.Role, Permissions: c.Permissions}
}

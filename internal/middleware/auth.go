package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/peermart/peermart-backend/internal/identity"
)

// AuthMiddleware verifies the bearer token issued at wallet sign-in. The
// token binds the caller's ledger address; the middleware derives the
// pseudonymous identity from it and stores both in the request context, so
// handlers never see a raw wallet unless they need the settlement address.
type AuthMiddleware struct {
	secret []byte
}

func NewAuthMiddleware(secret string) (*AuthMiddleware, error) {
	if secret == "" {
		return nil, errors.New("JWT secret is not set")
	}
	return &AuthMiddleware{secret: []byte(secret)}, nil
}

type walletClaims struct {
	Wallet string `json:"wallet"`
	jwt.RegisteredClaims
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authz := c.Request().Header.Get("Authorization")
		if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		tokenStr := strings.TrimPrefix(authz, "Bearer ")
		var claims walletClaims
		token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return m.secret, nil
		})
		if err != nil || !token.Valid || claims.Wallet == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		}
		caller := identity.NewCaller(claims.Wallet)
		c.Set("uid", caller.ID)
		c.Set("caller", caller)
		return next(c)
	}
}

// Caller returns the authenticated caller stored by RequireAuth.
func Caller(c echo.Context) (identity.Caller, bool) {
	caller, ok := c.Get("caller").(identity.Caller)
	return caller, ok && caller.ID != ""
}
